package main

// DayAction queues a day action, re-filters the whole queue and broadcasts it.
func (e *Engine) DayAction(connID, roomID string, a ActionRecord) {
	e.out.Subscribe(connID, roomID)
	e.withRoom(roomID, func(r *Room) {
		queued := append(r.dayActions, a)
		r.dayActions = queued.filtered()
		if dropped := len(queued) - len(r.dayActions); dropped > 0 {
			DebugLog("DayAction: room '%s' dropped %d malformed action(s)", roomID, dropped)
		}
		e.out.SendToRoom(roomID, EventAllDayAction, r.dayActions)
	})
}

// ResetDayAction empties the room's day action queue without broadcasting.
func (e *Engine) ResetDayAction(roomID string) {
	e.withRoom(roomID, func(r *Room) {
		r.dayActions = ActionQueue{}
	})
}

// SubmitVote sets or overwrites voterID's target, which may be null for an
// abstain, and broadcasts the whole tally.
func (e *Engine) SubmitVote(roomID, voterID string, target Ref) {
	e.withRoom(roomID, func(r *Room) {
		if prev, ok := r.votes.Target(voterID); ok {
			DebugLog("SubmitVote: room '%s' voter %s changed %s -> %s", roomID, voterID, prev, target)
		}
		r.votes.Set(voterID, target)
		e.out.SendToRoom(roomID, EventUpdateVotes, r.votes)
	})
}

// ClearVotes starts a new voting round. Nothing is broadcast.
func (e *Engine) ClearVotes(roomID string) {
	e.withRoom(roomID, func(r *Room) {
		r.votes.Reset()
	})
}
