package main

// ChannelKind selects one of a room's chat logs.
type ChannelKind int

const (
	DayChannel ChannelKind = iota
	NightChannel
	VampireNightChannel
	DeadPlayerChannel
)

func (k ChannelKind) String() string {
	switch k {
	case DayChannel:
		return "day"
	case NightChannel:
		return "night"
	case VampireNightChannel:
		return "vampireNight"
	case DeadPlayerChannel:
		return "deadPlayer"
	}
	return "unknown"
}

// broadcastEvent is the event name the full log is sent under.
func (k ChannelKind) broadcastEvent() string {
	switch k {
	case DayChannel:
		return EventAllDayChat
	case NightChannel:
		return EventAllNightChat
	case VampireNightChannel:
		return EventAllVampireNightChat
	case DeadPlayerChannel:
		return EventAllDeadPlayerChat
	}
	return ""
}

// ChatMessage is one line of a chat log. It never changes once appended.
type ChatMessage struct {
	Author string `json:"name"`
	Text   string `json:"message"`
}

// dedupByText keeps only the first message for each distinct text. Two
// authors sending the same text collapse into the first author's line.
func dedupByText(log []ChatMessage) []ChatMessage {
	seen := make(map[string]bool, len(log))
	out := make([]ChatMessage, 0, len(log))
	for _, m := range log {
		if seen[m.Text] {
			continue
		}
		seen[m.Text] = true
		out = append(out, m)
	}
	return out
}

// appendChat adds a message to the room's log for kind when text is non-empty
// and returns the resulting log. Must be called with r.mu held.
func (r *Room) appendChat(kind ChannelKind, author, text string) []ChatMessage {
	if text != "" {
		r.chats[kind] = append(r.chats[kind], ChatMessage{Author: author, Text: text})
	}
	if r.chats[kind] == nil {
		r.chats[kind] = []ChatMessage{}
	}
	return r.chats[kind]
}

// Chat subscribes the caller to the room, appends the message to the kind's
// log when text is non-empty and broadcasts the whole log. With dedup set the
// day log is first reduced to one message per distinct text.
func (e *Engine) Chat(connID, roomID string, kind ChannelKind, author, text string, dedup bool) {
	e.out.Subscribe(connID, roomID)
	e.withRoom(roomID, func(r *Room) {
		msgs := r.appendChat(kind, author, text)
		if dedup && kind == DayChannel {
			msgs = dedupByText(msgs)
			r.chats[kind] = msgs
		}
		e.out.SendToRoom(roomID, kind.broadcastEvent(), msgs)
	})
}
