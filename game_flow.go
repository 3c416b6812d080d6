package main

import (
	"encoding/json"
	"log"
)

// DayUpdate is broadcast on every phase change.
type DayUpdate struct {
	DayTime json.RawMessage `json:"dayTime"`
}

// GameOver is broadcast when a client declares the game finished.
type GameOver struct {
	Ended   json.RawMessage `json:"ended"`
	Message json.RawMessage `json:"message"`
}

// GameStart marks the room started and relays start to the room. Once started
// a room stays started; later joinRoom calls are turned away.
func (e *Engine) GameStart(roomID string, start json.RawMessage) {
	e.withRoom(roomID, func(r *Room) {
		if !r.started {
			r.started = true
			log.Printf("Room '%s' started with %d players", roomID, len(r.players))
		}
		e.out.SendToRoom(roomID, EventReturnGameStart, orNull(start))
	})
}

// SetDay stores the phase flag and relays it to the room.
func (e *Engine) SetDay(roomID string, dayTime json.RawMessage) {
	e.withRoom(roomID, func(r *Room) {
		var day bool
		if err := json.Unmarshal(orNull(dayTime), &day); err != nil {
			DebugLog("SetDay: room '%s' sent non-boolean dayTime %s", roomID, dayTime)
		}
		r.dayTime = day
		DebugLog("SetDay: room '%s' dayTime=%v", roomID, day)
		e.out.SendToRoom(roomID, EventSendAllSetDay, DayUpdate{DayTime: orNull(dayTime)})
	})
}

// GameEnd relays the end flag and message. The room is not marked terminal.
func (e *Engine) GameEnd(roomID string, ended, message json.RawMessage) {
	e.withRoom(roomID, func(r *Room) {
		log.Printf("Room '%s' game end: ended=%s", roomID, orNull(ended))
		e.out.SendToRoom(roomID, EventGameEndAll, GameOver{Ended: orNull(ended), Message: orNull(message)})
		var text string
		if json.Unmarshal(orNull(message), &text) == nil && text != "" {
			e.narrate(r, "The game is over: "+text)
		}
	})
}
