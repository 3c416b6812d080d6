package main

import (
	"encoding/json"
	"log"
)

// JoinReply is sent to a connection that asked to join a room.
type JoinReply struct {
	Joined bool   `json:"joined"`
	RoomID string `json:"roomId"`
}

// JoinRoom records roomID as known and subscribes the caller unless the game
// has already started. Late joiners get joined=false and no subscription.
func (e *Engine) JoinRoom(connID, roomID string) {
	if e.rooms.markKnown(roomID) {
		DebugLog("JoinRoom: room '%s' is now known", roomID)
	}

	e.withRoom(roomID, func(r *Room) {
		if r.started {
			DebugLog("JoinRoom: connection %s turned away from started room '%s'", connID, roomID)
			e.out.SendTo(connID, EventGameStarted, JoinReply{Joined: false, RoomID: roomID})
			return
		}
		e.out.Subscribe(connID, roomID)
		e.out.SendTo(connID, EventGameStarted, JoinReply{Joined: true, RoomID: roomID})
	})
}

// GetPlayer adds the player to the roster if their id is new, then broadcasts
// the whole roster with every entry marked alive.
func (e *Engine) GetPlayer(roomID, playerName, playerID string) {
	e.withRoom(roomID, func(r *Room) {
		if r.addPlayer(playerName, playerID) {
			log.Printf("Player '%s' (%s) joined room '%s'", playerName, playerID, roomID)
		} else {
			DebugLog("GetPlayer: '%s' (%s) already in room '%s'", playerName, playerID, roomID)
		}
		e.out.SendToRoom(roomID, EventPlayerList, r.rosterWithStatus())
	})
}

// LogOut removes the player from the roster and broadcasts the remaining
// roster. This broadcast carries no alive field.
func (e *Engine) LogOut(roomID, playerID string) {
	e.withRoom(roomID, func(r *Room) {
		if r.removePlayer(playerID) {
			log.Printf("Player %s left room '%s'", playerID, roomID)
		}
		e.out.SendToRoom(roomID, EventPlayerList, r.roster())
	})
}

// KillPlayer tells the room that the player at position is eliminated. The
// roster itself is left untouched.
func (e *Engine) KillPlayer(roomID string, position json.RawMessage) {
	e.withRoom(roomID, func(r *Room) {
		e.out.SendToRoom(roomID, EventQuitWhenGameStart, orNull(position))
		e.narrate(r, "The player at seat "+string(orNull(position))+" has been eliminated.")
	})
}

// AssignRoles relays the role assignment to the room as-is.
func (e *Engine) AssignRoles(roomID string, data json.RawMessage) {
	e.withRoom(roomID, func(r *Room) {
		e.out.SendToRoom(roomID, EventRoleAssign, orNull(data))
	})
}

func orNull(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return json.RawMessage("null")
	}
	return raw
}
