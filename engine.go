package main

import (
	"encoding/json"
	"log"
)

// Inbound event names.
const (
	EventJoinRoom         = "joinRoom"
	EventGetPlayer        = "getPlayer"
	EventLogOut           = "logOut"
	EventKillThePlayer    = "killThePlayer"
	EventGameStart        = "gameStart"
	EventAllRoleAssign    = "allRoleAssign"
	EventSendSetDay       = "sendSetDay"
	EventDayChat          = "dayChat"
	EventDayAction        = "dayAction"
	EventResetDayAction   = "resetDayAction"
	EventResetNightAction = "resetNightAction"
	EventNightChat        = "nightChat"
	EventVampireNightChat = "vampireNightChat"
	EventDeadPlayerChat   = "deadPlayerChat"
	EventSubmitVote       = "submitVote"
	EventClearVotes       = "clearVotes"
	EventNightAction      = "nightAction"
	EventGameEnd          = "gameEnd"
	EventTestDeploy       = "testDeploy"
)

// Outbound event names.
const (
	EventGameStarted         = "gameStarted"
	EventPlayerList          = "playerList"
	EventQuitWhenGameStart   = "quitWhenGameStart"
	EventReturnGameStart     = "returnGameStart"
	EventRoleAssign          = "roleAssign"
	EventSendAllSetDay       = "sendAllSetDay"
	EventAllDayChat          = "allDayChat"
	EventAllDayAction        = "allDayAction"
	EventAllNightChat        = "allNightChat"
	EventAllVampireNightChat = "allVampireNightChat"
	EventAllDeadPlayerChat   = "allDeadPlayerChat"
	EventUpdateVotes         = "updateVotes"
	EventAllNightAction      = "allNightAction"
	EventGameEndAll          = "gameEndAll"
	EventTestBack            = "testBack"
	EventStoryteller         = "storyteller"
	EventNotice              = "notice"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Broadcaster delivers events to connections. Implementations must encode
// payload before returning, since callers reuse the backing slices.
type Broadcaster interface {
	// Subscribe adds the connection to the room's broadcast group. Idempotent.
	Subscribe(connID, roomID string)
	// SendTo delivers an event to one connection.
	SendTo(connID, event string, payload any)
	// SendToRoom delivers an event to every connection subscribed to roomID.
	SendToRoom(roomID, event string, payload any)
}

// Coordinator is the set of room operations a connection can trigger.
type Coordinator interface {
	JoinRoom(connID, roomID string)
	GetPlayer(roomID, playerName, playerID string)
	LogOut(roomID, playerID string)
	KillPlayer(roomID string, position json.RawMessage)
	GameStart(roomID string, start json.RawMessage)
	AssignRoles(roomID string, data json.RawMessage)
	SetDay(roomID string, dayTime json.RawMessage)
	GameEnd(roomID string, ended, message json.RawMessage)
	Chat(connID, roomID string, kind ChannelKind, author, text string, dedup bool)
	DayAction(connID, roomID string, a ActionRecord)
	NightAction(connID, roomID string, a ActionRecord)
	ResetDayAction(roomID string)
	ResetNightAction(roomID string)
	SubmitVote(roomID, voterID string, target Ref)
	ClearVotes(roomID string)
}

// Engine implements Coordinator over an in-memory RoomRegistry.
type Engine struct {
	rooms       *RoomRegistry
	out         Broadcaster
	storyteller Storyteller
}

var _ Coordinator = (*Engine)(nil)

func NewEngine(out Broadcaster, storyteller Storyteller) *Engine {
	return &Engine{
		rooms:       NewRoomRegistry(),
		out:         out,
		storyteller: storyteller,
	}
}

// Rooms exposes the registry for diagnostics.
func (e *Engine) Rooms() *RoomRegistry { return e.rooms }

// withRoom runs fn with the room's lock held.
func (e *Engine) withRoom(roomID string, fn func(r *Room)) {
	r := e.rooms.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
	if roomLoggingEnabled() {
		LogRoomState(r.snapshot())
	}
}

// Payloads. Field aliases cover older clients that send email/id/position
// and gameEnd/gameEndMessage.

type roomPayload struct {
	RoomID ID `json:"roomId"`
}

type playerPayload struct {
	RoomID     ID     `json:"roomId"`
	PlayerName Text   `json:"playerName"`
	PlayerID   ID     `json:"playerId"`
	Email      ID     `json:"email"`
}

func (p playerPayload) id() string {
	if p.PlayerID != "" {
		return string(p.PlayerID)
	}
	return string(p.Email)
}

type killPayload struct {
	RoomID   ID              `json:"roomId"`
	Position json.RawMessage `json:"position"`
}

type gameStartPayload struct {
	RoomID ID              `json:"roomId"`
	Start  json.RawMessage `json:"start"`
}

type roleAssignPayload struct {
	RoomID ID              `json:"roomId"`
	Data   json.RawMessage `json:"data"`
}

type setDayPayload struct {
	RoomID  ID              `json:"roomId"`
	DayTime json.RawMessage `json:"dayTime"`
}

type chatPayload struct {
	RoomID  ID     `json:"roomId"`
	Name    Text `json:"name"`
	Message Text `json:"message"`
	Repeat  Text `json:"repeat"`
}

type actionPayload struct {
	RoomID        ID         `json:"roomId"`
	Owner         Ref        `json:"owner"`
	Position      Ref        `json:"position"`
	Target        Ref        `json:"target"`
	Action        ActionKind `json:"action"`
	TwistedTarget Ref        `json:"twistedTarget"`
}

func (p actionPayload) record(night bool) ActionRecord {
	a := ActionRecord{Owner: p.Owner, Target: p.Target, Action: p.Action}
	if a.Owner.IsZero() {
		a.Owner = p.Position
	}
	if night && !p.TwistedTarget.IsZero() && !p.TwistedTarget.IsNull() {
		a.TwistedTarget = p.TwistedTarget
	}
	return a
}

type votePayload struct {
	RoomID  ID  `json:"roomId"`
	VoterID ID  `json:"voterId"`
	ID      ID  `json:"id"`
	Target  Ref `json:"target"`
}

func (p votePayload) voter() string {
	if p.VoterID != "" {
		return string(p.VoterID)
	}
	return string(p.ID)
}

type gameEndPayload struct {
	RoomID         ID              `json:"roomId"`
	Ended          json.RawMessage `json:"ended"`
	Message        json.RawMessage `json:"message"`
	GameEnd        json.RawMessage `json:"gameEnd"`
	GameEndMessage json.RawMessage `json:"gameEndMessage"`
}

// clearVotesPayload accepts either {"roomId": ...} or a bare room id.
type clearVotesPayload struct {
	RoomID ID
}

func (p *clearVotesPayload) UnmarshalJSON(b []byte) error {
	var obj roomPayload
	if err := json.Unmarshal(b, &obj); err == nil {
		p.RoomID = obj.RoomID
		return nil
	}
	return json.Unmarshal(b, &p.RoomID)
}

// Dispatch decodes one inbound frame from connID and runs the matching
// operation. Text fields of the wrong type read as absent; only payloads that
// are not objects or carry an unusable room id are logged and dropped, along
// with unknown events.
func (e *Engine) Dispatch(connID string, env Envelope) {
	decode := func(v any) bool {
		data := env.Data
		if len(data) == 0 {
			data = json.RawMessage("{}")
		}
		if err := json.Unmarshal(data, v); err != nil {
			log.Printf("Dropping %s from connection %s: %v", env.Event, connID, err)
			return false
		}
		return true
	}

	switch env.Event {
	case EventJoinRoom:
		var p roomPayload
		if decode(&p) {
			e.JoinRoom(connID, string(p.RoomID))
		}
	case EventGetPlayer:
		var p playerPayload
		if decode(&p) {
			e.GetPlayer(string(p.RoomID), string(p.PlayerName), p.id())
		}
	case EventLogOut:
		var p playerPayload
		if decode(&p) {
			e.LogOut(string(p.RoomID), p.id())
		}
	case EventKillThePlayer:
		var p killPayload
		if decode(&p) {
			e.KillPlayer(string(p.RoomID), p.Position)
		}
	case EventGameStart:
		var p gameStartPayload
		if decode(&p) {
			e.GameStart(string(p.RoomID), p.Start)
		}
	case EventAllRoleAssign:
		var p roleAssignPayload
		if decode(&p) {
			e.AssignRoles(string(p.RoomID), p.Data)
		}
	case EventSendSetDay:
		var p setDayPayload
		if decode(&p) {
			e.SetDay(string(p.RoomID), p.DayTime)
		}
	case EventDayChat:
		var p chatPayload
		if decode(&p) {
			e.Chat(connID, string(p.RoomID), DayChannel, string(p.Name), string(p.Message), p.Repeat == "no")
		}
	case EventNightChat, EventVampireNightChat, EventDeadPlayerChat:
		var p chatPayload
		if decode(&p) {
			e.Chat(connID, string(p.RoomID), chatChannels[env.Event], string(p.Name), string(p.Message), false)
		}
	case EventDayAction:
		var p actionPayload
		if decode(&p) {
			e.DayAction(connID, string(p.RoomID), p.record(false))
		}
	case EventNightAction:
		var p actionPayload
		if decode(&p) {
			e.NightAction(connID, string(p.RoomID), p.record(true))
		}
	case EventResetDayAction:
		var p roomPayload
		if decode(&p) {
			e.ResetDayAction(string(p.RoomID))
		}
	case EventResetNightAction:
		var p roomPayload
		if decode(&p) {
			e.ResetNightAction(string(p.RoomID))
		}
	case EventSubmitVote:
		var p votePayload
		if decode(&p) {
			e.SubmitVote(string(p.RoomID), p.voter(), p.Target)
		}
	case EventClearVotes:
		var p clearVotesPayload
		if decode(&p) {
			e.ClearVotes(string(p.RoomID))
		}
	case EventGameEnd:
		var p gameEndPayload
		if decode(&p) {
			ended, message := p.Ended, p.Message
			if ended == nil {
				ended = p.GameEnd
			}
			if message == nil {
				message = p.GameEndMessage
			}
			e.GameEnd(string(p.RoomID), ended, message)
		}
	case EventTestDeploy:
		e.out.SendTo(connID, EventTestBack, env.Data)
	default:
		log.Printf("Unknown event %q from connection %s", env.Event, connID)
	}
}

var chatChannels = map[string]ChannelKind{
	EventDayChat:          DayChannel,
	EventNightChat:        NightChannel,
	EventVampireNightChat: VampireNightChannel,
	EventDeadPlayerChat:   DeadPlayerChannel,
}
