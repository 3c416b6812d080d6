package main

import (
	"cmp"
	"slices"
)

// ActionKind is the label a client attaches to a day or night action. The set
// is open: any label is stored, only the night ordering cares which it is.
type ActionKind string

// UnmarshalJSON accepts a label sent as a number; other non-string values
// leave the label empty so the filter drops the action.
func (k *ActionKind) UnmarshalJSON(b []byte) error {
	var t Text
	if err := t.UnmarshalJSON(b); err != nil {
		return err
	}
	*k = ActionKind(t)
	return nil
}

// Night action labels with a known resolution order.
const (
	ActionConvert     ActionKind = "convert"
	ActionKill        ActionKind = "kill"
	ActionDestiny     ActionKind = "destiny"
	ActionVampireKill ActionKind = "vampireKill"
	ActionLookout     ActionKind = "lookout"
	ActionScam        ActionKind = "scam"
	ActionRemember    ActionKind = "remember"
	ActionDetect      ActionKind = "detect"
	ActionProtect     ActionKind = "protect"
)

// Priority is the resolution order of a night action. Lower resolves first.
type Priority int

// Unranked is the priority of a label missing from the table. Unranked
// actions resolve after every ranked action.
const Unranked Priority = -1

var nightPriority = map[ActionKind]Priority{
	ActionConvert:     1,
	ActionKill:        1,
	ActionDestiny:     1,
	ActionVampireKill: 1,
	ActionLookout:     2,
	ActionScam:        2,
	ActionRemember:    2,
	ActionDetect:      3,
	ActionProtect:     4,
}

// Priority returns the night resolution priority of k, or Unranked.
func (k ActionKind) Priority() Priority {
	if p, ok := nightPriority[k]; ok {
		return p
	}
	return Unranked
}

// Ranked reports whether k appears in the priority table.
func (k ActionKind) Ranked() bool { return k.Priority() != Unranked }

// comparePriority orders ranked priorities ascending and puts Unranked last.
func comparePriority(a, b Priority) int {
	switch {
	case a == b:
		return 0
	case a == Unranked:
		return 1
	case b == Unranked:
		return -1
	}
	return cmp.Compare(a, b)
}

// ActionRecord is one queued day or night action. Target and TwistedTarget
// keep the client's raw reference; an absent field is omitted on the wire.
type ActionRecord struct {
	Owner         Ref        `json:"owner,omitzero"`
	Target        Ref        `json:"target,omitzero"`
	Action        ActionKind `json:"action"`
	TwistedTarget Ref        `json:"twistedTarget,omitzero"`
}

// ActionQueue is a room's ordered list of pending actions.
type ActionQueue []ActionRecord

// filtered drops every entry with a null target, then every entry without an
// action label. It runs over the whole queue, not just the newest entry.
func (q ActionQueue) filtered() ActionQueue {
	out := slices.DeleteFunc(append(ActionQueue{}, q...), func(a ActionRecord) bool { return a.Target.IsNull() })
	return slices.DeleteFunc(out, func(a ActionRecord) bool { return a.Action == "" })
}

// byPriority returns a copy of q stably sorted by night priority.
func (q ActionQueue) byPriority() ActionQueue {
	out := slices.Clone(q)
	slices.SortStableFunc(out, func(a, b ActionRecord) int {
		return comparePriority(a.Action.Priority(), b.Action.Priority())
	})
	return out
}

// unranked returns the labels in q that have no night priority.
func (q ActionQueue) unranked() []ActionKind {
	var kinds []ActionKind
	for _, a := range q {
		if !a.Action.Ranked() && !slices.Contains(kinds, a.Action) {
			kinds = append(kinds, a.Action)
		}
	}
	return kinds
}
