package main

import (
	"encoding/json"
	"fmt"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"
)

func TestDayActionFilterDropsMalformed(t *testing.T) {
	e, rec := newTestEngine()

	dispatch(e, "c1", EventDayAction, `{"roomId":"R","owner":1,"target":2,"action":"vote"}`)
	dispatch(e, "c1", EventDayAction, `{"roomId":"R","owner":3,"target":null,"action":"vote"}`)
	dispatch(e, "c1", EventDayAction, `{"roomId":"R","owner":4,"target":5}`)
	dispatch(e, "c1", EventDayAction, `{"roomId":"R","owner":6,"action":"skip"}`)

	frames := rec.sent(EventAllDayAction)
	want := []string{
		`[{"owner":1,"target":2,"action":"vote"}]`,
		`[{"owner":1,"target":2,"action":"vote"}]`,
		`[{"owner":1,"target":2,"action":"vote"}]`,
		`[{"owner":1,"target":2,"action":"vote"},{"owner":6,"action":"skip"}]`,
	}
	var got []string
	for _, f := range frames {
		got = append(got, f.Data)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("allDayAction broadcasts (-want +got):\n%s", diff)
	}
}

func TestDayActionFilterIsTotal(t *testing.T) {
	type entry struct {
		Target uint8
		Action uint8
	}
	targets := []string{`"target":null,`, ``, `"target":7,`, `"target":"e1",`}
	actions := []string{`"action":null`, `"action":""`, `"action":"vote"`, `"action":"skip"`}

	f := func(entries []entry) bool {
		e, rec := newTestEngine()
		for i, en := range entries {
			data := fmt.Sprintf(`{"roomId":"R","owner":%d,%s%s}`, i, targets[en.Target%4], actions[en.Action%4])
			dispatch(e, "c1", EventDayAction, data)

			var queue []map[string]json.RawMessage
			if err := json.Unmarshal([]byte(rec.last(t, EventAllDayAction).Data), &queue); err != nil {
				t.Logf("decode: %v", err)
				return false
			}
			for _, a := range queue {
				if string(a["target"]) == "null" {
					t.Logf("null target survived: %v", a)
					return false
				}
				if act := string(a["action"]); act == "" || act == `""` || act == "null" {
					t.Logf("missing action survived: %v", a)
					return false
				}
			}
		}
		return true
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 100}); err != nil {
		t.Error(err)
	}
}

func TestResetDayActionIsSilentAndIdempotent(t *testing.T) {
	e, rec := newTestEngine()
	e.DayAction("c1", "R", ActionRecord{Owner: RefOf(1), Target: RefOf(2), Action: "vote"})
	before := rec.count()

	e.ResetDayAction("R")
	e.ResetDayAction("R")

	if rec.count() != before {
		t.Errorf("resetDayAction must not broadcast")
	}
	e.DayAction("c1", "R", ActionRecord{Owner: RefOf(3), Target: RefOf(4), Action: "vote"})
	if got, want := rec.last(t, EventAllDayAction).Data, `[{"owner":3,"target":4,"action":"vote"}]`; got != want {
		t.Errorf("queue after reset = %s, want %s", got, want)
	}
}

func TestVoteOverwrite(t *testing.T) {
	f := func(voter uint8, first, second int16, secondNull bool) bool {
		e, rec := newTestEngine()
		v := fmt.Sprintf("v%d", voter)
		dispatch(e, "c1", EventSubmitVote, fmt.Sprintf(`{"roomId":"R","voterId":%q,"target":%d}`, v, first))

		want := fmt.Sprint(second)
		if secondNull {
			want = "null"
		}
		dispatch(e, "c1", EventSubmitVote, fmt.Sprintf(`{"roomId":"R","voterId":%q,"target":%s}`, v, want))

		var tally map[string]json.RawMessage
		if err := json.Unmarshal([]byte(rec.last(t, EventUpdateVotes).Data), &tally); err != nil {
			t.Logf("decode: %v", err)
			return false
		}
		return len(tally) == 1 && string(tally[v]) == want
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 100}); err != nil {
		t.Error(err)
	}
}

func TestVoteTallyKeepsFirstVoteOrder(t *testing.T) {
	e, rec := newTestEngine()

	e.SubmitVote("R", "carol", RefOf("alice"))
	e.SubmitVote("R", "alice", RefOf(nil))
	e.SubmitVote("R", "bob", Ref{})
	e.SubmitVote("R", "carol", RefOf("bob"))

	want := `{"carol":"bob","alice":null,"bob":null}`
	if got := rec.last(t, EventUpdateVotes).Data; got != want {
		t.Errorf("tally = %s, want %s", got, want)
	}
}

func TestVoteTallyVotersAfterReset(t *testing.T) {
	var v VoteTally
	v.Set("carol", RefOf(1))
	v.Set("alice", RefOf(2))
	v.Set("carol", RefOf(3))
	if diff := cmp.Diff([]string{"carol", "alice"}, v.Voters()); diff != "" {
		t.Errorf("voters (-want +got):\n%s", diff)
	}

	v.Reset()
	v.Set("bob", RefOf(nil))
	if diff := cmp.Diff([]string{"bob"}, v.Voters()); diff != "" {
		t.Errorf("voters after reset (-want +got):\n%s", diff)
	}
}

func TestClearVotesAcceptsBareRoomID(t *testing.T) {
	e, rec := newTestEngine()
	dispatch(e, "c1", EventSubmitVote, `{"roomId":"R","voterId":"a","target":"b"}`)
	before := rec.count()

	dispatch(e, "c1", EventClearVotes, `"R"`)
	if rec.count() != before {
		t.Errorf("clearVotes must not broadcast")
	}

	dispatch(e, "c1", EventSubmitVote, `{"roomId":"R","voterId":"c","target":"d"}`)
	if got, want := rec.last(t, EventUpdateVotes).Data, `{"c":"d"}`; got != want {
		t.Errorf("tally after clear = %s, want %s", got, want)
	}

	dispatch(e, "c1", EventClearVotes, `{"roomId":"R"}`)
	dispatch(e, "c1", EventSubmitVote, `{"roomId":"R","voterId":"e","target":null}`)
	if got, want := rec.last(t, EventUpdateVotes).Data, `{"e":null}`; got != want {
		t.Errorf("tally after object clear = %s, want %s", got, want)
	}
}

func TestSetDayStoresFlag(t *testing.T) {
	e, rec := newTestEngine()

	dispatch(e, "c1", EventSendSetDay, `{"roomId":"R","dayTime":true}`)

	if got, want := rec.last(t, EventSendAllSetDay).Data, `{"dayTime":true}`; got != want {
		t.Errorf("sendAllSetDay = %s, want %s", got, want)
	}
	if !e.Rooms().Snapshots()[0].DayTime {
		t.Errorf("room should be in day phase")
	}

	dispatch(e, "c1", EventSendSetDay, `{"roomId":"R","dayTime":false}`)
	if e.Rooms().Snapshots()[0].DayTime {
		t.Errorf("room should be in night phase")
	}
}
