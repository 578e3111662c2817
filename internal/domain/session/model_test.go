package session

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]State{
		{StateIdle, StateRecording},
		{StateIdle, StateUploading},
		{StateRecording, StateTranscribing},
		{StateUploading, StateTranscribing},
		{StateTranscribing, StateEditing},
		{StateTranscribing, StateError},
		{StateEditing, StateGenerating},
		{StateGenerating, StateCompleted},
		{StateGenerating, StateError},
	}
	for _, tr := range allowed {
		if !CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be allowed", tr[0], tr[1])
		}
	}

	denied := [][2]State{
		{StateIdle, StateEditing},
		{StateIdle, StateGenerating},
		{StateRecording, StateEditing},
		{StateEditing, StateCompleted},
		{StateCompleted, StateGenerating},
		{StateCompleted, StateIdle},
		{StateError, StateEditing},
		{StateGenerating, StateEditing},
	}
	for _, tr := range denied {
		if CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be denied", tr[0], tr[1])
		}
	}
}

func TestDraft_Transition(t *testing.T) {
	d := &Draft{State: StateIdle}
	if err := d.Transition(StateGenerating); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if d.State != StateIdle {
		t.Errorf("state should be unchanged after a rejected transition, got %s", d.State)
	}
	if err := d.Transition(StateUploading); err != nil {
		t.Fatal(err)
	}
}

func TestDraft_FailSettles(t *testing.T) {
	withTranscript := &Draft{State: StateGenerating, Transcript: "texto"}
	if err := withTranscript.Fail(fmt.Errorf("timeout")); err != nil {
		t.Fatal(err)
	}
	if withTranscript.State != StateEditing || withTranscript.LastError != "timeout" {
		t.Errorf("expected editing with error recorded, got %s %q", withTranscript.State, withTranscript.LastError)
	}

	noTranscript := &Draft{State: StateTranscribing}
	if err := noTranscript.Fail(fmt.Errorf("bad audio")); err != nil {
		t.Fatal(err)
	}
	if noTranscript.State != StateIdle {
		t.Errorf("expected idle, got %s", noTranscript.State)
	}

	editing := &Draft{State: StateEditing, Transcript: "x"}
	if err := editing.Fail(fmt.Errorf("x")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("editing cannot fail directly, got %v", err)
	}
}

func TestSource(t *testing.T) {
	if SourceRecording.state() != StateRecording || SourceUpload.state() != StateUploading {
		t.Error("unexpected capture states")
	}
	if Source("camera").Valid() {
		t.Error("unknown source should be invalid")
	}
}

func TestDraft_Stalled(t *testing.T) {
	now := time.Now()
	old := now.Add(-time.Hour)
	cases := []struct {
		state   State
		updated time.Time
		want    bool
	}{
		{StateTranscribing, old, true},
		{StateGenerating, old, true},
		{StateRecording, old, true},
		{StateTranscribing, now, false},
		{StateEditing, old, false},
		{StateIdle, old, false},
	}
	for _, tc := range cases {
		d := &Draft{State: tc.state, UpdatedAt: tc.updated}
		if got := d.Stalled(now, 10*time.Minute); got != tc.want {
			t.Errorf("Stalled(%s, %v) = %v, want %v", tc.state, now.Sub(tc.updated), got, tc.want)
		}
	}
}
