package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/informia/informia/internal/platform/ai"
)

// State is a step in the audio-to-report workflow of a session draft.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateUploading    State = "uploading"
	StateTranscribing State = "transcribing"
	StateEditing      State = "editing"
	StateGenerating   State = "generating"
	StateCompleted    State = "completed"
	StateError        State = "error"
)

// Source records how the audio reached the server.
type Source string

const (
	SourceRecording Source = "recording"
	SourceUpload    Source = "upload"
)

func (s Source) Valid() bool {
	return s == SourceRecording || s == SourceUpload
}

// state returns the capture state the source enters from idle.
func (s Source) state() State {
	if s == SourceRecording {
		return StateRecording
	}
	return StateUploading
}

var (
	ErrNotFound          = errors.New("session draft not found")
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrInvalidSource     = errors.New("source must be recording or upload")
	ErrEmptyTranscript   = errors.New("transcript cannot be empty")
	ErrStalled           = errors.New("previous attempt did not finish, please try again")
)

var transitions = map[State][]State{
	StateIdle:         {StateRecording, StateUploading},
	StateRecording:    {StateTranscribing},
	StateUploading:    {StateTranscribing},
	StateTranscribing: {StateEditing, StateError},
	StateEditing:      {StateGenerating},
	StateGenerating:   {StateCompleted, StateError},
}

// CanTransition reports whether from -> to is an edge of the workflow.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Draft struct {
	ID         uuid.UUID    `db:"id" json:"id"`
	UserID     uuid.UUID    `db:"user_id" json:"user_id"`
	PatientID  uuid.UUID    `db:"patient_id" json:"patient_id"`
	State      State        `db:"state" json:"state"`
	Source     Source       `db:"source" json:"source,omitempty"`
	Transcript string       `db:"transcript" json:"transcript"`
	Segments   []ai.Segment `db:"segments" json:"segments"`
	ReportID   *uuid.UUID   `db:"report_id" json:"report_id,omitempty"`
	LastError  string       `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updated_at"`
}

// Transition moves the draft to next or returns ErrInvalidTransition.
func (d *Draft) Transition(next State) error {
	if !CanTransition(d.State, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.State, next)
	}
	d.State = next
	return nil
}

// Fail passes through the error state and settles where the user can act
// again: editing when a transcript exists, idle otherwise.
func (d *Draft) Fail(cause error) error {
	if err := d.Transition(StateError); err != nil {
		return err
	}
	d.LastError = cause.Error()
	if d.Transcript != "" {
		d.State = StateEditing
	} else {
		d.State = StateIdle
	}
	return nil
}

// Stalled reports whether the draft has been in flight for longer than
// after without a write. Only a crashed or disconnected request leaves a
// draft there that long.
func (d *Draft) Stalled(now time.Time, after time.Duration) bool {
	switch d.State {
	case StateRecording, StateUploading, StateTranscribing, StateGenerating:
		return now.Sub(d.UpdatedAt) > after
	}
	return false
}

// Recover settles a stalled draft the same way Fail does. Capture states
// have no error edge and go straight back to idle.
func (d *Draft) Recover(cause error) error {
	switch d.State {
	case StateRecording, StateUploading:
		d.State = StateIdle
		d.LastError = cause.Error()
		return nil
	}
	return d.Fail(cause)
}
