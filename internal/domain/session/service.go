package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/informia/informia/internal/domain/patient"
	"github.com/informia/informia/internal/domain/report"
	"github.com/informia/informia/internal/platform/ai"
	"github.com/informia/informia/internal/platform/crypto"
)

type PatientLookup interface {
	Get(ctx context.Context, userID, id uuid.UUID) (*patient.Patient, error)
}

// ReportGenerator produces a report from the draft's transcript.
type ReportGenerator interface {
	Generate(ctx context.Context, userID uuid.UUID, req report.GenerateRequest) (*report.Report, error)
}

type GenerateOptions struct {
	ReportType string `json:"report_type"`
	Model      string `json:"model"`
	Title      string `json:"title"`
	Notes      string `json:"notes"`
}

const (
	// staleAfter must exceed the longest request timeout on the
	// audio and generate routes.
	staleAfter = 10 * time.Minute
	// settleTimeout bounds writes that must land even when the request
	// context is already done.
	settleTimeout = 5 * time.Second
)

type Service struct {
	repo        Repository
	patients    PatientLookup
	transcriber ai.Transcriber
	generator   ReportGenerator
	cipher      *crypto.FieldCipher
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(repo Repository, patients PatientLookup, transcriber ai.Transcriber, generator ReportGenerator, cipher *crypto.FieldCipher, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		patients:    patients,
		transcriber: transcriber,
		generator:   generator,
		cipher:      cipher,
		logger:      logger.With().Str("component", "session").Logger(),
		now:         time.Now,
	}
}

func (s *Service) Create(ctx context.Context, userID, patientID uuid.UUID) (*Draft, error) {
	if _, err := s.patients.Get(ctx, userID, patientID); err != nil {
		return nil, err
	}
	d := &Draft{UserID: userID, PatientID: patientID, State: StateIdle}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Draft, error) {
	d, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.open(d); err != nil {
		return nil, err
	}
	if d.Stalled(s.now(), staleAfter) {
		if err := s.recoverStalled(ctx, d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (s *Service) ListByPatient(ctx context.Context, userID, patientID uuid.UUID, limit, offset int) ([]*Draft, int, error) {
	items, total, err := s.repo.ListByPatient(ctx, userID, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, d := range items {
		if err := s.open(d); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

// UploadAudio takes an idle draft through capture and transcription. A
// failed transcription leaves the draft idle with the error recorded.
func (s *Service) UploadAudio(ctx context.Context, userID, id uuid.UUID, source Source, filename string, audio io.Reader) (*Draft, error) {
	if !source.Valid() {
		return nil, ErrInvalidSource
	}
	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if err := s.advance(ctx, d, source.state(), func(d *Draft) { d.Source = source; d.LastError = "" }); err != nil {
		return nil, err
	}
	if err := s.advance(ctx, d, StateTranscribing, nil); err != nil {
		return nil, err
	}

	log := s.logger.With().Str("draft_id", d.ID.String()).Str("source", string(source)).Logger()
	t, terr := s.transcriber.Transcribe(ctx, filename, audio)
	if terr == nil && strings.TrimSpace(t.Text) == "" {
		terr = ai.ErrNoContent
	}
	if terr != nil {
		log.Error().Err(terr).Msg("transcription failed")
		if err := s.fail(ctx, d, terr); err != nil {
			log.Error().Err(err).Msg("failed to settle draft after transcription error")
			return nil, err
		}
		return d, fmt.Errorf("transcribe audio: %w", terr)
	}

	settleCtx, cancel := settleContext(ctx)
	defer cancel()
	if err := s.advance(settleCtx, d, StateEditing, func(d *Draft) {
		d.Transcript = t.Text
		d.Segments = t.Segments
	}); err != nil {
		return nil, err
	}
	log.Info().Int("segments", len(t.Segments)).Float64("duration", t.Duration).Msg("audio transcribed")
	return d, nil
}

// UpdateTranscript replaces the transcript of a draft being edited.
func (s *Service) UpdateTranscript(ctx context.Context, userID, id uuid.UUID, text string) (*Draft, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyTranscript
	}
	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if d.State != StateEditing {
		return nil, fmt.Errorf("%w: transcript can only be edited in %s, draft is %s", ErrInvalidTransition, StateEditing, d.State)
	}
	prev := d.State
	d.Transcript = text
	if err := s.save(ctx, d, prev); err != nil {
		return nil, err
	}
	return d, nil
}

// Generate turns the edited transcript into a report. Failures return the
// draft to editing so the user may retry; nothing is retried automatically.
func (s *Service) Generate(ctx context.Context, userID, id uuid.UUID, opts GenerateOptions) (*Draft, *report.Report, error) {
	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.advance(ctx, d, StateGenerating, func(d *Draft) { d.LastError = "" }); err != nil {
		return nil, nil, err
	}

	r, gerr := s.generator.Generate(ctx, userID, report.GenerateRequest{
		PatientID:  d.PatientID,
		ReportType: opts.ReportType,
		Model:      opts.Model,
		Title:      opts.Title,
		Notes:      opts.Notes,
		Transcript: d.Transcript,
	})
	if gerr != nil {
		s.logger.Warn().Err(gerr).Str("draft_id", d.ID.String()).Msg("report generation failed")
		if err := s.fail(ctx, d, gerr); err != nil {
			s.logger.Error().Err(err).Str("draft_id", d.ID.String()).Msg("failed to settle draft after generation error")
			return nil, nil, err
		}
		return d, nil, gerr
	}

	settleCtx, cancel := settleContext(ctx)
	defer cancel()
	if err := s.advance(settleCtx, d, StateCompleted, func(d *Draft) { d.ReportID = &r.ID }); err != nil {
		return nil, nil, err
	}
	return d, r, nil
}

// advance applies the transition and mutate, then saves guarded on the
// previous state.
func (s *Service) advance(ctx context.Context, d *Draft, next State, mutate func(*Draft)) error {
	prev := d.State
	if err := d.Transition(next); err != nil {
		return err
	}
	if mutate != nil {
		mutate(d)
	}
	return s.save(ctx, d, prev)
}

// fail settles the draft after a transcription or generation error. The
// write runs detached from ctx because the error is often ctx itself.
func (s *Service) fail(ctx context.Context, d *Draft, cause error) error {
	prev := d.State
	if err := d.Fail(cause); err != nil {
		return err
	}
	settleCtx, cancel := settleContext(ctx)
	defer cancel()
	return s.save(settleCtx, d, prev)
}

func (s *Service) recoverStalled(ctx context.Context, d *Draft) error {
	prev := d.State
	if err := d.Recover(ErrStalled); err != nil {
		return err
	}
	if err := s.save(ctx, d, prev); err != nil {
		return err
	}
	s.logger.Warn().Str("draft_id", d.ID.String()).Str("from", string(prev)).Str("to", string(d.State)).Msg("recovered stalled draft")
	return nil
}

func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

func (s *Service) save(ctx context.Context, d *Draft, expected State) error {
	plain := d.Transcript
	plainSegments := d.Segments
	sealed, err := s.sealed(d)
	if err != nil {
		return err
	}
	ok, err := s.repo.Save(ctx, sealed, expected)
	d.Transcript, d.Segments = plain, plainSegments
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: draft changed concurrently from %s", ErrInvalidTransition, expected)
	}
	d.UpdatedAt = sealed.UpdatedAt
	return nil
}

func (s *Service) sealed(d *Draft) (*Draft, error) {
	cp := *d
	var err error
	if cp.Transcript, err = s.cipher.Seal(d.Transcript); err != nil {
		return nil, fmt.Errorf("seal transcript: %w", err)
	}
	if len(d.Segments) > 0 {
		cp.Segments = make([]ai.Segment, len(d.Segments))
		for i, seg := range d.Segments {
			if seg.Text, err = s.cipher.Seal(seg.Text); err != nil {
				return nil, fmt.Errorf("seal segment: %w", err)
			}
			cp.Segments[i] = seg
		}
	}
	return &cp, nil
}

func (s *Service) open(d *Draft) error {
	var err error
	if d.Transcript, err = s.cipher.Open(d.Transcript); err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	for i := range d.Segments {
		if d.Segments[i].Text, err = s.cipher.Open(d.Segments[i].Text); err != nil {
			return fmt.Errorf("open segment: %w", err)
		}
	}
	return nil
}
