package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/informia/informia/internal/domain/patient"
	"github.com/informia/informia/internal/domain/profile"
	"github.com/informia/informia/internal/platform/ai"
)

var (
	ErrUnknownReportType = errors.New("unknown report type")
	ErrNoSource          = errors.New("notes or transcript required")
	ErrGeneration        = errors.New("report generation failed")
)

// IneligibleError is returned when the pre-flight quota check refuses a
// generation. Message is suitable for display.
type IneligibleError struct {
	Message string
}

func (e *IneligibleError) Error() string { return e.Message }

// Quota is the part of the profile service the generator depends on.
type Quota interface {
	CheckCanGenerateReport(ctx context.Context, userID uuid.UUID) profile.Eligibility
	ConsumeCredit(ctx context.Context, userID uuid.UUID, onConsumed func(*profile.Profile)) (bool, error)
}

type PatientLookup interface {
	Get(ctx context.Context, userID, id uuid.UUID) (*patient.Patient, error)
}

// TxRunner runs fn in a database transaction carried on ctx.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type GenerateRequest struct {
	PatientID  uuid.UUID `json:"patient_id"`
	ReportType string    `json:"report_type"`
	Model      string    `json:"model"`
	Title      string    `json:"title"`
	Notes      string    `json:"notes"`
	Transcript string    `json:"transcript"`
}

// Generator turns session material into a persisted report and charges one
// credit for it.
type Generator struct {
	reports   *Service
	quota     Quota
	patients  PatientLookup
	writer    ai.Writer
	templates *Templates
	inTx      TxRunner
	logger    zerolog.Logger
	now       func() time.Time
}

func NewGenerator(reports *Service, quota Quota, patients PatientLookup, writer ai.Writer, templates *Templates, inTx TxRunner, logger zerolog.Logger) *Generator {
	if inTx == nil {
		inTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Generator{
		reports:   reports,
		quota:     quota,
		patients:  patients,
		writer:    writer,
		templates: templates,
		inTx:      inTx,
		logger:    logger.With().Str("component", "report_generator").Logger(),
		now:       time.Now,
	}
}

func (g *Generator) Templates() []*Template {
	return g.templates.List()
}

// Generate checks eligibility, asks the writer for the report body, stores
// the report and consumes one credit. The store and the credit write share a
// transaction, so a report is only kept together with its credit. A refused
// quota check or a failed credit statement rolls the report back and
// Generate returns an error. Change hooks run once the transaction commits.
func (g *Generator) Generate(ctx context.Context, userID uuid.UUID, req GenerateRequest) (*Report, error) {
	if e := g.quota.CheckCanGenerateReport(ctx, userID); !e.CanGenerate {
		return nil, &IneligibleError{Message: e.Message}
	}

	model, err := ai.ResolveModel(req.Model)
	if err != nil {
		return nil, err
	}
	tmpl, ok := g.templates.Get(req.ReportType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReportType, req.ReportType)
	}
	if strings.TrimSpace(req.Notes) == "" && strings.TrimSpace(req.Transcript) == "" {
		return nil, ErrNoSource
	}

	p, err := g.patients.Get(ctx, userID, req.PatientID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	prompt, err := tmpl.Render(PromptData{
		PatientName: p.Name,
		Age:         ageAt(p.BirthDate, now),
		Date:        now.Format("02/01/2006"),
		Notes:       req.Notes,
		Transcript:  req.Transcript,
	})
	if err != nil {
		return nil, err
	}

	log := g.logger.With().Str("user_id", userID.String()).Str("model", model).Str("report_type", tmpl.Type).Logger()
	start := time.Now()
	content, err := g.writer.Complete(ctx, ai.CompletionRequest{Model: model, System: tmpl.System, Prompt: prompt})
	if err != nil {
		log.Error().Err(err).Msg("writer call failed")
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	log.Info().Dur("latency", time.Since(start)).Int("chars", len(content)).Msg("report text generated")

	title := req.Title
	if title == "" {
		title = fmt.Sprintf("%s - %s", tmpl.Title, p.Name)
	}
	r := &Report{
		UserID:     userID,
		PatientID:  p.ID,
		Title:      title,
		ReportType: tmpl.Type,
		Content:    content,
		Model:      model,
		Status:     StatusDraft,
	}

	err = g.inTx(ctx, func(ctx context.Context) error {
		if err := g.reports.Create(ctx, r); err != nil {
			return err
		}
		_, err := g.quota.ConsumeCredit(ctx, userID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.PatientName = p.Name
	return r, nil
}

func ageAt(birth *time.Time, now time.Time) int {
	if birth == nil {
		return 0
	}
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}
