package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/informia/informia/internal/platform/crypto"
	"github.com/informia/informia/internal/platform/db"
)

// Service stores reports with their content sealed by the field cipher.
// Callers always see plaintext.
type Service struct {
	repo     Repository
	cipher   *crypto.FieldCipher
	logger   zerolog.Logger
	onChange func(ctx context.Context, userID uuid.UUID)
}

func NewService(repo Repository, cipher *crypto.FieldCipher, logger zerolog.Logger) *Service {
	return &Service{repo: repo, cipher: cipher, logger: logger.With().Str("component", "report").Logger()}
}

// SetChangeHook registers fn to run after a report is created or deleted.
func (s *Service) SetChangeHook(fn func(ctx context.Context, userID uuid.UUID)) {
	s.onChange = fn
}

func (s *Service) changed(ctx context.Context, userID uuid.UUID) {
	if s.onChange == nil {
		return
	}
	db.AfterCommit(ctx, func(ctx context.Context) { s.onChange(ctx, userID) })
}

func (s *Service) Create(ctx context.Context, r *Report) error {
	if r.Status == "" {
		r.Status = StatusDraft
	}
	if err := r.Validate(); err != nil {
		return err
	}
	plain := r.Content
	sealed, err := s.cipher.Seal(plain)
	if err != nil {
		return fmt.Errorf("seal report content: %w", err)
	}
	r.Content = sealed
	err = s.repo.Create(ctx, r)
	r.Content = plain
	if err != nil {
		return err
	}
	s.logger.Info().Str("user_id", r.UserID.String()).Str("report_id", r.ID.String()).
		Str("report_type", r.ReportType).Msg("report created")
	s.changed(ctx, r.UserID)
	return nil
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Report, error) {
	r, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.open(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Update rewrites the editable fields of an existing report.
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, title, content string, status Status) (*Report, error) {
	r, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if title != "" {
		r.Title = title
	}
	if status != "" {
		r.Status = status
	}
	r.Content = content
	if err := r.Validate(); err != nil {
		return nil, err
	}

	sealed, err := s.cipher.Seal(content)
	if err != nil {
		return nil, fmt.Errorf("seal report content: %w", err)
	}
	r.Content = sealed
	err = s.repo.Update(ctx, r)
	r.Content = content
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.changed(ctx, userID)
	return nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, f ListFilter, limit, offset int) ([]*Report, int, error) {
	items, total, err := s.repo.List(ctx, userID, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, r := range items {
		if err := s.open(r); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

func (s *Service) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.Count(ctx, userID)
}

// CountThisMonth counts reports created since the first day of now's month.
func (s *Service) CountThisMonth(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return s.repo.CountSince(ctx, userID, start)
}

func (s *Service) SetDriveFile(ctx context.Context, userID, id uuid.UUID, fileID string) error {
	return s.repo.SetDriveFile(ctx, userID, id, fileID)
}

func (s *Service) open(r *Report) error {
	plain, err := s.cipher.Open(r.Content)
	if err != nil {
		s.logger.Error().Err(err).Str("report_id", r.ID.String()).Msg("open report content")
		return fmt.Errorf("open report content: %w", err)
	}
	r.Content = plain
	return nil
}
