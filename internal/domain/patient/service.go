package patient

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo     Repository
	logger   zerolog.Logger
	onChange func(ctx context.Context, userID uuid.UUID)
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "patient").Logger()}
}

// SetChangeHook registers fn to run after a patient is created or deleted.
func (s *Service) SetChangeHook(fn func(ctx context.Context, userID uuid.UUID)) {
	s.onChange = fn
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", p.UserID.String()).Str("patient_id", p.ID.String()).Msg("patient created")
	if s.onChange != nil {
		s.onChange(ctx, p.UserID)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, userID, id)
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID.String()).Str("patient_id", id.String()).Msg("patient deleted")
	if s.onChange != nil {
		s.onChange(ctx, userID)
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, userID, f, limit, offset)
}

func (s *Service) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.Count(ctx, userID)
}
