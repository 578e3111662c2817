package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/informia/informia/internal/platform/db"
)

// maxCASAttempts bounds the read-check-write loop in ConsumeCredit and
// ChangePlan when another writer moves credits_used underneath us.
const maxCASAttempts = 3

const (
	msgProfileUnavailable = "Could not verify your available credits. Please try again."
	msgQuotaExhausted     = "You have used all the reports included in your plan for this period. Upgrade your plan to continue."
)

type Service struct {
	repo     Repository
	logger   zerolog.Logger
	onChange func(ctx context.Context, userID uuid.UUID)
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "profile").Logger()}
}

// SetChangeHook registers fn to run after any write that changes a profile's
// credits or plan. It is used to invalidate cached dashboard stats.
func (s *Service) SetChangeHook(fn func(ctx context.Context, userID uuid.UUID)) {
	s.onChange = fn
}

func (s *Service) changed(ctx context.Context, userID uuid.UUID) {
	if s.onChange == nil {
		return
	}
	db.AfterCommit(ctx, func(ctx context.Context) { s.onChange(ctx, userID) })
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return s.repo.GetByID(ctx, userID)
}

func (s *Service) GetByStripeCustomer(ctx context.Context, customerID string) (*Profile, error) {
	return s.repo.GetByStripeCustomer(ctx, customerID)
}

// Ensure returns the profile for userID, creating a demo profile when the
// identity provider did not provision one.
func (s *Service) Ensure(ctx context.Context, userID uuid.UUID, email string) (*Profile, error) {
	p, err := s.repo.GetByID(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	limit, _ := PlanLimit(PlanDemo)
	created, err := s.repo.Create(ctx, &Profile{
		ID:                 userID,
		Email:              email,
		PlanType:           PlanDemo,
		CreditsLimit:       limit,
		SubscriptionStatus: Classify(0, limit),
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info().Str("user_id", userID.String()).Msg("profile created")
	}
	return s.repo.GetByID(ctx, userID)
}

func (s *Service) UpdateDetails(ctx context.Context, userID uuid.UUID, fullName, license string) (*Profile, error) {
	if len(fullName) > 200 {
		return nil, fmt.Errorf("full_name must be at most 200 characters")
	}
	if len(license) > 100 {
		return nil, fmt.Errorf("professional_license must be at most 100 characters")
	}
	if err := s.repo.UpdateDetails(ctx, userID, fullName, license); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, userID)
}

// ConsumeCredit records one generated report against the caller's quota.
//
// A profile that cannot be read or written is logged and reported as
// (false, nil) so that the report already produced is not lost. A profile
// with no remaining credits returns ErrQuotaExceeded without writing. The
// write only lands if credits_used is unchanged since it was read; on a miss
// the profile is re-read and the quota re-checked. onConsumed, when non-nil,
// receives the updated profile.
func (s *Service) ConsumeCredit(ctx context.Context, userID uuid.UUID, onConsumed func(*Profile)) (bool, error) {
	log := s.logger.With().Str("user_id", userID.String()).Logger()

	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		p, err := s.repo.GetByID(ctx, userID)
		if err != nil {
			log.Error().Err(err).Msg("fetch profile for credit consumption")
			return false, nil
		}

		newUsed := p.CreditsUsed + 1
		if newUsed > p.CreditsLimit {
			return false, ErrQuotaExceeded
		}
		status := Classify(newUsed, p.CreditsLimit)

		ok, err := s.repo.CompareAndSetCredits(ctx, userID, p.CreditsUsed, newUsed, status)
		if err != nil {
			log.Error().Err(err).Msg("update credits")
			return false, nil
		}
		if !ok {
			log.Debug().Int("attempt", attempt).Msg("credits changed concurrently, retrying")
			continue
		}

		p.CreditsUsed = newUsed
		p.SubscriptionStatus = status
		log.Info().Int("credits_used", newUsed).Int("credits_limit", p.CreditsLimit).
			Str("status", string(status)).Msg("credit consumed")
		s.changed(ctx, userID)
		if onConsumed != nil {
			onConsumed(p)
		}
		return true, nil
	}

	log.Warn().Int("attempts", maxCASAttempts).Msg("credit consumption gave up after repeated conflicts")
	return false, ErrConcurrentUpdate
}

// CheckCanGenerateReport answers from the raw counters only. The stored
// subscription_status is not consulted. The answer is advisory:
// ConsumeCredit re-checks before writing.
func (s *Service) CheckCanGenerateReport(ctx context.Context, userID uuid.UUID) Eligibility {
	p, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("fetch profile for eligibility")
		}
		return Eligibility{CanGenerate: false, Message: msgProfileUnavailable}
	}
	if p.CreditsUsed >= p.CreditsLimit {
		return Eligibility{CanGenerate: false, Message: msgQuotaExhausted}
	}
	return Eligibility{CanGenerate: true}
}

func (s *Service) Usage(ctx context.Context, userID uuid.UUID) (Usage, error) {
	p, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	return p.Usage(), nil
}

// ChangePlan moves a profile to plan, keeping credits_used and recomputing
// the quota state against the new limit in the same write.
func (s *Service) ChangePlan(ctx context.Context, userID uuid.UUID, plan PlanType) (*Profile, error) {
	limit, ok := PlanLimit(plan)
	if !ok {
		return nil, ErrInvalidPlan
	}

	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		p, err := s.repo.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		status := Classify(p.CreditsUsed, limit)
		ok, err := s.repo.CompareAndSetPlan(ctx, userID, p.CreditsUsed, plan, limit, status)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		p.PlanType = plan
		p.CreditsLimit = limit
		p.SubscriptionStatus = status
		s.logger.Info().Str("user_id", userID.String()).Str("plan", string(plan)).Msg("plan changed")
		s.changed(ctx, userID)
		return p, nil
	}
	return nil, ErrConcurrentUpdate
}

// ResetCredits starts a new quota period for userID.
func (s *Service) ResetCredits(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.ResetCredits(ctx, userID); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID.String()).Msg("credits reset")
	s.changed(ctx, userID)
	return nil
}

func (s *Service) ResetAllCredits(ctx context.Context) (int64, error) {
	n, err := s.repo.ResetAllCredits(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("profiles", n).Msg("credits reset for all profiles")
	return n, nil
}

func (s *Service) LinkStripeCustomer(ctx context.Context, userID uuid.UUID, customerID string) error {
	return s.repo.SetStripeCustomer(ctx, userID, customerID)
}

func (s *Service) SetSubscription(ctx context.Context, userID uuid.UUID, subscriptionID *string) error {
	return s.repo.SetSubscription(ctx, userID, subscriptionID)
}
