// Package stats serves the dashboard summary of a practitioner's account.
package stats

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/informia/informia/internal/domain/profile"
	"github.com/informia/informia/internal/platform/cache"
)

const cacheTTL = 60 * time.Second

type Summary struct {
	Patients          int       `json:"patients"`
	ReportsThisMonth  int       `json:"reportsThisMonth"`
	TotalReports      int       `json:"totalReports"`
	CreditsUsed       int       `json:"creditsUsed"`
	CreditsLimit      int       `json:"creditsLimit"`
	CreditsRemaining  int       `json:"creditsRemaining"`
	SubscriptionState string    `json:"subscriptionStatus"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

type PatientCounter interface {
	Count(ctx context.Context, userID uuid.UUID) (int, error)
}

type ReportCounter interface {
	Count(ctx context.Context, userID uuid.UUID) (int, error)
	CountThisMonth(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)
}

type ProfileReader interface {
	Get(ctx context.Context, userID uuid.UUID) (*profile.Profile, error)
}

type Service struct {
	patients PatientCounter
	reports  ReportCounter
	profiles ProfileReader
	cache    cache.Cache
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(patients PatientCounter, reports ReportCounter, profiles ProfileReader, c cache.Cache, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		reports:  reports,
		profiles: profiles,
		cache:    c,
		logger:   logger.With().Str("component", "stats").Logger(),
		now:      time.Now,
	}
}

func cacheKey(userID uuid.UUID) string {
	return "stats:" + userID.String()
}

// Get returns the cached summary for userID, computing it on a miss. Cache
// failures are logged and fall through to the database.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	key := cacheKey(userID)
	if s.cache != nil {
		var cached Summary
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("stats cache read failed")
		}
		if hit {
			return &cached, nil
		}
	}

	sum, err := s.compute(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, sum, cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("stats cache write failed")
		}
	}
	return sum, nil
}

func (s *Service) compute(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	now := s.now()
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	patients, err := s.patients.Count(ctx, userID)
	if err != nil {
		return nil, err
	}
	total, err := s.reports.Count(ctx, userID)
	if err != nil {
		return nil, err
	}
	month, err := s.reports.CountThisMonth(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Patients:          patients,
		ReportsThisMonth:  month,
		TotalReports:      total,
		CreditsUsed:       p.CreditsUsed,
		CreditsLimit:      p.CreditsLimit,
		CreditsRemaining:  p.Remaining(),
		SubscriptionState: string(p.Status()),
		GeneratedAt:       now.UTC(),
	}, nil
}

// Invalidate drops the cached summary of userID. It matches the change hook
// signature of the profile, patient and report services.
func (s *Service) Invalidate(ctx context.Context, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(userID)); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("stats cache invalidation failed")
	}
}
