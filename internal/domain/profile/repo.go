package profile

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByStripeCustomer(ctx context.Context, customerID string) (*Profile, error)
	// Create inserts p unless a row with the same id exists. It reports
	// whether a row was inserted.
	Create(ctx context.Context, p *Profile) (bool, error)
	UpdateDetails(ctx context.Context, id uuid.UUID, fullName, license string) error

	// CompareAndSetCredits writes credits_used and subscription_status only if
	// credits_used still equals expected. It reports whether the row changed.
	CompareAndSetCredits(ctx context.Context, id uuid.UUID, expected, used int, status Status) (bool, error)
	// CompareAndSetPlan rewrites plan_type, credits_limit and
	// subscription_status under the same guard as CompareAndSetCredits.
	CompareAndSetPlan(ctx context.Context, id uuid.UUID, expected int, plan PlanType, limit int, status Status) (bool, error)
	// ResetCredits starts a new quota period for one profile.
	ResetCredits(ctx context.Context, id uuid.UUID) error
	ResetAllCredits(ctx context.Context) (int64, error)

	SetStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error
	SetSubscription(ctx context.Context, id uuid.UUID, subscriptionID *string) error
}
