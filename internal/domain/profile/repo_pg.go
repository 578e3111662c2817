package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/informia/informia/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const profileCols = `id, email, full_name, professional_license, plan_type,
	credits_used, credits_limit, subscription_status,
	stripe_customer_id, stripe_subscription_id, period_start, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.ProfessionalLicense, &p.PlanType,
		&p.CreditsUsed, &p.CreditsLimit, &p.SubscriptionStatus,
		&p.StripeCustomerID, &p.StripeSubscriptionID, &p.PeriodStart, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return scanProfile(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE id = $1`, id))
}

func (r *repoPG) GetByStripeCustomer(ctx context.Context, customerID string) (*Profile, error) {
	return scanProfile(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE stripe_customer_id = $1`, customerID))
}

func (r *repoPG) Create(ctx context.Context, p *Profile) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO profiles (id, email, full_name, professional_license, plan_type,
			credits_used, credits_limit, subscription_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Email, p.FullName, p.ProfessionalLicense, p.PlanType,
		p.CreditsUsed, p.CreditsLimit, p.SubscriptionStatus)
	if err != nil {
		return false, fmt.Errorf("insert profile: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) UpdateDetails(ctx context.Context, id uuid.UUID, fullName, license string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE profiles SET full_name = $2, professional_license = $3, updated_at = NOW()
		WHERE id = $1`, id, fullName, license)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) CompareAndSetCredits(ctx context.Context, id uuid.UUID, expected, used int, status Status) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE profiles SET credits_used = $3, subscription_status = $4, updated_at = NOW()
		WHERE id = $1 AND credits_used = $2`, id, expected, used, status)
	if err != nil {
		return false, fmt.Errorf("update credits: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) CompareAndSetPlan(ctx context.Context, id uuid.UUID, expected int, plan PlanType, limit int, status Status) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE profiles SET plan_type = $3, credits_limit = $4, subscription_status = $5, updated_at = NOW()
		WHERE id = $1 AND credits_used = $2`, id, expected, plan, limit, status)
	if err != nil {
		return false, fmt.Errorf("update plan: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) ResetCredits(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE profiles SET credits_used = 0, subscription_status = $2,
			period_start = NOW(), updated_at = NOW()
		WHERE id = $1`, id, StatusActive)
	if err != nil {
		return fmt.Errorf("reset credits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ResetAllCredits(ctx context.Context) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE profiles SET credits_used = 0, subscription_status = $1,
			period_start = NOW(), updated_at = NOW()`, StatusActive)
	if err != nil {
		return 0, fmt.Errorf("reset all credits: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) SetStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE profiles SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`, id, customerID)
	return err
}

func (r *repoPG) SetSubscription(ctx context.Context, id uuid.UUID, subscriptionID *string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE profiles SET stripe_subscription_id = $2, updated_at = NOW() WHERE id = $1`, id, subscriptionID)
	return err
}
