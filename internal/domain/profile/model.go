package profile

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type PlanType string

const (
	PlanProfessional PlanType = "professional"
	PlanClinic       PlanType = "clinic"
	PlanDemo         PlanType = "demo"
)

// planLimits are the monthly report credits granted by each plan.
var planLimits = map[PlanType]int{
	PlanProfessional: 100,
	PlanClinic:       500,
	PlanDemo:         10,
}

// PlanLimit returns the credit ceiling for plan.
func PlanLimit(plan PlanType) (int, bool) {
	limit, ok := planLimits[plan]
	return limit, ok
}

func (p PlanType) Valid() bool {
	_, ok := planLimits[p]
	return ok
}

var (
	ErrNotFound         = errors.New("profile not found")
	ErrQuotaExceeded    = errors.New("report quota exhausted for the current period")
	ErrInvalidPlan      = errors.New("invalid plan type")
	ErrConcurrentUpdate = errors.New("profile was modified concurrently, try again")
)

// Profile maps to the profiles table. ID is the identity provider's user id.
type Profile struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	Email                string    `db:"email" json:"email"`
	FullName             string    `db:"full_name" json:"full_name"`
	ProfessionalLicense  string    `db:"professional_license" json:"professional_license"`
	PlanType             PlanType  `db:"plan_type" json:"plan_type"`
	CreditsUsed          int       `db:"credits_used" json:"credits_used"`
	CreditsLimit         int       `db:"credits_limit" json:"credits_limit"`
	SubscriptionStatus   Status    `db:"subscription_status" json:"subscription_status"`
	StripeCustomerID     *string   `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string   `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	PeriodStart          time.Time `db:"period_start" json:"period_start"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// Status recomputes the quota state from the counters. The stored
// SubscriptionStatus is a projection and may lag.
func (p *Profile) Status() Status {
	return Classify(p.CreditsUsed, p.CreditsLimit)
}

func (p *Profile) Remaining() int {
	if r := p.CreditsLimit - p.CreditsUsed; r > 0 {
		return r
	}
	return 0
}

// Usage is the credit summary shown on the dashboard.
type Usage struct {
	Plan        PlanType  `json:"plan_type"`
	Used        int       `json:"credits_used"`
	Limit       int       `json:"credits_limit"`
	Remaining   int       `json:"credits_remaining"`
	Percentage  float64   `json:"percentage"`
	Status      Status    `json:"status"`
	PeriodStart time.Time `json:"period_start"`
}

func (p *Profile) Usage() Usage {
	var pct float64
	if p.CreditsLimit > 0 {
		pct = float64(p.CreditsUsed) / float64(p.CreditsLimit) * 100
	}
	return Usage{
		Plan:        p.PlanType,
		Used:        p.CreditsUsed,
		Limit:       p.CreditsLimit,
		Remaining:   p.Remaining(),
		Percentage:  pct,
		Status:      p.Status(),
		PeriodStart: p.PeriodStart,
	}
}

// Eligibility is the advisory answer to "may this user generate a report now".
type Eligibility struct {
	CanGenerate bool   `json:"canGenerate"`
	Message     string `json:"message,omitempty"`
}
