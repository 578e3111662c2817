package billing

import (
	"errors"
	"time"

	"github.com/informia/informia/internal/domain/profile"
)

var (
	ErrDisabled        = errors.New("billing is not configured")
	ErrNoCustomer      = errors.New("no billing customer for this account")
	ErrNoSubscription  = errors.New("no active subscription")
	ErrNotPurchasable  = errors.New("plan cannot be purchased")
	ErrForeignResource = errors.New("billing resource belongs to another account")
)

// Prices maps purchasable plans to Stripe price ids.
type Prices map[profile.PlanType]string

// PlanForPrice returns the plan sold at priceID.
func (p Prices) PlanForPrice(priceID string) (profile.PlanType, bool) {
	for plan, id := range p {
		if id == priceID && id != "" {
			return plan, true
		}
	}
	return "", false
}

type CheckoutInput struct {
	CustomerID string
	PriceID    string
	UserID     string
	Plan       profile.PlanType
	SuccessURL string
	CancelURL  string
}

type CheckoutResult struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// CheckoutStatus is the part of a Checkout Session the app acts on.
type CheckoutStatus struct {
	ID             string           `json:"id"`
	Status         string           `json:"status"`
	PaymentStatus  string           `json:"payment_status"`
	CustomerID     string           `json:"-"`
	SubscriptionID string           `json:"-"`
	UserID         string           `json:"-"`
	Plan           profile.PlanType `json:"plan"`
}

func (s *CheckoutStatus) Paid() bool {
	return s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required"
}

type Invoice struct {
	ID         string    `json:"id"`
	Number     string    `json:"number"`
	Status     string    `json:"status"`
	AmountPaid int64     `json:"amount_paid"`
	AmountDue  int64     `json:"amount_due"`
	Currency   string    `json:"currency"`
	Created    time.Time `json:"created"`
	HostedURL  string    `json:"hosted_url,omitempty"`
	PDFURL     string    `json:"pdf_url,omitempty"`
	CustomerID string    `json:"-"`
}
