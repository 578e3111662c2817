package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v79"

	"github.com/informia/informia/internal/domain/profile"
)

// Profiles is the part of the profile service billing drives.
type Profiles interface {
	Get(ctx context.Context, userID uuid.UUID) (*profile.Profile, error)
	GetByStripeCustomer(ctx context.Context, customerID string) (*profile.Profile, error)
	ChangePlan(ctx context.Context, userID uuid.UUID, plan profile.PlanType) (*profile.Profile, error)
	ResetCredits(ctx context.Context, userID uuid.UUID) error
	LinkStripeCustomer(ctx context.Context, userID uuid.UUID, customerID string) error
	SetSubscription(ctx context.Context, userID uuid.UUID, subscriptionID *string) error
}

// TxRunner runs fn in a database transaction carried on ctx.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Config struct {
	Prices      Prices
	FrontendURL string
}

type Service struct {
	gateway  Gateway
	profiles Profiles
	events   EventLog
	inTx     TxRunner
	cfg      Config
	logger   zerolog.Logger
}

func NewService(gateway Gateway, profiles Profiles, events EventLog, inTx TxRunner, cfg Config, logger zerolog.Logger) *Service {
	if inTx == nil {
		inTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &Service{
		gateway:  gateway,
		profiles: profiles,
		events:   events,
		inTx:     inTx,
		cfg:      cfg,
		logger:   logger.With().Str("component", "billing").Logger(),
	}
}

func planOf(s string) profile.PlanType {
	if p := profile.PlanType(s); p.Valid() {
		return p
	}
	return ""
}

func (s *Service) priceFor(plan profile.PlanType) (string, error) {
	price := s.cfg.Prices[plan]
	if price == "" {
		return "", ErrNotPurchasable
	}
	return price, nil
}

// ensureCustomer returns the Stripe customer of p, creating and linking one
// when missing.
func (s *Service) ensureCustomer(ctx context.Context, p *profile.Profile) (string, error) {
	if p.StripeCustomerID != nil && *p.StripeCustomerID != "" {
		return *p.StripeCustomerID, nil
	}
	id, err := s.gateway.CreateCustomer(ctx, p.Email, p.ID.String())
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.profiles.LinkStripeCustomer(ctx, p.ID, id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Service) CreateCheckout(ctx context.Context, userID uuid.UUID, plan profile.PlanType) (*CheckoutResult, error) {
	price, err := s.priceFor(plan)
	if err != nil {
		return nil, err
	}
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, p)
	if err != nil {
		return nil, err
	}
	res, err := s.gateway.CreateCheckout(ctx, CheckoutInput{
		CustomerID: customerID,
		PriceID:    price,
		UserID:     userID.String(),
		Plan:       plan,
		SuccessURL: s.cfg.FrontendURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.cfg.FrontendURL + "/billing/cancel",
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	s.logger.Info().Str("user_id", userID.String()).Str("plan", string(plan)).Str("session_id", res.ID).Msg("checkout session created")
	return res, nil
}

// VerifySession reports the state of a checkout started by userID and
// applies the purchased plan once the session is paid.
func (s *Service) VerifySession(ctx context.Context, userID uuid.UUID, sessionID string) (*CheckoutStatus, error) {
	st, err := s.gateway.GetCheckout(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	if st.UserID != userID.String() {
		return nil, ErrForeignResource
	}
	if st.Paid() {
		if err := s.applyCheckout(ctx, st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (s *Service) applyCheckout(ctx context.Context, st *CheckoutStatus) error {
	userID, err := uuid.Parse(st.UserID)
	if err != nil {
		return fmt.Errorf("checkout %s has no valid user reference", st.ID)
	}
	if st.Plan == "" {
		return fmt.Errorf("checkout %s has no plan", st.ID)
	}
	if st.CustomerID != "" {
		if err := s.profiles.LinkStripeCustomer(ctx, userID, st.CustomerID); err != nil {
			return err
		}
	}
	if st.SubscriptionID != "" {
		sub := st.SubscriptionID
		if err := s.profiles.SetSubscription(ctx, userID, &sub); err != nil {
			return err
		}
	}
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return err
	}
	if p.PlanType == st.Plan {
		return nil
	}
	_, err = s.profiles.ChangePlan(ctx, userID, st.Plan)
	return err
}

// ChangePlan moves an existing subscription to another paid plan.
func (s *Service) ChangePlan(ctx context.Context, userID uuid.UUID, plan profile.PlanType) (*profile.Profile, error) {
	price, err := s.priceFor(plan)
	if err != nil {
		return nil, err
	}
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.StripeSubscriptionID == nil || *p.StripeSubscriptionID == "" {
		return nil, ErrNoSubscription
	}
	if err := s.gateway.ChangeSubscriptionPrice(ctx, *p.StripeSubscriptionID, price); err != nil {
		return nil, fmt.Errorf("change subscription: %w", err)
	}
	return s.profiles.ChangePlan(ctx, userID, plan)
}

// Cancel ends the subscription and returns the account to the demo plan.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID) (*profile.Profile, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.StripeSubscriptionID == nil || *p.StripeSubscriptionID == "" {
		return nil, ErrNoSubscription
	}
	if err := s.gateway.CancelSubscription(ctx, *p.StripeSubscriptionID); err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}
	if err := s.profiles.SetSubscription(ctx, userID, nil); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID.String()).Msg("subscription cancelled")
	return s.profiles.ChangePlan(ctx, userID, profile.PlanDemo)
}

func (s *Service) Invoices(ctx context.Context, userID uuid.UUID, limit int64) ([]Invoice, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.StripeCustomerID == nil {
		return []Invoice{}, nil
	}
	out, err := s.gateway.ListInvoices(ctx, *p.StripeCustomerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	if out == nil {
		out = []Invoice{}
	}
	return out, nil
}

// InvoiceDownloadURL returns the PDF link of an invoice owned by userID.
func (s *Service) InvoiceDownloadURL(ctx context.Context, userID uuid.UUID, invoiceID string) (string, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if p.StripeCustomerID == nil {
		return "", ErrNoCustomer
	}
	inv, err := s.gateway.GetInvoice(ctx, invoiceID)
	if err != nil {
		return "", fmt.Errorf("get invoice: %w", err)
	}
	if inv.CustomerID != *p.StripeCustomerID {
		return "", ErrForeignResource
	}
	if inv.PDFURL != "" {
		return inv.PDFURL, nil
	}
	return inv.HostedURL, nil
}

func (s *Service) PortalURL(ctx context.Context, userID uuid.UUID) (string, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if p.StripeCustomerID == nil {
		return "", ErrNoCustomer
	}
	url, err := s.gateway.CreatePortal(ctx, *p.StripeCustomerID, s.cfg.FrontendURL+"/settings/billing")
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return url, nil
}

// HandleEvent applies a verified webhook event. The event id is recorded in
// the same transaction as its effects, so a failed event is redelivered
// and a processed one is skipped. Events for customers with no profile are
// acknowledged and dropped.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	log := s.logger.With().Str("event_id", event.ID).Str("event_type", string(event.Type)).Logger()
	return s.inTx(ctx, func(ctx context.Context) error {
		fresh, err := s.events.MarkProcessed(ctx, event.ID, string(event.Type))
		if err != nil {
			return err
		}
		if !fresh {
			log.Debug().Msg("duplicate webhook event skipped")
			return nil
		}
		err = s.apply(ctx, event)
		if errors.Is(err, profile.ErrNotFound) {
			log.Warn().Err(err).Msg("webhook event for unknown account")
			return nil
		}
		return err
	})
}

func (s *Service) apply(ctx context.Context, event stripe.Event) error {
	if event.Data == nil {
		return fmt.Errorf("event %s has no data", event.ID)
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		st := checkoutStatus(&sess)
		if !st.Paid() {
			return nil
		}
		return s.applyCheckout(ctx, st)

	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.subscriptionUpdated(ctx, event, &sub)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		p, err := s.profileForCustomer(ctx, sub.Customer)
		if err != nil {
			return err
		}
		if p.StripeSubscriptionID == nil || *p.StripeSubscriptionID != sub.ID {
			s.ignoreSubscription(event, p, sub.ID)
			return nil
		}
		if err := s.profiles.SetSubscription(ctx, p.ID, nil); err != nil {
			return err
		}
		_, err = s.profiles.ChangePlan(ctx, p.ID, profile.PlanDemo)
		return err

	case "invoice.paid":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		if inv.BillingReason != stripe.InvoiceBillingReasonSubscriptionCycle {
			return nil
		}
		p, err := s.profileForCustomer(ctx, inv.Customer)
		if err != nil {
			return err
		}
		s.logger.Info().Str("user_id", p.ID.String()).Msg("billing period renewed")
		return s.profiles.ResetCredits(ctx, p.ID)
	}
	return nil
}

// subscriptionUpdated only acts on the profile's current subscription. An
// update for another one is attached when the profile has none.
func (s *Service) subscriptionUpdated(ctx context.Context, event stripe.Event, sub *stripe.Subscription) error {
	p, err := s.profileForCustomer(ctx, sub.Customer)
	if err != nil {
		return err
	}
	current := p.StripeSubscriptionID != nil && *p.StripeSubscriptionID == sub.ID
	if p.StripeSubscriptionID != nil && !current {
		s.ignoreSubscription(event, p, sub.ID)
		return nil
	}
	switch sub.Status {
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncompleteExpired:
		if !current {
			s.ignoreSubscription(event, p, sub.ID)
			return nil
		}
		if err := s.profiles.SetSubscription(ctx, p.ID, nil); err != nil {
			return err
		}
		_, err := s.profiles.ChangePlan(ctx, p.ID, profile.PlanDemo)
		return err
	}

	id := sub.ID
	if err := s.profiles.SetSubscription(ctx, p.ID, &id); err != nil {
		return err
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return nil
	}
	plan, ok := s.cfg.Prices.PlanForPrice(sub.Items.Data[0].Price.ID)
	if !ok || plan == p.PlanType {
		return nil
	}
	_, err = s.profiles.ChangePlan(ctx, p.ID, plan)
	return err
}

func (s *Service) ignoreSubscription(event stripe.Event, p *profile.Profile, subID string) {
	current := ""
	if p.StripeSubscriptionID != nil {
		current = *p.StripeSubscriptionID
	}
	s.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("user_id", p.ID.String()).
		Str("subscription_id", subID).
		Str("current_subscription_id", current).
		Msg("ignoring event for a subscription the profile no longer holds")
}

func (s *Service) profileForCustomer(ctx context.Context, c *stripe.Customer) (*profile.Profile, error) {
	if c == nil || c.ID == "" {
		return nil, fmt.Errorf("event has no customer")
	}
	p, err := s.profiles.GetByStripeCustomer(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("stripe customer %s: %w", c.ID, err)
	}
	return p, nil
}
