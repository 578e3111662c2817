package billing

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// Gateway is the set of Stripe calls the billing service makes.
type Gateway interface {
	CreateCustomer(ctx context.Context, email, userID string) (string, error)
	CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error)
	GetCheckout(ctx context.Context, sessionID string) (*CheckoutStatus, error)
	ChangeSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) error
	CancelSubscription(ctx context.Context, subscriptionID string) error
	ListInvoices(ctx context.Context, customerID string, limit int64) ([]Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
	CreatePortal(ctx context.Context, customerID, returnURL string) (string, error)
}

type stripeGateway struct {
	sc *client.API
}

// NewStripeGateway returns a Gateway backed by the Stripe API.
func NewStripeGateway(secretKey string) Gateway {
	return &stripeGateway{sc: client.New(secretKey, nil)}
}

func (g *stripeGateway) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := &stripe.CustomerParams{
		Email:    stripe.String(email),
		Metadata: map[string]string{"user_id": userID},
	}
	params.Context = ctx
	cust, err := g.sc.Customers.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

func (g *stripeGateway) CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(in.CustomerID),
		ClientReferenceID: stripe.String(in.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata("user_id", in.UserID)
	params.AddMetadata("plan", string(in.Plan))

	sess, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{ID: sess.ID, URL: sess.URL}, nil
}

func (g *stripeGateway) GetCheckout(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := g.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, err
	}
	return checkoutStatus(sess), nil
}

func checkoutStatus(sess *stripe.CheckoutSession) *CheckoutStatus {
	st := &CheckoutStatus{
		ID:            sess.ID,
		Status:        string(sess.Status),
		PaymentStatus: string(sess.PaymentStatus),
		UserID:        sess.ClientReferenceID,
	}
	if sess.Customer != nil {
		st.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		st.SubscriptionID = sess.Subscription.ID
	}
	if sess.Metadata != nil {
		st.Plan = planOf(sess.Metadata["plan"])
		if st.UserID == "" {
			st.UserID = sess.Metadata["user_id"]
		}
	}
	return st
}

func (g *stripeGateway) ChangeSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) error {
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	sub, err := g.sc.Subscriptions.Get(subscriptionID, getParams)
	if err != nil {
		return err
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ErrNoSubscription
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.Items.Data[0].ID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx
	_, err = g.sc.Subscriptions.Update(subscriptionID, params)
	return err
}

func (g *stripeGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := g.sc.Subscriptions.Cancel(subscriptionID, params)
	return err
}

func (g *stripeGateway) ListInvoices(ctx context.Context, customerID string, limit int64) ([]Invoice, error) {
	params := &stripe.InvoiceListParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	params.Limit = stripe.Int64(limit)
	params.Single = true

	var out []Invoice
	it := g.sc.Invoices.List(params)
	for it.Next() {
		out = append(out, invoiceOf(it.Invoice()))
	}
	return out, it.Err()
}

func (g *stripeGateway) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	inv, err := g.sc.Invoices.Get(invoiceID, params)
	if err != nil {
		return nil, err
	}
	out := invoiceOf(inv)
	return &out, nil
}

func invoiceOf(inv *stripe.Invoice) Invoice {
	out := Invoice{
		ID:         inv.ID,
		Number:     inv.Number,
		Status:     string(inv.Status),
		AmountPaid: inv.AmountPaid,
		AmountDue:  inv.AmountDue,
		Currency:   string(inv.Currency),
		Created:    time.Unix(inv.Created, 0).UTC(),
		HostedURL:  inv.HostedInvoiceURL,
		PDFURL:     inv.InvoicePDF,
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	return out
}

func (g *stripeGateway) CreatePortal(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := g.sc.BillingPortalSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}
