package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/informia/informia/internal/domain/profile"
	"github.com/informia/informia/internal/platform/auth"
)

const testWebhookSecret = "whsec_test_secret"

func sign(payload string, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func webhookRequest(e *echo.Echo, payload, signature string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func userRequest(e *echo.Echo, method, body string, userID uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithUser(req.Context(), userID.String()))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func expectCode(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError %d, got %v", code, err)
	}
	if he.Code != code {
		t.Errorf("expected status %d, got %d", code, he.Code)
	}
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	svc, _, _, events := newTestService()
	h := NewHandler(svc, testWebhookSecret, zerolog.Nop())
	e := echo.New()
	payload := `{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`

	for name, sig := range map[string]string{
		"missing":   "",
		"wrong key": sign(payload, "whsec_other", time.Now()),
		"stale":     sign(payload, testWebhookSecret, time.Now().Add(-time.Hour)),
		"malformed": "garbage",
	} {
		c, _ := webhookRequest(e, payload, sig)
		expectCode(t, h.Webhook(c), http.StatusBadRequest)
		if len(events) != 0 {
			t.Fatalf("%s: rejected event must not be recorded", name)
		}
	}
}

func TestWebhook_AppliesSignedEvent(t *testing.T) {
	svc, _, profiles, events := newTestService()
	p := profiles.add(profile.PlanClinic, 321)
	p.StripeCustomerID = strPtr("cus_1")
	h := NewHandler(svc, testWebhookSecret, zerolog.Nop())
	e := echo.New()

	payload := `{"id":"evt_42","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1","object":"invoice","customer":"cus_1","billing_reason":"subscription_cycle"}}}`
	c, rec := webhookRequest(e, payload, sign(payload, testWebhookSecret, time.Now()))

	if err := h.Webhook(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"received":true`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if p.CreditsUsed != 0 {
		t.Errorf("credits should be reset, got %d", p.CreditsUsed)
	}
	if events["evt_42"] != "invoice.paid" {
		t.Error("event not recorded")
	}
}

func TestHandler_DisabledReturns501(t *testing.T) {
	h := NewHandler(nil, "", zerolog.Nop())
	e := echo.New()
	c, _ := userRequest(e, http.MethodPost, `{"plan":"clinic"}`, uuid.New())
	expectCode(t, h.CreateCheckout(c), http.StatusNotImplemented)

	c, _ = webhookRequest(e, `{}`, "")
	expectCode(t, h.Webhook(c), http.StatusNotImplemented)
}

func TestHandler_CreateCheckout(t *testing.T) {
	svc, _, profiles, _ := newTestService()
	p := profiles.add(profile.PlanDemo, 0)
	h := NewHandler(svc, testWebhookSecret, zerolog.Nop())
	e := echo.New()

	c, rec := userRequest(e, http.MethodPost, `{"plan":"professional"}`, p.ID)
	if err := h.CreateCheckout(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"session_id":"cs_test_1"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c, _ = userRequest(e, http.MethodPost, `{"plan":"demo"}`, p.ID)
	expectCode(t, h.CreateCheckout(c), http.StatusBadRequest)
}

func TestHandler_CancelWithoutSubscription(t *testing.T) {
	svc, _, profiles, _ := newTestService()
	p := profiles.add(profile.PlanProfessional, 0)
	h := NewHandler(svc, testWebhookSecret, zerolog.Nop())

	c, _ := userRequest(echo.New(), http.MethodPost, "", p.ID)
	expectCode(t, h.Cancel(c), http.StatusConflict)
}

func TestHandler_ForeignSessionIsNotFound(t *testing.T) {
	svc, gw, profiles, _ := newTestService()
	p := profiles.add(profile.PlanDemo, 0)
	gw.status = &CheckoutStatus{ID: "cs_1", PaymentStatus: "paid", UserID: uuid.NewString(), Plan: profile.PlanClinic}
	h := NewHandler(svc, testWebhookSecret, zerolog.Nop())

	c, _ := userRequest(echo.New(), http.MethodGet, "", p.ID)
	c.SetParamNames("id")
	c.SetParamValues("cs_1")
	expectCode(t, h.VerifySession(c), http.StatusNotFound)
}
