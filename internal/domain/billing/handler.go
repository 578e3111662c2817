package billing

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/informia/informia/internal/domain/profile"
	"github.com/informia/informia/internal/platform/auth"
)

const maxWebhookBytes = int64(65536)

type Handler struct {
	svc           *Service
	webhookSecret string
	logger        zerolog.Logger
}

// NewHandler returns the billing endpoints. A nil svc answers every route
// with 501.
func NewHandler(svc *Service, webhookSecret string, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, webhookSecret: webhookSecret, logger: logger.With().Str("component", "billing").Logger()}
}

// RegisterRoutes mounts the practitioner billing API under api and the
// Stripe-facing routes under stripeGroup. The webhook is public; the other
// Stripe routes require an authenticated user.
func (h *Handler) RegisterRoutes(api *echo.Group, stripeGroup *echo.Group) {
	authed := auth.RequireRole("authenticated")
	stripeGroup.POST("/webhook", h.Webhook)
	stripeGroup.POST("/create-checkout", h.CreateCheckout, authed)
	stripeGroup.GET("/verify-session/:id", h.VerifySession, authed)

	api.POST("/billing/change-plan", h.ChangePlan)
	api.POST("/billing/cancel", h.Cancel)
	api.GET("/billing/invoices", h.ListInvoices)
	api.GET("/billing/invoices/:id/download", h.DownloadInvoice)
	api.POST("/billing/portal", h.Portal)
}

func (h *Handler) enabled() error {
	if h.svc == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, ErrDisabled.Error())
	}
	return nil
}

type planRequest struct {
	Plan profile.PlanType `json:"plan"`
}

func (h *Handler) CreateCheckout(c echo.Context) error {
	if err := h.enabled(); err != nil {
		return err
	}
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	var req planRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.CreateCheckout(c.Request().Context(), userID, req.Plan)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) VerifySession(c echo.Context) error {
	if err := h.enabled(); err != nil {
		return err
	}
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	st, err := h.svc.VerifySession(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ChangePlan(c echo.Context) error {
	if err := h.enabled(); err != nil {
		return err
	}
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	var req planRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.ChangePlan(c.Request().Context(), userID, req.Plan)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Cancel(c echo.Context) error {
	if err := h.enabled(); err != nil {
		return err
	}
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Cancel(c.Request().Context(), userID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListInvoices(c echo.Context) error {
	if err := h.enabled(); err != nil {
		return err
	}
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	if limit <= 0 || limit > 100 {
		limit = 24
	}
	items, err := h.svc.Invoices(c.Request().Context(), userID, limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) DownloadInvoice(c echo.Context) error {
	if err := h.enabled(); err != nil {
		return err
	}
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	url, err := h.svc.InvoiceDownloadURL(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) Portal(c echo.Context) error {
	if err := h.enabled(); err != nil {
		return err
	}
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	url, err := h.svc.PortalURL(c.Request().Context(), userID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": url})
}

// Webhook verifies the Stripe-Signature header before handing the event to
// the service. Unsigned or mis-signed payloads are rejected with 400.
func (h *Handler) Webhook(c echo.Context) error {
	if err := h.enabled(); err != nil {
		return err
	}
	if h.webhookSecret == "" {
		h.logger.Error().Msg("stripe webhook secret missing")
		return echo.NewHTTPError(http.StatusInternalServerError, "webhook not configured")
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	event, err := webhook.ConstructEventWithOptions(body, c.Request().Header.Get("Stripe-Signature"), h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.logger.Warn().Err(err).Msg("stripe webhook signature verification failed")
		return echo.NewHTTPError(http.StatusBadRequest, "signature verification failed")
	}

	if err := h.svc.HandleEvent(c.Request().Context(), event); err != nil {
		h.logger.Error().Err(err).Str("event_id", event.ID).Str("event_type", string(event.Type)).Msg("stripe webhook processing failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "webhook processing failed")
	}
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotPurchasable):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNoCustomer), errors.Is(err, ErrNoSubscription):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrForeignResource):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	if he, ok := profile.HTTPError(err); ok {
		return he
	}
	return err
}
