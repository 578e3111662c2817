package profile

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/informia/informia/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/profile", h.GetProfile)
	api.POST("/profile", h.EnsureProfile)
	api.PUT("/profile", h.UpdateProfile)
	api.GET("/credits", h.GetCredits)
	api.GET("/credits/eligibility", h.GetEligibility)
}

// CurrentUser parses the authenticated user id from the request context.
func CurrentUser(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	return id, nil
}

func (h *Handler) GetProfile(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), userID)
	if err != nil {
		return notFoundOr500(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) EnsureProfile(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.Ensure(ctx, userID, auth.EmailFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

type updateProfileRequest struct {
	FullName            string `json:"full_name"`
	ProfessionalLicense string `json:"professional_license"`
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdateDetails(c.Request().Context(), userID, req.FullName, req.ProfessionalLicense)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "profile not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetCredits(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Usage(c.Request().Context(), userID)
	if err != nil {
		return notFoundOr500(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) GetEligibility(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.svc.CheckCanGenerateReport(c.Request().Context(), userID))
}

func notFoundOr500(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "profile not found")
	}
	return err
}

// HTTPError maps quota errors onto HTTP statuses for handlers in other
// packages that consume credits.
func HTTPError(err error) (*echo.HTTPError, bool) {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return echo.NewHTTPError(http.StatusPaymentRequired, ErrQuotaExceeded.Error()), true
	case errors.Is(err, ErrConcurrentUpdate):
		return echo.NewHTTPError(http.StatusConflict, ErrConcurrentUpdate.Error()), true
	case errors.Is(err, ErrInvalidPlan):
		return echo.NewHTTPError(http.StatusBadRequest, ErrInvalidPlan.Error()), true
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "profile not found"), true
	}
	return nil, false
}
