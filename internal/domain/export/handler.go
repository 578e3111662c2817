package export

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/informia/informia/internal/domain/patient"
	"github.com/informia/informia/internal/domain/profile"
	"github.com/informia/informia/internal/domain/report"
)

type Handler struct {
	svc *Service
}

// NewHandler returns the export endpoints. A nil svc answers with 501.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/reports/:id/export", h.ExportReport)
	api.POST("/patients/:id/sync", h.SyncPatient)
}

func (h *Handler) ExportReport(c echo.Context) error {
	if h.svc == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, ErrDisabled.Error())
	}
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	res, err := h.svc.ExportReport(c.Request().Context(), userID, id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) SyncPatient(c echo.Context) error {
	if h.svc == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, ErrDisabled.Error())
	}
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	res, err := h.svc.SyncPatient(c.Request().Context(), userID, id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrDisabled):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	case errors.Is(err, report.ErrNotFound), errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if he, ok := profile.HTTPError(err); ok {
		return he
	}
	return echo.NewHTTPError(http.StatusBadGateway, "google export failed")
}
