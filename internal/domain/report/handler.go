package report

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/informia/informia/internal/domain/patient"
	"github.com/informia/informia/internal/domain/profile"
	"github.com/informia/informia/internal/platform/ai"
	"github.com/informia/informia/pkg/pagination"
)

type Handler struct {
	svc *Service
	gen *Generator
}

func NewHandler(svc *Service, gen *Generator) *Handler {
	return &Handler{svc: svc, gen: gen}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reports", h.ListReports)
	api.GET("/reports/templates", h.ListTemplates)
	api.POST("/reports/generate", h.GenerateReport)
	api.GET("/reports/:id", h.GetReport)
	api.PUT("/reports/:id", h.UpdateReport)
	api.DELETE("/reports/:id", h.DeleteReport)
}

func (h *Handler) ListReports(c echo.Context) error {
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	var f ListFilter
	if v := c.QueryParam("patient_id"); v != "" {
		pid, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &pid
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), userID, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetReport(c echo.Context) error {
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.Get(c.Request().Context(), userID, id)
	if err != nil {
		return MapError(err)
	}
	return c.JSON(http.StatusOK, r)
}

type updateReportRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  Status `json:"status"`
}

func (h *Handler) UpdateReport(c echo.Context) error {
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateReportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.Update(c.Request().Context(), userID, id, req.Title, req.Content, req.Status)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return MapError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteReport(c echo.Context) error {
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), userID, id); err != nil {
		return MapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListTemplates(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"templates": h.gen.Templates(),
		"models":    ai.Models,
		"default":   ai.DefaultModel,
	})
}

func (h *Handler) GenerateReport(c echo.Context) error {
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	r, err := h.gen.Generate(c.Request().Context(), userID, req)
	if err != nil {
		return MapError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

// MapError converts report and generation errors into HTTP errors.
func MapError(err error) error {
	var inel *IneligibleError
	switch {
	case errors.As(err, &inel):
		return echo.NewHTTPError(http.StatusPaymentRequired, inel.Message)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	case errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ai.ErrInvalidModel), errors.Is(err, ErrUnknownReportType), errors.Is(err, ErrNoSource):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrGeneration):
		return echo.NewHTTPError(http.StatusBadGateway, "the report writer is unavailable, try again")
	}
	if he, ok := profile.HTTPError(err); ok {
		return he
	}
	return err
}
