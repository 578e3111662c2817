package stats

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/informia/informia/internal/domain/profile"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/stats", h.GetStats)
}

func (h *Handler) GetStats(c echo.Context) error {
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	sum, err := h.svc.Get(c.Request().Context(), userID)
	if err != nil {
		if he, ok := profile.HTTPError(err); ok {
			return he
		}
		return err
	}
	return c.JSON(http.StatusOK, sum)
}
