package session

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/informia/informia/internal/domain/profile"
	"github.com/informia/informia/internal/domain/report"
	"github.com/informia/informia/internal/platform/ai"
	"github.com/informia/informia/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/sessions", h.ListSessions)
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions/:id", h.GetSession)
	api.POST("/sessions/:id/audio", h.UploadAudio)
	api.PUT("/sessions/:id/transcript", h.UpdateTranscript)
	api.POST("/sessions/:id/generate", h.Generate)
}

type createSessionRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
}

func (h *Handler) CreateSession(c echo.Context) error {
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	d, err := h.svc.Create(c.Request().Context(), userID, req.PatientID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetSession(c echo.Context) error {
	userID, id, err := ids(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Get(c.Request().Context(), userID, id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListSessions(c echo.Context) error {
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return err
	}
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), userID, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// UploadAudio accepts a multipart form with an "audio" file and an optional
// "source" field (recording or upload).
func (h *Handler) UploadAudio(c echo.Context) error {
	userID, id, err := ids(c)
	if err != nil {
		return err
	}
	source := Source(c.FormValue("source"))
	if source == "" {
		source = SourceUpload
	}
	if !source.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, ErrInvalidSource.Error())
	}
	fh, err := c.FormFile("audio")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "audio file is required")
	}
	if fh.Size == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, ai.ErrEmptyAudio.Error())
	}
	if err := ValidateAudio(fh.Filename, fh.Header.Get(echo.HeaderContentType), fh.Size); err != nil {
		if errors.Is(err, ErrAudioTooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read audio file")
	}
	defer f.Close()

	d, err := h.svc.UploadAudio(c.Request().Context(), userID, id, source, fh.Filename, f)
	if err != nil {
		if d != nil {
			// transcription failed; the draft is usable again
			return echo.NewHTTPError(http.StatusBadGateway, "transcription failed, please upload the audio again")
		}
		return mapError(err)
	}
	return c.JSON(http.StatusOK, d)
}

type updateTranscriptRequest struct {
	Transcript string `json:"transcript"`
}

func (h *Handler) UpdateTranscript(c echo.Context) error {
	userID, id, err := ids(c)
	if err != nil {
		return err
	}
	var req updateTranscriptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.UpdateTranscript(c.Request().Context(), userID, id, req.Transcript)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, d)
}

type generateResponse struct {
	Session *Draft         `json:"session"`
	Report  *report.Report `json:"report"`
}

func (h *Handler) Generate(c echo.Context) error {
	userID, id, err := ids(c)
	if err != nil {
		return err
	}
	var opts GenerateOptions
	if err := c.Bind(&opts); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, r, err := h.svc.Generate(c.Request().Context(), userID, id, opts)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, generateResponse{Session: d, Report: r})
}

func ids(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	userID, err := profile.CurrentUser(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return userID, id, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidSource), errors.Is(err, ErrEmptyTranscript):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return report.MapError(err)
}
