package session

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/informia/informia/internal/domain/profile"
	"github.com/informia/informia/internal/platform/auth"
)

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func withUser(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), userID.String()))
}

func audioRequest(t *testing.T, source string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if source != "" {
		_ = w.WriteField("source", source)
	}
	if content != nil {
		fw, err := w.CreateFormFile("audio", "consulta.webm")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(content)
	}
	_ = w.Close()
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestHandler_CreateSession(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()

	body := `{"patient_id":"` + f.patientID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.CreateSession(e.NewContext(withUser(req, f.owner), rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"state":"idle"`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"patient_id":"`+uuid.New().String()+`"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if code := statusOf(h.CreateSession(e.NewContext(withUser(req, f.owner), httptest.NewRecorder()))); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown patient, got %d", code)
	}
}

func TestHandler_UploadAudio(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()
	d := f.newDraft(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(withUser(audioRequest(t, "recording", []byte("OggS")), f.owner), rec)
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())
	if err := h.UploadAudio(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"state":"editing"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if f.transcriber.got != "consulta.webm:OggS" {
		t.Errorf("transcriber got %q", f.transcriber.got)
	}
}

func TestHandler_UploadAudio_BadRequests(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()
	d := f.newDraft(t)

	cases := map[string]*http.Request{
		"missing file": audioRequest(t, "upload", nil),
		"empty file":   audioRequest(t, "upload", []byte{}),
		"bad source":   audioRequest(t, "fax", []byte("x")),
	}
	for name, req := range cases {
		c := e.NewContext(withUser(req, f.owner), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(d.ID.String())
		if code := statusOf(h.UploadAudio(c)); code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, code)
		}
	}
}

func TestHandler_Generate_QuotaConflictAndSuccess(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()
	d := f.newDraft(t)

	gen := func() (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"report_type":"progress"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(withUser(req, f.owner), rec)
		c.SetParamNames("id")
		c.SetParamValues(d.ID.String())
		return rec, h.Generate(c)
	}

	if _, err := gen(); statusOf(err) != http.StatusConflict {
		t.Errorf("idle draft: expected 409, got %v", err)
	}

	f.upload(t, d)
	f.generator.err = profile.ErrQuotaExceeded
	if _, err := gen(); statusOf(err) != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %v", err)
	}

	f.generator.err = nil
	rec, err := gen()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"state":"completed"`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_GetSession_NotFound(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	c := echo.New().NewContext(withUser(httptest.NewRequest(http.MethodGet, "/", nil), f.owner), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	if code := statusOf(h.GetSession(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}
