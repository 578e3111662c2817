package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/informia/informia/internal/domain/profile"
	"github.com/informia/informia/internal/platform/auth"
	"github.com/informia/informia/internal/platform/cache"
)

type counter struct {
	total, month int
	calls        int
}

func (c *counter) Count(_ context.Context, _ uuid.UUID) (int, error) {
	c.calls++
	return c.total, nil
}

func (c *counter) CountThisMonth(_ context.Context, _ uuid.UUID, _ time.Time) (int, error) {
	return c.month, nil
}

type profiles map[uuid.UUID]*profile.Profile

func (p profiles) Get(_ context.Context, id uuid.UUID) (*profile.Profile, error) {
	if pr, ok := p[id]; ok {
		return pr, nil
	}
	return nil, profile.ErrNotFound
}

func newTestService() (*Service, *counter, *counter, profiles) {
	pats := &counter{total: 7}
	reps := &counter{total: 30, month: 4}
	profs := profiles{}
	return NewService(pats, reps, profs, cache.NewMemory(), zerolog.Nop()), pats, reps, profs
}

func TestGet_ComputesAndCaches(t *testing.T) {
	svc, pats, reps, profs := newTestService()
	id := uuid.New()
	profs[id] = &profile.Profile{ID: id, PlanType: profile.PlanProfessional, CreditsUsed: 92, CreditsLimit: 100}
	ctx := context.Background()

	sum, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Patients != 7 || sum.TotalReports != 30 || sum.ReportsThisMonth != 4 {
		t.Errorf("unexpected counts %+v", sum)
	}
	if sum.CreditsRemaining != 8 || sum.SubscriptionState != string(profile.StatusWarning) {
		t.Errorf("unexpected credits %+v", sum)
	}

	if _, err := svc.Get(ctx, id); err != nil {
		t.Fatal(err)
	}
	if pats.calls != 1 || reps.calls != 1 {
		t.Errorf("second read should hit the cache, got %d/%d queries", pats.calls, reps.calls)
	}

	svc.Invalidate(ctx, id)
	if _, err := svc.Get(ctx, id); err != nil {
		t.Fatal(err)
	}
	if pats.calls != 2 {
		t.Errorf("invalidate should force a recompute, got %d queries", pats.calls)
	}
}

func TestGet_WithoutCache(t *testing.T) {
	pats := &counter{total: 1}
	id := uuid.New()
	svc := NewService(pats, &counter{}, profiles{id: {ID: id, CreditsLimit: 10}}, nil, zerolog.Nop())
	svc.Invalidate(context.Background(), id)

	for i := 0; i < 2; i++ {
		if _, err := svc.Get(context.Background(), id); err != nil {
			t.Fatal(err)
		}
	}
	if pats.calls != 2 {
		t.Errorf("expected a query per read, got %d", pats.calls)
	}
}

func TestHandler_GetStats(t *testing.T) {
	svc, _, _, profs := newTestService()
	id := uuid.New()
	profs[id] = &profile.Profile{ID: id, CreditsUsed: 1, CreditsLimit: 10}
	h := NewHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req = req.WithContext(auth.WithUser(req.Context(), id.String()))
	rec := httptest.NewRecorder()
	if err := h.GetStats(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	var sum Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.CreditsUsed != 1 || sum.Patients != 7 {
		t.Errorf("unexpected summary %+v", sum)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req = req.WithContext(auth.WithUser(req.Context(), uuid.NewString()))
	err := h.GetStats(e.NewContext(req, httptest.NewRecorder()))
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing profile, got %v", err)
	}
}
