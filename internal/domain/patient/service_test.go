package patient

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// -- Mock Repository --

type mockRepo struct {
	records map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.records[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, userID, id uuid.UUID) (*Patient, error) {
	p, ok := m.records[id]
	if !ok || p.UserID != userID {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	cur, ok := m.records[p.ID]
	if !ok || cur.UserID != p.UserID {
		return ErrNotFound
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = time.Now()
	m.records[p.ID] = p
	return nil
}

func (m *mockRepo) Delete(_ context.Context, userID, id uuid.UUID) error {
	p, ok := m.records[id]
	if !ok || p.UserID != userID {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, userID uuid.UUID, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	q := strings.ToLower(f.Search)
	for _, p := range m.records {
		if p.UserID != userID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.Email), q) {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	total := len(result)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return result[offset:end], total, nil
}

func (m *mockRepo) Count(_ context.Context, userID uuid.UUID) (int, error) {
	n := 0
	for _, p := range m.records {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, zerolog.Nop()), repo
}

func TestCreate_NormalizesAndValidates(t *testing.T) {
	svc, _ := newTestService()
	owner := uuid.New()
	p := &Patient{UserID: owner, Name: "  María López ", Email: "maria@example.com", Tags: []string{"Ansiedad", "ansiedad", " ", "TCC"}}
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "María López" {
		t.Errorf("expected trimmed name, got %q", p.Name)
	}
	if len(p.Tags) != 2 || p.Tags[0] != "ansiedad" || p.Tags[1] != "tcc" {
		t.Errorf("unexpected tags %v", p.Tags)
	}
}

func TestCreate_Invalid(t *testing.T) {
	svc, _ := newTestService()
	future := time.Now().AddDate(1, 0, 0)
	cases := map[string]*Patient{
		"missing name":  {UserID: uuid.New()},
		"bad email":     {UserID: uuid.New(), Name: "Ana", Email: "not-an-email"},
		"future birth":  {UserID: uuid.New(), Name: "Ana", BirthDate: &future},
		"name too long": {UserID: uuid.New(), Name: strings.Repeat("a", 201)},
	}
	for name, p := range cases {
		if err := svc.Create(context.Background(), p); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestOwnerScoping(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	owner, other := uuid.New(), uuid.New()
	p := &Patient{UserID: owner, Name: "Pedro"}
	if err := svc.Create(ctx, p); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Get(ctx, other, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("other practitioner must not see the patient, got %v", err)
	}
	if err := svc.Delete(ctx, other, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("other practitioner must not delete the patient, got %v", err)
	}
	n, _ := svc.Count(ctx, owner)
	if n != 1 {
		t.Errorf("expected 1 patient, got %d", n)
	}
}

func TestChangeHook(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	calls := 0
	svc.SetChangeHook(func(context.Context, uuid.UUID) { calls++ })
	owner := uuid.New()
	p := &Patient{UserID: owner, Name: "Lucía"}
	_ = svc.Create(ctx, p)
	_ = svc.Delete(ctx, owner, p.ID)
	if calls != 2 {
		t.Errorf("expected 2 hook calls, got %d", calls)
	}
}

func TestEscapeLike(t *testing.T) {
	tests := map[string]string{
		"ana":     "ana",
		"50%":     `50\%`,
		"a_b":     `a\_b`,
		`back\sl`: `back\\sl`,
	}
	for in, want := range tests {
		if got := escapeLike(in); got != want {
			t.Errorf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}
