package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// -- Mock Repository --

type casWrite struct {
	expected, used int
	status         Status
}

type mockRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Profile
	writes  []casWrite
	getErr  error
	casErr  error
	// interfere runs before each CompareAndSetCredits, inside the lock.
	interfere func(p *Profile)
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[uuid.UUID]*Profile)}
}

func (m *mockRepo) put(p *Profile) *Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.records[p.ID] = p
	return p
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByStripeCustomer(_ context.Context, customerID string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.records {
		if p.StripeCustomerID != nil && *p.StripeCustomerID == customerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Create(_ context.Context, p *Profile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[p.ID]; ok {
		return false, nil
	}
	cp := *p
	m.records[p.ID] = &cp
	return true, nil
}

func (m *mockRepo) UpdateDetails(_ context.Context, id uuid.UUID, fullName, license string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	p.FullName, p.ProfessionalLicense = fullName, license
	return nil
}

func (m *mockRepo) CompareAndSetCredits(_ context.Context, id uuid.UUID, expected, used int, status Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.casErr != nil {
		return false, m.casErr
	}
	p, ok := m.records[id]
	if !ok {
		return false, nil
	}
	if m.interfere != nil {
		m.interfere(p)
	}
	if p.CreditsUsed != expected {
		return false, nil
	}
	p.CreditsUsed, p.SubscriptionStatus = used, status
	m.writes = append(m.writes, casWrite{expected: expected, used: used, status: status})
	return true, nil
}

func (m *mockRepo) CompareAndSetPlan(_ context.Context, id uuid.UUID, expected int, plan PlanType, limit int, status Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[id]
	if !ok || p.CreditsUsed != expected {
		return false, nil
	}
	p.PlanType, p.CreditsLimit, p.SubscriptionStatus = plan, limit, status
	return true, nil
}

func (m *mockRepo) ResetCredits(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	p.CreditsUsed, p.SubscriptionStatus = 0, StatusActive
	return nil
}

func (m *mockRepo) ResetAllCredits(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.records {
		p.CreditsUsed, p.SubscriptionStatus = 0, StatusActive
	}
	return int64(len(m.records)), nil
}

func (m *mockRepo) SetStripeCustomer(_ context.Context, id uuid.UUID, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	p.StripeCustomerID = &customerID
	return nil
}

func (m *mockRepo) SetSubscription(_ context.Context, id uuid.UUID, subscriptionID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	p.StripeSubscriptionID = subscriptionID
	return nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, zerolog.Nop()), repo
}

// -- ConsumeCredit --

func TestConsumeCredit_IncrementsAndClassifies(t *testing.T) {
	svc, repo := newTestService()
	p := repo.put(&Profile{PlanType: PlanProfessional, CreditsUsed: 95, CreditsLimit: 100, SubscriptionStatus: StatusWarning})

	var got *Profile
	ok, err := svc.ConsumeCredit(context.Background(), p.ID, func(np *Profile) { got = np })
	if err != nil || !ok {
		t.Fatalf("expected success, got ok=%v err=%v", ok, err)
	}
	if len(repo.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(repo.writes))
	}
	w := repo.writes[0]
	if w.used != 96 || w.status != StatusWarning || w.expected != 95 {
		t.Errorf("unexpected write %+v", w)
	}
	if got == nil || got.CreditsUsed != 96 {
		t.Errorf("callback should receive the updated profile, got %+v", got)
	}
}

func TestConsumeCredit_LastCreditGoesOverQuota(t *testing.T) {
	svc, repo := newTestService()
	p := repo.put(&Profile{CreditsUsed: 9, CreditsLimit: 10})

	ok, err := svc.ConsumeCredit(context.Background(), p.ID, nil)
	if err != nil || !ok {
		t.Fatalf("expected success, got ok=%v err=%v", ok, err)
	}
	if repo.writes[0].status != StatusOverQuota {
		t.Errorf("expected over_quota, got %q", repo.writes[0].status)
	}
}

func TestConsumeCredit_AtLimitNoWrite(t *testing.T) {
	svc, repo := newTestService()
	p := repo.put(&Profile{CreditsUsed: 100, CreditsLimit: 100, SubscriptionStatus: StatusOverQuota})

	called := false
	ok, err := svc.ConsumeCredit(context.Background(), p.ID, func(*Profile) { called = true })
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if ok {
		t.Error("expected ok=false")
	}
	if len(repo.writes) != 0 {
		t.Errorf("expected no writes, got %d", len(repo.writes))
	}
	if called {
		t.Error("callback must not run when the quota is exhausted")
	}
}

func TestConsumeCredit_FetchErrorIsSwallowed(t *testing.T) {
	svc, repo := newTestService()
	repo.getErr = fmt.Errorf("connection refused")

	ok, err := svc.ConsumeCredit(context.Background(), uuid.New(), nil)
	if err != nil || ok {
		t.Errorf("expected (false, nil), got (%v, %v)", ok, err)
	}
}

func TestConsumeCredit_UpdateErrorIsSwallowed(t *testing.T) {
	svc, repo := newTestService()
	p := repo.put(&Profile{CreditsUsed: 1, CreditsLimit: 10})
	repo.casErr = fmt.Errorf("deadlock detected")

	ok, err := svc.ConsumeCredit(context.Background(), p.ID, nil)
	if err != nil || ok {
		t.Errorf("expected (false, nil), got (%v, %v)", ok, err)
	}
}

func TestConsumeCredit_RetriesAfterConflict(t *testing.T) {
	svc, repo := newTestService()
	p := repo.put(&Profile{CreditsUsed: 3, CreditsLimit: 10})
	bumped := false
	repo.interfere = func(p *Profile) {
		if !bumped {
			bumped = true
			p.CreditsUsed++
		}
	}

	ok, err := svc.ConsumeCredit(context.Background(), p.ID, nil)
	if err != nil || !ok {
		t.Fatalf("expected success after retry, got ok=%v err=%v", ok, err)
	}
	final, _ := repo.GetByID(context.Background(), p.ID)
	if final.CreditsUsed != 5 {
		t.Errorf("expected 5 credits used, got %d", final.CreditsUsed)
	}
}

func TestConsumeCredit_GivesUpAfterRepeatedConflicts(t *testing.T) {
	svc, repo := newTestService()
	p := repo.put(&Profile{CreditsUsed: 0, CreditsLimit: 1000})
	repo.interfere = func(p *Profile) { p.CreditsUsed++ }

	ok, err := svc.ConsumeCredit(context.Background(), p.ID, nil)
	if !errors.Is(err, ErrConcurrentUpdate) || ok {
		t.Errorf("expected ErrConcurrentUpdate, got ok=%v err=%v", ok, err)
	}
}

func TestConsumeCredit_ConcurrentAtLimitMinusOne(t *testing.T) {
	for i := 0; i < 50; i++ {
		svc, repo := newTestService()
		p := repo.put(&Profile{CreditsUsed: 9, CreditsLimit: 10})

		var wg sync.WaitGroup
		results := make([]error, 2)
		oks := make([]bool, 2)
		for g := 0; g < 2; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				oks[g], results[g] = svc.ConsumeCredit(context.Background(), p.ID, nil)
			}(g)
		}
		wg.Wait()

		successes, exceeded := 0, 0
		for g := 0; g < 2; g++ {
			if oks[g] && results[g] == nil {
				successes++
			}
			if errors.Is(results[g], ErrQuotaExceeded) {
				exceeded++
			}
		}
		if successes != 1 || exceeded != 1 {
			t.Fatalf("run %d: expected one success and one quota error, got %d/%d (%v)", i, successes, exceeded, results)
		}
		final, _ := repo.GetByID(context.Background(), p.ID)
		if final.CreditsUsed != 10 {
			t.Fatalf("run %d: expected credits_used 10, got %d", i, final.CreditsUsed)
		}
	}
}

func TestConsumeCredit_ChangeHook(t *testing.T) {
	svc, repo := newTestService()
	p := repo.put(&Profile{CreditsUsed: 0, CreditsLimit: 10})
	var hooked uuid.UUID
	svc.SetChangeHook(func(_ context.Context, id uuid.UUID) { hooked = id })

	if _, err := svc.ConsumeCredit(context.Background(), p.ID, nil); err != nil {
		t.Fatal(err)
	}
	if hooked != p.ID {
		t.Errorf("expected change hook for %s, got %s", p.ID, hooked)
	}
}

// -- CheckCanGenerateReport --

func TestCheckCanGenerateReport(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	available := repo.put(&Profile{CreditsUsed: 9, CreditsLimit: 10, SubscriptionStatus: StatusWarning})
	if e := svc.CheckCanGenerateReport(ctx, available.ID); !e.CanGenerate {
		t.Errorf("expected eligible, got %+v", e)
	}

	exhausted := repo.put(&Profile{CreditsUsed: 10, CreditsLimit: 10, SubscriptionStatus: StatusOverQuota})
	e := svc.CheckCanGenerateReport(ctx, exhausted.ID)
	if e.CanGenerate || e.Message != msgQuotaExhausted {
		t.Errorf("expected quota message, got %+v", e)
	}

	e = svc.CheckCanGenerateReport(ctx, uuid.New())
	if e.CanGenerate || e.Message != msgProfileUnavailable {
		t.Errorf("expected generic message for missing profile, got %+v", e)
	}
}

func TestCheckCanGenerateReport_IgnoresStoredStatus(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	staleOver := repo.put(&Profile{CreditsUsed: 5, CreditsLimit: 10, SubscriptionStatus: StatusOverQuota})
	if e := svc.CheckCanGenerateReport(ctx, staleOver.ID); !e.CanGenerate {
		t.Error("stale over_quota status must not block a user with credits left")
	}

	staleActive := repo.put(&Profile{CreditsUsed: 10, CreditsLimit: 10, SubscriptionStatus: StatusActive})
	if e := svc.CheckCanGenerateReport(ctx, staleActive.ID); e.CanGenerate {
		t.Error("stale active status must not allow a user without credits")
	}
}

// -- Plans and lifecycle --

func TestEnsure_CreatesDemoProfileOnce(t *testing.T) {
	svc, repo := newTestService()
	id := uuid.New()

	p, err := svc.Ensure(context.Background(), id, "ana@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if p.PlanType != PlanDemo || p.CreditsLimit != 10 || p.Email != "ana@example.com" {
		t.Errorf("unexpected profile %+v", p)
	}
	repo.records[id].CreditsUsed = 4
	again, err := svc.Ensure(context.Background(), id, "other@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if again.CreditsUsed != 4 || again.Email != "ana@example.com" {
		t.Error("Ensure must not overwrite an existing profile")
	}
}

func TestChangePlan_RecomputesStatus(t *testing.T) {
	svc, repo := newTestService()
	p := repo.put(&Profile{PlanType: PlanDemo, CreditsUsed: 10, CreditsLimit: 10, SubscriptionStatus: StatusOverQuota})

	updated, err := svc.ChangePlan(context.Background(), p.ID, PlanProfessional)
	if err != nil {
		t.Fatal(err)
	}
	if updated.CreditsLimit != 100 || updated.SubscriptionStatus != StatusActive || updated.CreditsUsed != 10 {
		t.Errorf("unexpected profile after upgrade %+v", updated)
	}

	down, err := svc.ChangePlan(context.Background(), p.ID, PlanDemo)
	if err != nil {
		t.Fatal(err)
	}
	if down.SubscriptionStatus != StatusOverQuota {
		t.Errorf("expected over_quota after downgrade, got %q", down.SubscriptionStatus)
	}

	if _, err := svc.ChangePlan(context.Background(), p.ID, "gold"); !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestResetCredits(t *testing.T) {
	svc, repo := newTestService()
	p := repo.put(&Profile{CreditsUsed: 10, CreditsLimit: 10, SubscriptionStatus: StatusOverQuota})
	if err := svc.ResetCredits(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	if e := svc.CheckCanGenerateReport(context.Background(), p.ID); !e.CanGenerate {
		t.Error("expected credits available after reset")
	}
	if err := svc.ResetCredits(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateDetails_Validation(t *testing.T) {
	svc, repo := newTestService()
	p := repo.put(&Profile{CreditsLimit: 10})
	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := svc.UpdateDetails(context.Background(), p.ID, string(long), ""); err == nil {
		t.Error("expected error for overlong name")
	}
	updated, err := svc.UpdateDetails(context.Background(), p.ID, "Dra. Ana Ruiz", "COP-12345")
	if err != nil {
		t.Fatal(err)
	}
	if updated.FullName != "Dra. Ana Ruiz" {
		t.Errorf("unexpected name %q", updated.FullName)
	}
}
