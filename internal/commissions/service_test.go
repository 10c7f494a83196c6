package commissions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyops/agencyops/internal/platform/cache"
	"github.com/agencyops/agencyops/internal/shared"
)

type periodKey struct {
	freelancerID int64
	start        time.Time
}

type mockRepository struct {
	tiers       []TierRule
	freelancers []int64
	contracts   map[int64][]time.Time
	rows        map[periodKey]*Commission
	byID        map[int64]*Commission
	nextID      int64

	countError error
	txError    error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		contracts: make(map[int64][]time.Time),
		rows:      make(map[periodKey]*Commission),
		byID:      make(map[int64]*Commission),
		nextID:    1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if m.txError != nil {
		return m.txError
	}
	snapshot := make(map[int64]Commission, len(m.byID))
	for id, c := range m.byID {
		snapshot[id] = *c
	}
	nextID := m.nextID
	if err := fn(ctx, m); err != nil {
		m.rows = make(map[periodKey]*Commission)
		m.byID = make(map[int64]*Commission)
		for id, c := range snapshot {
			cp := c
			m.byID[id] = &cp
			m.rows[periodKey{cp.FreelancerID, cp.PeriodStart}] = &cp
		}
		m.nextID = nextID
		return err
	}
	return nil
}

func (m *mockRepository) ListTiers(ctx context.Context) ([]TierRule, error) {
	return m.tiers, nil
}

func (m *mockRepository) ListActiveFreelancers(ctx context.Context) ([]int64, error) {
	return m.freelancers, nil
}

func (m *mockRepository) CountContracts(ctx context.Context, freelancerID int64, start, end time.Time) (int, error) {
	if m.countError != nil {
		return 0, m.countError
	}
	count := 0
	for _, signed := range m.contracts[freelancerID] {
		if !signed.Before(start) && signed.Before(end) {
			count++
		}
	}
	return count, nil
}

func (m *mockRepository) Upsert(ctx context.Context, c Commission) (int64, UpsertOutcome, error) {
	key := periodKey{c.FreelancerID, c.PeriodStart}
	if existing, ok := m.rows[key]; ok {
		if existing.Status != StatusPending {
			return 0, OutcomeSkipped, nil
		}
		existing.Amount, existing.Tier, existing.ContractCount, existing.RunID = c.Amount, c.Tier, c.ContractCount, c.RunID
		return existing.ID, OutcomeUpdated, nil
	}
	c.ID = m.nextID
	m.nextID++
	m.rows[key] = &c
	m.byID[c.ID] = &c
	return c.ID, OutcomeCreated, nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Commission, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepository) List(ctx context.Context, req ListRequest) ([]Commission, int, error) {
	var out []Commission
	for _, c := range m.byID {
		if req.PeriodStart != nil && !c.PeriodStart.Equal(*req.PeriodStart) {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *mockRepository) UpdateStatus(ctx context.Context, id int64, from, to Status, at time.Time) error {
	c, ok := m.byID[id]
	if !ok || c.Status != from {
		return ErrInvalidTransition
	}
	c.Status = to
	if to == StatusPaid {
		c.PaidAt = &at
	}
	return nil
}

func newTestLocker(t *testing.T) *cache.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewLocker(client)
}

func newTestService(t *testing.T, repo *mockRepository, locker Locker) *Service {
	t.Helper()
	svc, err := NewService(repo, locker, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2026, 10, 1, 2, 0, 0, 0, time.UTC) }
	return svc
}

func signedOn(day time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = day
	}
	return out
}

var september = shared.MonthPeriod{
	Start: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
}

func seededRepo() *mockRepository {
	repo := newMockRepository()
	repo.freelancers = []int64{1, 2, 3}
	mid := time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)
	repo.contracts[1] = signedOn(mid, 11)
	repo.contracts[2] = signedOn(mid, 31)
	// Contracts on the period edges: only the one at Start counts.
	repo.contracts[3] = []time.Time{september.Start, september.End, september.Start.Add(-time.Second)}
	return repo
}

func TestGenerateMonthlyResolvesTiers(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(t, repo, newTestLocker(t))

	result, err := svc.GenerateMonthly(context.Background(), september, 9)
	require.NoError(t, err)
	assert.Equal(t, "2026-09", result.Period)
	assert.Equal(t, 3, result.Created)
	require.Len(t, result.Commissions, 3)

	byFreelancer := map[int64]Commission{}
	for _, c := range result.Commissions {
		byFreelancer[c.FreelancerID] = c
	}
	assert.Equal(t, TierSilver, byFreelancer[1].Tier)
	assert.Equal(t, 1000.0, byFreelancer[1].Amount)
	assert.Equal(t, TierPlatinum, byFreelancer[2].Tier)
	assert.Equal(t, 2000.0, byFreelancer[2].Amount)
	assert.Equal(t, TierBronze, byFreelancer[3].Tier)
	assert.Equal(t, 1, byFreelancer[3].ContractCount)
	assert.Equal(t, 500.0, byFreelancer[3].Amount)
}

func TestGenerateMonthlyRerunIsIdempotent(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(t, repo, newTestLocker(t))
	ctx := context.Background()

	_, err := svc.GenerateMonthly(ctx, september, 9)
	require.NoError(t, err)
	paid, err := svc.MarkPaid(ctx, 2, 9)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)

	repo.contracts[1] = append(repo.contracts[1], signedOn(time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC), 10)...)
	repo.contracts[2] = nil

	result, err := svc.GenerateMonthly(ctx, september, 9)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, repo.byID, 3)

	assert.Equal(t, TierGold, repo.byID[1].Tier)
	assert.Equal(t, 1500.0, repo.byID[1].Amount)
	assert.Equal(t, TierPlatinum, repo.byID[2].Tier, "paid commission must not change")
	assert.Equal(t, 2000.0, repo.byID[2].Amount)
}

func TestGenerateMonthlyLockHeld(t *testing.T) {
	repo := seededRepo()
	locker := newTestLocker(t)
	svc := newTestService(t, repo, locker)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, shared.CommissionLockKey("2026-09"), "other-run", time.Minute)
	require.NoError(t, err)

	_, err = svc.GenerateMonthly(ctx, september, 9)
	assert.ErrorIs(t, err, ErrGenerationInProgress)
	assert.Empty(t, repo.byID)

	require.NoError(t, release(ctx))
	_, err = svc.GenerateMonthly(ctx, september, 9)
	assert.NoError(t, err)

	// The run released its own lock.
	_, err = svc.GenerateMonthly(ctx, september, 9)
	assert.NoError(t, err)
}

func TestGenerateMonthlyFailureWritesNothing(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(t, repo, nil)
	var notes []shared.Notification
	svc.notifier = shared.NotifierFunc(func(ctx context.Context, n shared.Notification) { notes = append(notes, n) })
	repo.countError = errors.New("db gone")

	_, err := svc.GenerateMonthly(context.Background(), september, 9)
	require.Error(t, err)
	assert.Empty(t, repo.byID)
	require.Len(t, notes, 1)
	assert.Equal(t, shared.NotifyError, notes[0].Kind)
}

func TestServiceUsesStoredTiers(t *testing.T) {
	repo := seededRepo()
	repo.tiers = []TierRule{
		{Tier: TierBronze, MinContracts: 0, MaxContracts: bound(4), UnitAmount: 100},
		{Tier: TierSilver, MinContracts: 5, UnitAmount: 300},
	}
	svc := newTestService(t, repo, nil)

	rule, err := svc.Resolve(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, TierSilver, rule.Tier)
	assert.Equal(t, 300.0, rule.UnitAmount)

	repo.tiers[1].MinContracts = 6
	_, err = svc.Resolve(context.Background(), 11)
	assert.ErrorIs(t, err, ErrInvalidTierTable)
}

func TestNewServiceRejectsBadConfiguredTiers(t *testing.T) {
	tiers := DefaultTiers()
	tiers[3].MaxContracts = bound(99)
	_, err := NewService(newMockRepository(), nil, nil, nil, nil, Config{Tiers: tiers})
	assert.ErrorIs(t, err, ErrInvalidTierTable)
}

func TestMarkPaidIsFinal(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(t, repo, nil)
	ctx := context.Background()
	_, err := svc.GenerateMonthly(ctx, september, 9)
	require.NoError(t, err)

	paid, err := svc.MarkPaid(ctx, 1, 9)
	require.NoError(t, err)
	require.NotNil(t, paid.PaidAt)

	_, err = svc.MarkPaid(ctx, 1, 9)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Cancel(ctx, 1, 9)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Cancel(ctx, 99, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}
