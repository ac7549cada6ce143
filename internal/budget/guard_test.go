package budget

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-engine/internal/config"
	"github.com/sells-group/visibility-engine/internal/model"
	"github.com/sells-group/visibility-engine/internal/monitoring"
	"github.com/sells-group/visibility-engine/internal/store"
)

// guardStore fakes the store methods the guard touches. Unimplemented
// Store methods panic via the embedded nil interface.
type guardStore struct {
	store.Store

	policy     *model.BudgetPolicy
	spentCents int
	isPaused   bool

	pauseCalls int
	alertKeys  map[string]bool
	spends     []model.SpendRecord
}

func newGuardStore() *guardStore {
	return &guardStore{alertKeys: map[string]bool{}}
}

func (s *guardStore) GetBrand(context.Context, string) (*model.Brand, error) {
	b := *testBrand()
	b.IsPaused = s.isPaused
	return &b, nil
}

func (s *guardStore) GetBudgetPolicy(context.Context, string) (*model.BudgetPolicy, error) {
	return s.policy, nil
}

func (s *guardStore) MonthlySpendCents(context.Context, string, string) (int, error) {
	return s.spentCents, nil
}

func (s *guardStore) PauseBrand(context.Context, string) (bool, error) {
	s.pauseCalls++
	if s.isPaused {
		return false, nil
	}
	s.isPaused = true
	return true, nil
}

func (s *guardStore) TryInsertBudgetAlert(_ context.Context, a *model.BudgetAlert) (bool, error) {
	key := a.BrandID + "|" + a.MonthKey + "|" + string(a.Kind)
	if s.alertKeys[key] {
		return false, nil
	}
	s.alertKeys[key] = true
	return true, nil
}

func (s *guardStore) InsertSpendRecord(_ context.Context, r *model.SpendRecord) error {
	s.spends = append(s.spends, *r)
	return nil
}

func intPtr(n int) *int { return &n }

func testBrand() *model.Brand {
	return &model.Brand{ID: "brand-1", TenantID: "tenant-1", Name: "Acme"}
}

func newTestGuard(st *guardStore, alerter *monitoring.Alerter) *Guard {
	g := NewGuard(st, alerter, config.BudgetConfig{DefaultAlertAtPercent: 80})
	g.now = func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }
	return g
}

func TestGuard_PausedBrandDenied(t *testing.T) {
	st := newGuardStore()
	st.isPaused = true
	g := newTestGuard(st, nil)

	d, err := g.Check(context.Background(), "brand-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonBrandPaused, d.Reason)
}

func TestGuard_PauseObservedOnNextCheck(t *testing.T) {
	st := newGuardStore()
	g := newTestGuard(st, nil)

	d, err := g.Check(context.Background(), "brand-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// A pause taken elsewhere, with no cached brand in sight.
	st.isPaused = true

	d, err = g.Check(context.Background(), "brand-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonBrandPaused, d.Reason)
}

func TestGuard_NoPolicyAllowsUnlimitedSpend(t *testing.T) {
	st := newGuardStore()
	st.spentCents = 999999
	g := newTestGuard(st, nil)

	d, err := g.Check(context.Background(), "brand-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Nil(t, d.CapCents)
}

func TestGuard_NilCapAllowsUnlimitedSpend(t *testing.T) {
	st := newGuardStore()
	st.policy = &model.BudgetPolicy{BrandID: "brand-1", AlertAtPercent: 80}
	st.spentCents = 999999
	g := newTestGuard(st, nil)

	d, err := g.Check(context.Background(), "brand-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGuard_UnderThresholdAllowed(t *testing.T) {
	st := newGuardStore()
	st.policy = &model.BudgetPolicy{BrandID: "brand-1", MonthlyCapCents: intPtr(10000), AlertAtPercent: 80}
	st.spentCents = 5000
	g := newTestGuard(st, nil)

	d, err := g.Check(context.Background(), "brand-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 5000, d.SpentCents)
	require.NotNil(t, d.CapCents)
	assert.Equal(t, 10000, *d.CapCents)
	assert.Empty(t, st.alertKeys)
}

func TestGuard_WarningFiresOncePerMonth(t *testing.T) {
	var webhooks atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		webhooks.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := newGuardStore()
	st.policy = &model.BudgetPolicy{BrandID: "brand-1", MonthlyCapCents: intPtr(10000), AlertAtPercent: 80}
	st.spentCents = 8200
	alerter := monitoring.NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	g := newTestGuard(st, alerter)

	for i := 0; i < 3; i++ {
		d, err := g.Check(context.Background(), "brand-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	// Three checks over threshold, one alert.
	assert.Equal(t, int32(1), webhooks.Load())
	assert.True(t, st.alertKeys["brand-1|2026-08|budget_warning"])
}

func TestGuard_DefaultAlertPercentApplies(t *testing.T) {
	st := newGuardStore()
	// Policy without an explicit alert percent falls back to the default 80.
	st.policy = &model.BudgetPolicy{BrandID: "brand-1", MonthlyCapCents: intPtr(10000)}
	st.spentCents = 8000
	g := newTestGuard(st, nil)

	d, err := g.Check(context.Background(), "brand-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, st.alertKeys["brand-1|2026-08|budget_warning"])
}

func TestGuard_OverCapPausesAndDenies(t *testing.T) {
	var webhooks atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		webhooks.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := newGuardStore()
	st.policy = &model.BudgetPolicy{BrandID: "brand-1", MonthlyCapCents: intPtr(10000), AlertAtPercent: 80, PauseAtCap: true}
	st.spentCents = 10100
	alerter := monitoring.NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	g := newTestGuard(st, alerter)

	d, err := g.Check(context.Background(), "brand-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonOverCap, d.Reason)
	assert.Equal(t, 1, st.pauseCalls)
	assert.True(t, st.isPaused)
	assert.Equal(t, int32(1), webhooks.Load())

	// A later checker sees the pause it lost the race for and denies
	// without re-alerting.
	d, err = g.Check(context.Background(), "brand-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int32(1), webhooks.Load())
}

func TestGuard_OverCapWithoutPauseAtCap(t *testing.T) {
	st := newGuardStore()
	st.policy = &model.BudgetPolicy{BrandID: "brand-1", MonthlyCapCents: intPtr(10000), AlertAtPercent: 80}
	st.spentCents = 10000
	g := newTestGuard(st, nil)

	d, err := g.Check(context.Background(), "brand-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonOverCap, d.Reason)
	assert.Zero(t, st.pauseCalls)
	assert.True(t, st.alertKeys["brand-1|2026-08|budget_exceeded"])
}

func TestGuard_RecordSpend(t *testing.T) {
	st := newGuardStore()
	g := newTestGuard(st, nil)

	require.NoError(t, g.RecordSpend(context.Background(), testBrand(), "openai/gpt-4o", 42))
	require.Len(t, st.spends, 1)
	assert.Equal(t, "brand-1", st.spends[0].BrandID)
	assert.Equal(t, "tenant-1", st.spends[0].TenantID)
	assert.Equal(t, "openai/gpt-4o", st.spends[0].Model)
	assert.Equal(t, 42, st.spends[0].CostCents)
	assert.Equal(t, "2026-08", model.MonthKey(st.spends[0].CreatedAt))
}
