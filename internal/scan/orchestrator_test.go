package scan

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-engine/internal/adapter"
	"github.com/sells-group/visibility-engine/internal/budget"
	"github.com/sells-group/visibility-engine/internal/citation"
	"github.com/sells-group/visibility-engine/internal/config"
	"github.com/sells-group/visibility-engine/internal/cost"
	"github.com/sells-group/visibility-engine/internal/model"
	"github.com/sells-group/visibility-engine/internal/store"
)

// scanStore fakes the store methods the orchestrator and guard touch.
type scanStore struct {
	store.Store

	mu          sync.Mutex
	brand       *model.Brand
	competitors []model.Competitor
	queries     []model.Query
	policy      *model.BudgetPolicy
	spentCents  int

	results      []model.ScanResult
	gaps         []model.ContentGap
	spends       []model.SpendRecord
	scoreUpdates map[string]int
	alertKeys    map[string]bool
	aggregates   map[string]*store.ScanAggregates
}

func newScanStore() *scanStore {
	return &scanStore{
		brand: &model.Brand{
			ID:       "brand-1",
			TenantID: "tenant-1",
			Name:     "Acme",
			Domain:   "acme.com",
		},
		scoreUpdates: map[string]int{},
		alertKeys:    map[string]bool{},
		aggregates:   map[string]*store.ScanAggregates{},
	}
}

func (s *scanStore) GetBrand(context.Context, string) (*model.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := *s.brand
	return &b, nil
}

func (s *scanStore) ListCompetitors(context.Context, string) ([]model.Competitor, error) {
	return s.competitors, nil
}

func (s *scanStore) ListActiveQueries(context.Context, string) ([]model.Query, error) {
	return s.queries, nil
}

func (s *scanStore) InsertScanResult(_ context.Context, r *model.ScanResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, *r)
	return nil
}

func (s *scanStore) CreateGap(_ context.Context, g *model.ContentGap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gaps = append(s.gaps, *g)
	return nil
}

func (s *scanStore) QueryScanAggregates(_ context.Context, queryID string, _ time.Time) (*store.ScanAggregates, error) {
	if agg, ok := s.aggregates[queryID]; ok {
		return agg, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	agg := &store.ScanAggregates{}
	for _, r := range s.results {
		if r.QueryID == queryID {
			agg.Scans++
		}
	}
	return agg, nil
}

func (s *scanStore) UpdatePromptScore(_ context.Context, queryID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scoreUpdates[queryID] = score
	return nil
}

func (s *scanStore) GetBudgetPolicy(context.Context, string) (*model.BudgetPolicy, error) {
	return s.policy, nil
}

func (s *scanStore) MonthlySpendCents(context.Context, string, string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spentCents, nil
}

func (s *scanStore) PauseBrand(context.Context, string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.brand.IsPaused {
		return false, nil
	}
	s.brand.IsPaused = true
	return true, nil
}

func (s *scanStore) TryInsertBudgetAlert(_ context.Context, a *model.BudgetAlert) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := a.MonthKey + "|" + string(a.Kind)
	if s.alertKeys[key] {
		return false, nil
	}
	s.alertKeys[key] = true
	return true, nil
}

func (s *scanStore) InsertSpendRecord(_ context.Context, r *model.SpendRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spends = append(s.spends, *r)
	return nil
}

// fakeAdapter returns a canned response for every call.
type fakeAdapter struct {
	id    string
	cap   adapter.Capability
	resp  adapter.Response
	err   error
	calls atomic.Int32
}

func (f *fakeAdapter) ModelID() string                { return f.id }
func (f *fakeAdapter) Capability() adapter.Capability { return f.cap }
func (f *fakeAdapter) Execute(context.Context, adapter.Request) (*adapter.Response, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	resp := f.resp
	return &resp, nil
}

func newTestOrchestrator(st *scanStore, adapters ...adapter.Adapter) *Orchestrator {
	registry := adapter.NewRegistry()
	for _, a := range adapters {
		registry.Register(a)
	}
	guard := budget.NewGuard(st, nil, config.BudgetConfig{DefaultAlertAtPercent: 80})
	calc := cost.NewCalculator(cost.DefaultRates())
	return NewOrchestrator(st, registry, guard, calc, nil, config.ScanConfig{
		ChunkSize:       5,
		MaxConcurrent:   5,
		CallsPerMinute:  6000,
		CallTimeoutSecs: 5,
	})
}

func TestRunBatch_HappyPath(t *testing.T) {
	st := newScanStore()
	st.competitors = []model.Competitor{{Name: "Globex", IsActive: true}}
	st.queries = []model.Query{
		{ID: "q1", BrandID: "brand-1", Text: "best crm for startups", IsActive: true, FunnelStage: model.FunnelBottom},
		{ID: "q2", BrandID: "brand-1", Text: "top sales tools", IsActive: true, FunnelStage: model.FunnelMid},
	}

	// Search model mentions and cites the brand; chat model mentions no one.
	search := &fakeAdapter{
		id:  "perplexity/sonar",
		cap: adapter.SearchWithCitations,
		resp: adapter.Response{
			Text: "1. Acme\n2. Globex",
			SearchResults: []citation.SearchResult{
				{URL: "https://acme.com/blog/crm", Title: "Acme CRM"},
			},
			InputTokens:  500,
			OutputTokens: 200,
		},
	}
	chat := &fakeAdapter{
		id:   "openai/gpt-4o",
		cap:  adapter.ChatOnly,
		resp: adapter.Response{Text: "There are many options.", InputTokens: 400, OutputTokens: 150},
	}

	o := newTestOrchestrator(st, search, chat)
	summary, err := o.RunBatch(context.Background(), "brand-1", adapter.Panel{"perplexity/sonar", "openai/gpt-4o"})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Scanned)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, summary.Denied)
	// Brand mentioned in 2 of 4 results.
	assert.Equal(t, 50, summary.VisibilityScore)
	assert.Equal(t, 50, summary.CitationRate)
	assert.Len(t, st.results, 4)
	assert.Len(t, st.spends, 4)
	assert.Positive(t, summary.SpentCents)
	assert.False(t, summary.FinishedAt.IsZero())

	// Brand was mentioned on both queries by the search model: no gaps.
	assert.Empty(t, st.gaps)

	// Prompt scores refreshed for both queries.
	assert.Len(t, st.scoreUpdates, 2)
}

func TestRunBatch_ResultShapesPerCapability(t *testing.T) {
	st := newScanStore()
	st.queries = []model.Query{{ID: "q1", Text: "best crm", IsActive: true}}

	search := &fakeAdapter{
		id:  "perplexity/sonar",
		cap: adapter.SearchWithCitations,
		resp: adapter.Response{
			Text:          "Acme is solid.",
			SearchResults: []citation.SearchResult{{URL: "https://acme.com/docs"}},
		},
	}
	chat := &fakeAdapter{
		id:   "anthropic/claude-3-5-sonnet",
		cap:  adapter.ChatOnly,
		resp: adapter.Response{Text: "Acme is solid."},
	}

	o := newTestOrchestrator(st, search, chat)
	_, err := o.RunBatch(context.Background(), "brand-1", adapter.Panel{"perplexity/sonar", "anthropic/claude-3-5-sonnet"})
	require.NoError(t, err)

	byModel := map[string]model.ScanResult{}
	for _, r := range st.results {
		byModel[r.Model] = r
	}

	searchRes := byModel["perplexity/sonar"]
	require.NotNil(t, searchRes.BrandInCitations)
	assert.True(t, *searchRes.BrandInCitations)
	require.Len(t, searchRes.Citations, 1)

	// Chat-only models cannot cite: citation fields stay null, which is
	// different from "cited nothing".
	chatRes := byModel["anthropic/claude-3-5-sonnet"]
	assert.Nil(t, chatRes.Citations)
	assert.Nil(t, chatRes.BrandInCitations)
	assert.True(t, chatRes.BrandMentioned)
}

func TestRunBatch_FailedCallSkipsPair(t *testing.T) {
	st := newScanStore()
	st.queries = []model.Query{{ID: "q1", Text: "best crm", IsActive: true}}

	broken := &fakeAdapter{id: "openai/gpt-4o", cap: adapter.ChatOnly, err: eris.New("upstream 500")}
	working := &fakeAdapter{
		id:   "perplexity/sonar",
		cap:  adapter.SearchWithCitations,
		resp: adapter.Response{Text: "Acme leads."},
	}

	o := newTestOrchestrator(st, broken, working)
	summary, err := o.RunBatch(context.Background(), "brand-1", adapter.Panel{"openai/gpt-4o", "perplexity/sonar"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 1, summary.Failed)
	assert.Len(t, st.results, 1)
	assert.Equal(t, "perplexity/sonar", st.results[0].Model)
	// No spend recorded for the failed call.
	assert.Len(t, st.spends, 1)
}

func TestRunBatch_BudgetDenialSkipsCalls(t *testing.T) {
	st := newScanStore()
	st.queries = []model.Query{
		{ID: "q1", Text: "best crm", IsActive: true},
		{ID: "q2", Text: "top tools", IsActive: true},
	}
	cap := 1000
	st.policy = &model.BudgetPolicy{BrandID: "brand-1", MonthlyCapCents: &cap, AlertAtPercent: 80, PauseAtCap: true}
	st.spentCents = 1500

	ad := &fakeAdapter{id: "openai/gpt-4o", cap: adapter.ChatOnly, resp: adapter.Response{Text: "hi"}}

	o := newTestOrchestrator(st, ad)
	summary, err := o.RunBatch(context.Background(), "brand-1", adapter.Panel{"openai/gpt-4o"})
	require.NoError(t, err)

	assert.Zero(t, summary.Scanned)
	assert.Equal(t, 2, summary.Denied)
	assert.Zero(t, ad.calls.Load())
	assert.Empty(t, st.results)
	// Over-cap pause happened once; exceeded alert recorded once.
	assert.True(t, st.brand.IsPaused)
	assert.True(t, st.alertKeys[model.MonthKey(time.Now())+"|budget_exceeded"])
}

// pausingAdapter pauses the brand in the store during its first call, the
// way a concurrent batch or an operator would.
type pausingAdapter struct {
	st    *scanStore
	calls atomic.Int32
}

func (a *pausingAdapter) ModelID() string                { return "openai/gpt-4o" }
func (a *pausingAdapter) Capability() adapter.Capability { return adapter.ChatOnly }
func (a *pausingAdapter) Execute(ctx context.Context, _ adapter.Request) (*adapter.Response, error) {
	a.calls.Add(1)
	_, _ = a.st.PauseBrand(ctx, "brand-1")
	return &adapter.Response{Text: "Acme", InputTokens: 100, OutputTokens: 50}, nil
}

func TestRunBatch_MidBatchPauseStopsRemainingCalls(t *testing.T) {
	st := newScanStore()
	for i := 0; i < 10; i++ {
		st.queries = append(st.queries, model.Query{
			ID: "q" + strconv.Itoa(i), Text: "query", IsActive: true,
		})
	}

	// No budget policy: the brand is uncapped, so only the paused flag can
	// stop it.
	ad := &pausingAdapter{st: st}
	registry := adapter.NewRegistry()
	registry.Register(ad)
	guard := budget.NewGuard(st, nil, config.BudgetConfig{DefaultAlertAtPercent: 80})
	o := NewOrchestrator(st, registry, guard, cost.NewCalculator(cost.DefaultRates()), nil, config.ScanConfig{
		ChunkSize: 1, MaxConcurrent: 1, CallsPerMinute: 6000, CallTimeoutSecs: 5,
	})

	summary, err := o.RunBatch(context.Background(), "brand-1", adapter.Panel{"openai/gpt-4o"})
	require.NoError(t, err)

	// The first call lands, pauses the brand, and every later pair is
	// denied before reaching the adapter.
	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 9, summary.Denied)
	assert.Equal(t, int32(1), ad.calls.Load())
	assert.Len(t, st.results, 1)
	assert.Len(t, st.spends, 1)
}

func TestRunBatch_UnknownModelCountsAsFailed(t *testing.T) {
	st := newScanStore()
	st.queries = []model.Query{{ID: "q1", Text: "best crm", IsActive: true}}

	o := newTestOrchestrator(st)
	summary, err := o.RunBatch(context.Background(), "brand-1", adapter.Panel{"nonexistent/model"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Scanned)
}

func TestRunBatch_GapForUnmentionedQuery(t *testing.T) {
	st := newScanStore()
	st.queries = []model.Query{
		{ID: "q1", Text: "best crm for startups", IsActive: true},
		{ID: "q2", Text: "enterprise sales platforms", IsActive: true},
	}

	// Model mentions the brand only for q1.
	registry := adapter.NewRegistry()
	registry.Register(&queryAwareAdapter{
		id:  "openai/gpt-4o",
		responses: map[string]string{
			"best crm for startups":      "Acme tops the list for startups.",
			"enterprise sales platforms": "Salesforce and HubSpot dominate.",
		},
	})
	guard := budget.NewGuard(st, nil, config.BudgetConfig{DefaultAlertAtPercent: 80})
	o := NewOrchestrator(st, registry, guard, cost.NewCalculator(cost.DefaultRates()), nil, config.ScanConfig{
		ChunkSize: 5, MaxConcurrent: 5, CallsPerMinute: 6000, CallTimeoutSecs: 5,
	})

	summary, err := o.RunBatch(context.Background(), "brand-1", adapter.Panel{"openai/gpt-4o"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.GapCount)
	require.Len(t, st.gaps, 1)
	assert.Equal(t, "q2", st.gaps[0].QueryID)
	assert.Equal(t, "enterprise sales platforms", st.gaps[0].SourceQuery)
}

func TestRunBatch_EmptyQueries(t *testing.T) {
	st := newScanStore()

	o := newTestOrchestrator(st, &fakeAdapter{id: "openai/gpt-4o", cap: adapter.ChatOnly})
	summary, err := o.RunBatch(context.Background(), "brand-1", adapter.Panel{"openai/gpt-4o"})
	require.NoError(t, err)

	assert.Zero(t, summary.Scanned)
	assert.Zero(t, summary.VisibilityScore)
	assert.Zero(t, summary.CitationRate)
}

// queryAwareAdapter answers per query text.
type queryAwareAdapter struct {
	id        string
	responses map[string]string
}

func (a *queryAwareAdapter) ModelID() string                { return a.id }
func (a *queryAwareAdapter) Capability() adapter.Capability { return adapter.ChatOnly }
func (a *queryAwareAdapter) Execute(_ context.Context, req adapter.Request) (*adapter.Response, error) {
	return &adapter.Response{Text: a.responses[req.UserQuery], InputTokens: 100, OutputTokens: 50}, nil
}
