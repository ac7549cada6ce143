// Package scan runs visibility scan batches: every active query for a
// brand against every model on the panel, budget-gated per call.
package scan

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/visibility-engine/internal/adapter"
	"github.com/sells-group/visibility-engine/internal/budget"
	"github.com/sells-group/visibility-engine/internal/citation"
	"github.com/sells-group/visibility-engine/internal/config"
	"github.com/sells-group/visibility-engine/internal/cost"
	"github.com/sells-group/visibility-engine/internal/mention"
	"github.com/sells-group/visibility-engine/internal/model"
	"github.com/sells-group/visibility-engine/internal/monitoring"
	"github.com/sells-group/visibility-engine/internal/scoring"
	"github.com/sells-group/visibility-engine/internal/store"
)

// Orchestrator fans one brand's queries out across the model panel and
// folds the responses back into scan results, gaps, and scores.
type Orchestrator struct {
	store     store.Store
	registry  *adapter.Registry
	guard     *budget.Guard
	calc      *cost.Calculator
	collector *monitoring.Collector
	cfg       config.ScanConfig
	limiter   *rate.Limiter
	now       func() time.Time
}

// NewOrchestrator creates a scan orchestrator. collector may be nil.
func NewOrchestrator(
	st store.Store,
	registry *adapter.Registry,
	guard *budget.Guard,
	calc *cost.Calculator,
	collector *monitoring.Collector,
	cfg config.ScanConfig,
) *Orchestrator {
	perMinute := cfg.CallsPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	return &Orchestrator{
		store:     st,
		registry:  registry,
		guard:     guard,
		calc:      calc,
		collector: collector,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute/6+1),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// pairResult carries one completed (query, model) call.
type pairResult struct {
	queryID string
	result  model.ScanResult
}

// RunBatch scans all active queries for the brand across the panel.
// Individual call failures and budget denials never fail the batch; they
// are counted in the summary.
func (o *Orchestrator) RunBatch(ctx context.Context, brandID string, panel adapter.Panel) (*model.BatchSummary, error) {
	brand, err := o.store.GetBrand(ctx, brandID)
	if err != nil {
		return nil, eris.Wrap(err, "scan: get brand")
	}
	competitors, err := o.store.ListCompetitors(ctx, brandID)
	if err != nil {
		return nil, eris.Wrap(err, "scan: list competitors")
	}
	queries, err := o.store.ListActiveQueries(ctx, brandID)
	if err != nil {
		return nil, eris.Wrap(err, "scan: list queries")
	}

	detector := mention.NewDetector(brand.Name, competitors)
	summary := &model.BatchSummary{BrandID: brandID, StartedAt: o.now()}
	log := zap.L().With(zap.String("brand_id", brandID))

	log.Info("scan: batch starting",
		zap.Int("queries", len(queries)),
		zap.Int("panel_size", len(panel)),
	)

	var results []model.ScanResult
	chunkSize := o.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 5
	}
	for start := 0; start < len(queries); start += chunkSize {
		end := min(start+chunkSize, len(queries))
		chunk, err := o.runChunk(ctx, brand, detector, queries[start:end], panel, summary, log)
		if err != nil {
			return nil, err
		}
		results = append(results, chunk...)
	}

	summary.Scanned = len(results)
	summary.VisibilityScore = scoring.VisibilityScore(results)
	summary.CitationRate = scoring.CitationRate(results)

	if err := o.deriveGaps(ctx, brand, queries, results, summary, log); err != nil {
		return nil, err
	}
	o.updatePromptScores(ctx, queries, log)

	summary.FinishedAt = o.now()
	if o.collector != nil {
		o.collector.Observe(*summary)
	}

	log.Info("scan: batch finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("failed", summary.Failed),
		zap.Int("denied", summary.Denied),
		zap.Int("visibility_score", summary.VisibilityScore),
		zap.Int("citation_rate", summary.CitationRate),
		zap.Int("gaps", summary.GapCount),
		zap.Int("spent_cents", summary.SpentCents),
	)
	return summary, nil
}

// runChunk executes one chunk of queries across the panel with bounded
// concurrency. The summary is only touched under mu.
func (o *Orchestrator) runChunk(
	ctx context.Context,
	brand *model.Brand,
	detector *mention.Detector,
	queries []model.Query,
	panel adapter.Panel,
	summary *model.BatchSummary,
	log *zap.Logger,
) ([]model.ScanResult, error) {
	g, gCtx := errgroup.WithContext(ctx)
	maxConcurrent := o.cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	g.SetLimit(maxConcurrent)

	var mu sync.Mutex
	var results []model.ScanResult

	for _, q := range queries {
		for _, modelID := range panel {
			q, modelID := q, modelID
			g.Go(func() error {
				res, spent, outcome := o.runPair(gCtx, brand, detector, q, modelID, log)
				mu.Lock()
				defer mu.Unlock()
				summary.SpentCents += spent
				switch outcome {
				case pairOK:
					results = append(results, *res)
				case pairFailed:
					summary.Failed++
				case pairDenied:
					summary.Denied++
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "scan: chunk")
	}
	return results, nil
}

type pairOutcome int

const (
	pairOK pairOutcome = iota
	pairFailed
	pairDenied
)

// runPair gates, executes, and persists one (query, model) call. Returns
// the spend in cents regardless of outcome.
func (o *Orchestrator) runPair(
	ctx context.Context,
	brand *model.Brand,
	detector *mention.Detector,
	q model.Query,
	modelID string,
	log *zap.Logger,
) (*model.ScanResult, int, pairOutcome) {
	decision, err := o.guard.Check(ctx, brand.ID)
	if err != nil {
		log.Error("scan: budget check failed", zap.String("query_id", q.ID), zap.Error(err))
		return nil, 0, pairFailed
	}
	if !decision.Allowed {
		log.Info("scan: call denied by budget",
			zap.String("query_id", q.ID),
			zap.String("model", modelID),
			zap.String("reason", decision.Reason),
		)
		return nil, 0, pairDenied
	}

	ad := o.registry.Get(modelID)
	if ad == nil {
		log.Warn("scan: no adapter registered", zap.String("model", modelID))
		return nil, 0, pairFailed
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return nil, 0, pairFailed
	}

	callTimeout := time.Duration(o.cfg.CallTimeoutSecs) * time.Second
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := ad.Execute(callCtx, adapter.Request{
		UserQuery:   q.Text,
		Temperature: 0.2,
	})
	if err != nil {
		log.Warn("scan: model call failed",
			zap.String("query_id", q.ID),
			zap.String("model", modelID),
			zap.Error(err),
		)
		return nil, 0, pairFailed
	}

	det := detector.Detect(resp.Text)
	result := model.ScanResult{
		QueryID:              q.ID,
		BrandID:              brand.ID,
		Model:                modelID,
		ResponseText:         resp.Text,
		BrandMentioned:       det.Mentioned,
		BrandPosition:        det.Position,
		MentionContext:       det.Context,
		CompetitorsMentioned: det.CompetitorsMentioned,
		CreatedAt:            o.now(),
	}
	if cites, ok := resp.NormalizedCitations(ad.Capability()); ok {
		if cites == nil {
			cites = []model.Citation{}
		}
		result.Citations = cites
		inCites := citation.BrandInCitations(cites, brand.Domain)
		result.BrandInCitations = &inCites
	}

	if err := o.store.InsertScanResult(ctx, &result); err != nil {
		log.Error("scan: persist result failed",
			zap.String("query_id", q.ID),
			zap.String("model", modelID),
			zap.Error(err),
		)
		return nil, 0, pairFailed
	}

	cents := o.calc.Cents(modelID, resp.InputTokens, resp.OutputTokens)
	if err := o.guard.RecordSpend(ctx, brand, modelID, cents); err != nil {
		// The result is already durable; losing a ledger entry is worth a
		// loud log but not a failed pair.
		log.Error("scan: record spend failed",
			zap.String("query_id", q.ID),
			zap.String("model", modelID),
			zap.Error(err),
		)
	}
	return &result, cents, pairOK
}
