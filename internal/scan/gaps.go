package scan

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/visibility-engine/internal/model"
	"github.com/sells-group/visibility-engine/internal/scoring"
)

// deriveGaps creates a content gap for every query the brand was absent
// from on all models that answered. Queries with no successful results
// are skipped; silence from a failing model is not evidence of a gap.
func (o *Orchestrator) deriveGaps(
	ctx context.Context,
	brand *model.Brand,
	queries []model.Query,
	results []model.ScanResult,
	summary *model.BatchSummary,
	log *zap.Logger,
) error {
	answered := make(map[string]int)
	mentioned := make(map[string]bool)
	for _, r := range results {
		answered[r.QueryID]++
		if r.BrandMentioned {
			mentioned[r.QueryID] = true
		}
	}

	for _, q := range queries {
		if answered[q.ID] == 0 || mentioned[q.ID] {
			continue
		}
		gap := &model.ContentGap{
			BrandID:     brand.ID,
			QueryID:     q.ID,
			SourceQuery: q.Text,
		}
		if err := o.store.CreateGap(ctx, gap); err != nil {
			log.Error("scan: create gap failed", zap.String("query_id", q.ID), zap.Error(err))
			continue
		}
		summary.GapCount++
		log.Info("scan: content gap identified",
			zap.String("query_id", q.ID),
			zap.String("query", q.Text),
		)
	}
	return nil
}

// updatePromptScores recomputes each query's prompt score from its recent
// scan aggregates. Score updates are best effort.
func (o *Orchestrator) updatePromptScores(ctx context.Context, queries []model.Query, log *zap.Logger) {
	lookback := o.cfg.AggregateLookbackD
	if lookback <= 0 {
		lookback = 30
	}
	since := o.now().Add(-time.Duration(lookback) * 24 * time.Hour)

	for _, q := range queries {
		agg, err := o.store.QueryScanAggregates(ctx, q.ID, since)
		if err != nil {
			log.Warn("scan: aggregate query failed", zap.String("query_id", q.ID), zap.Error(err))
			continue
		}
		if agg.Scans == 0 {
			continue
		}
		breakdown := scoring.PromptScore(scoring.PromptInput{
			QueryText:      q.Text,
			FunnelStage:    q.FunnelStage,
			AvgCitations:   agg.AvgCitations,
			AvgCompetitors: agg.AvgCompetitors,
		})
		if breakdown.Total == q.PromptScore {
			continue
		}
		if err := o.store.UpdatePromptScore(ctx, q.ID, breakdown.Total); err != nil {
			log.Warn("scan: prompt score update failed", zap.String("query_id", q.ID), zap.Error(err))
		}
	}
}
