package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-engine/internal/model"
	"github.com/sells-group/visibility-engine/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Brand metrics.
	BrandsActive int `json:"brands_active"`

	// Scan metrics within the lookback window. Completed counts come from
	// the store; failed and denied pairs are never persisted, so they come
	// from batch summaries reported by the orchestrator.
	ScansCompleted int     `json:"scans_completed"`
	ScansFailed    int     `json:"scans_failed"`
	ScansDenied    int     `json:"scans_denied"`
	ScanFailRate   float64 `json:"scan_fail_rate"`

	// Visibility metrics across all active brands.
	MentionRate  float64 `json:"mention_rate"`
	CitationRate float64 `json:"citation_rate"`

	// Spend within the lookback window, all brands.
	SpendCents int `json:"spend_cents"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// batchRecord is one reported batch outcome, kept in memory for the
// lookback window.
type batchRecord struct {
	failed     int
	denied     int
	finishedAt time.Time
}

// Collector gathers metrics from the store and from reported batch
// summaries.
type Collector struct {
	store store.Store

	mu      sync.Mutex
	batches []batchRecord
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Observe records a finished batch so failure and denial counts survive
// until the next snapshot. Results themselves are already in the store.
func (c *Collector) Observe(summary model.BatchSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, batchRecord{
		failed:     summary.Failed,
		denied:     summary.Denied,
		finishedAt: summary.FinishedAt,
	})

	// Drop records older than a generous week so the slice stays bounded.
	cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)
	kept := c.batches[:0]
	for _, b := range c.batches {
		if b.finishedAt.After(cutoff) {
			kept = append(kept, b)
		}
	}
	c.batches = kept
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := snap.CollectedAt.Add(-time.Duration(lookbackHours) * time.Hour)

	brands, err := c.store.ListActiveBrands(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list brands")
	}
	snap.BrandsActive = len(brands)

	var mentioned, cited int
	for _, b := range brands {
		stats, err := c.store.GetBrandStats(ctx, b.ID, cutoff)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: stats for brand %s", b.ID)
		}
		snap.ScansCompleted += stats.Scans
		snap.SpendCents += stats.SpendCents
		mentioned += stats.Mentioned
		cited += stats.Cited
	}
	if snap.ScansCompleted > 0 {
		snap.MentionRate = float64(mentioned) / float64(snap.ScansCompleted)
		snap.CitationRate = float64(cited) / float64(snap.ScansCompleted)
	}

	c.mu.Lock()
	for _, b := range c.batches {
		if b.finishedAt.After(cutoff) {
			snap.ScansFailed += b.failed
			snap.ScansDenied += b.denied
		}
	}
	c.mu.Unlock()

	finished := snap.ScansCompleted + snap.ScansFailed
	if finished > 0 {
		snap.ScanFailRate = float64(snap.ScansFailed) / float64(finished)
	}

	return snap, nil
}
