// Package verify re-checks content gaps after content is published,
// looking for the brand to start appearing in model citations.
package verify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-engine/internal/adapter"
	"github.com/sells-group/visibility-engine/internal/budget"
	"github.com/sells-group/visibility-engine/internal/citation"
	"github.com/sells-group/visibility-engine/internal/config"
	"github.com/sells-group/visibility-engine/internal/cost"
	"github.com/sells-group/visibility-engine/internal/mention"
	"github.com/sells-group/visibility-engine/internal/model"
	"github.com/sells-group/visibility-engine/internal/store"
)

// Outcome reports one verification attempt.
type Outcome struct {
	GapID      string `json:"gap_id"`
	Attempt    int    `json:"attempt"`
	Verified   bool   `json:"verified"`
	Reschedule bool   `json:"reschedule"`
	SpentCents int    `json:"spent_cents"`
}

// Verifier runs bounded verification attempts against the verification
// panel. It never retries a model call; a failed call simply contributes
// no evidence to the attempt.
type Verifier struct {
	store    store.Store
	registry *adapter.Registry
	guard    *budget.Guard
	calc     *cost.Calculator
	cfg      config.VerificationConfig
	timeout  time.Duration
	now      func() time.Time
}

// NewVerifier creates a verifier.
func NewVerifier(
	st store.Store,
	registry *adapter.Registry,
	guard *budget.Guard,
	calc *cost.Calculator,
	cfg config.VerificationConfig,
	scanCfg config.ScanConfig,
) *Verifier {
	timeout := time.Duration(scanCfg.CallTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Verifier{
		store:    st,
		registry: registry,
		guard:    guard,
		calc:     calc,
		cfg:      cfg,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Delay returns how long to wait before the next attempt.
func (v *Verifier) Delay() time.Duration {
	hours := v.cfg.DelayHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// MaxAttempts returns the attempt budget per gap.
func (v *Verifier) MaxAttempts() int {
	if v.cfg.MaxAttempts <= 0 {
		return 3
	}
	return v.cfg.MaxAttempts
}

// RunAttempt executes verification attempt n for a gap against the given
// panel. Attempts start at 1. A gap that is not in content_created state,
// or whose brand has auto-verification disabled, is a no-op with no
// reschedule. An empty panel falls back to every registered adapter.
func (v *Verifier) RunAttempt(ctx context.Context, gapID string, attempt int, panel adapter.Panel) (*Outcome, error) {
	outcome := &Outcome{GapID: gapID, Attempt: attempt}
	log := zap.L().With(zap.String("gap_id", gapID), zap.Int("attempt", attempt))

	gap, err := v.store.GetGap(ctx, gapID)
	if err != nil {
		return nil, eris.Wrap(err, "verify: get gap")
	}
	if gap.Status != model.GapContentCreated {
		log.Info("verify: gap not verifiable", zap.String("status", string(gap.Status)))
		return outcome, nil
	}

	brand, err := v.store.GetBrand(ctx, gap.BrandID)
	if err != nil {
		return nil, eris.Wrap(err, "verify: get brand")
	}
	if !brand.AutoVerifyCitations {
		log.Info("verify: auto-verification disabled for brand", zap.String("brand_id", brand.ID))
		return outcome, nil
	}

	competitors, err := v.store.ListCompetitors(ctx, brand.ID)
	if err != nil {
		return nil, eris.Wrap(err, "verify: list competitors")
	}
	detector := mention.NewDetector(brand.Name, competitors)

	if len(panel) == 0 {
		panel = v.registry.List()
	}
	va := &model.VerificationAttempt{GapID: gapID, Attempt: attempt}
	for _, modelID := range panel {
		cited, mentioned, cents := v.checkModel(ctx, brand, detector, gap.SourceQuery, modelID, log)
		outcome.SpentCents += cents
		if cited {
			va.ModelsWithCitation = append(va.ModelsWithCitation, modelID)
		}
		if mentioned {
			va.ModelsWithMention = append(va.ModelsWithMention, modelID)
		}
	}

	// The attempt row goes in before any status flip. Appends dedup on
	// (gap, attempt), so a crash between the two writes leaves a retried
	// activity able to finish marking the gap verified.
	va.Verified = len(va.ModelsWithCitation) > 0
	if err := v.store.AppendVerificationAttempt(ctx, va); err != nil {
		return nil, eris.Wrap(err, "verify: append attempt")
	}

	if va.Verified {
		hours := 0.0
		if gap.ContentPublishedAt != nil {
			hours = v.now().Sub(*gap.ContentPublishedAt).Hours()
		}
		if err := v.store.MarkGapVerified(ctx, gapID, hours); err != nil {
			return nil, eris.Wrap(err, "verify: mark verified")
		}
		outcome.Verified = true
		log.Info("verify: gap verified",
			zap.Strings("models_with_citation", va.ModelsWithCitation),
			zap.Float64("time_to_citation_hours", hours),
		)
		return outcome, nil
	}
	outcome.Reschedule = attempt < v.MaxAttempts()
	if !outcome.Reschedule {
		log.Info("verify: attempt budget exhausted",
			zap.Strings("models_with_mention", va.ModelsWithMention),
		)
	}
	return outcome, nil
}

// checkModel gates and runs one model call, reporting whether the brand
// was cited and mentioned in the response.
func (v *Verifier) checkModel(
	ctx context.Context,
	brand *model.Brand,
	detector *mention.Detector,
	sourceQuery string,
	modelID string,
	log *zap.Logger,
) (cited, mentioned bool, cents int) {
	decision, err := v.guard.Check(ctx, brand.ID)
	if err != nil {
		log.Error("verify: budget check failed", zap.String("model", modelID), zap.Error(err))
		return false, false, 0
	}
	if !decision.Allowed {
		log.Info("verify: call denied by budget",
			zap.String("model", modelID),
			zap.String("reason", decision.Reason),
		)
		return false, false, 0
	}

	ad := v.registry.Get(modelID)
	if ad == nil {
		log.Warn("verify: no adapter registered", zap.String("model", modelID))
		return false, false, 0
	}

	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	resp, err := ad.Execute(callCtx, adapter.Request{UserQuery: sourceQuery, Temperature: 0.2})
	if err != nil {
		log.Warn("verify: model call failed", zap.String("model", modelID), zap.Error(err))
		return false, false, 0
	}

	cents = v.calc.Cents(modelID, resp.InputTokens, resp.OutputTokens)
	if err := v.guard.RecordSpend(ctx, brand, modelID, cents); err != nil {
		log.Error("verify: record spend failed", zap.String("model", modelID), zap.Error(err))
	}

	mentioned = detector.Detect(resp.Text).Mentioned
	if cites, ok := resp.NormalizedCitations(ad.Capability()); ok {
		cited = citation.BrandInCitations(cites, brand.Domain)
	}
	return cited, mentioned, cents
}
