package main

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-engine/internal/adapter"
	"github.com/sells-group/visibility-engine/internal/budget"
	"github.com/sells-group/visibility-engine/internal/cost"
	"github.com/sells-group/visibility-engine/internal/monitoring"
	"github.com/sells-group/visibility-engine/internal/resilience"
	"github.com/sells-group/visibility-engine/internal/scan"
	"github.com/sells-group/visibility-engine/internal/store"
	"github.com/sells-group/visibility-engine/internal/verify"
	"github.com/sells-group/visibility-engine/pkg/openrouter"
	"github.com/sells-group/visibility-engine/pkg/perplexity"
)

// appEnv bundles the wired application services shared by the commands.
type appEnv struct {
	store        store.Store
	registry     *adapter.Registry
	panels       *adapter.Panels
	calc         *cost.Calculator
	guard        *budget.Guard
	alerter      *monitoring.Alerter
	collector    *monitoring.Collector
	orchestrator *scan.Orchestrator
	verifier     *verify.Verifier
}

func (e *appEnv) Close() {
	_ = e.store.Close()
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "visibility.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initRegistry builds one adapter per model id appearing in either panel.
// Every adapter is wrapped in a per-model circuit breaker so a provider
// outage degrades to fast per-pair failures.
func initRegistry(panels *adapter.Panels) *adapter.Registry {
	registry := adapter.NewRegistry()
	breakers := resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	timeout := time.Duration(cfg.Scan.CallTimeoutSecs) * time.Second

	orClient := openrouter.NewClient(cfg.OpenRouter.Key, openrouter.WithBaseURL(cfg.OpenRouter.BaseURL))
	pxClient := perplexity.NewClient(cfg.Perplexity.Key, perplexity.WithBaseURL(cfg.Perplexity.BaseURL), perplexity.WithModel(cfg.Perplexity.Model))
	anthropicClient := anthropic.NewClient(option.WithAPIKey(cfg.Anthropic.Key))

	seen := make(map[string]bool)
	for _, id := range append(append(adapter.Panel{}, panels.Scan...), panels.Verification...) {
		if seen[id] {
			continue
		}
		seen[id] = true

		var a adapter.Adapter
		switch {
		case strings.HasPrefix(id, "perplexity/"):
			a = adapter.NewPerplexity(pxClient, id, timeout)
		case strings.HasPrefix(id, "anthropic/"):
			// Panel ids under anthropic/ are aliases; the deployed API
			// model name comes from config.
			a = adapter.NewAnthropic(anthropicClient, id, cfg.Anthropic.Model, timeout)
		default:
			a = adapter.NewOpenRouter(orClient, id, timeout)
		}
		registry.Register(adapter.WithBreaker(a, breakers.Get(id)))
	}
	return registry
}

func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	panels := adapter.DefaultPanels()
	if cfg.Scan.PanelsPath != "" {
		panels, err = adapter.LoadPanels(cfg.Scan.PanelsPath)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	rates := cost.DefaultRates()
	if cfg.Pricing.RatesPath != "" {
		rates, err = cost.LoadRates(cfg.Pricing.RatesPath)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	alerter := monitoring.NewAlerter(cfg.Monitoring)
	collector := monitoring.NewCollector(st)
	guard := budget.NewGuard(st, alerter, cfg.Budget)
	calc := cost.NewCalculator(rates)
	registry := initRegistry(panels)

	return &appEnv{
		store:        st,
		registry:     registry,
		panels:       panels,
		calc:         calc,
		guard:        guard,
		alerter:      alerter,
		collector:    collector,
		orchestrator: scan.NewOrchestrator(st, registry, guard, calc, collector, cfg.Scan),
		verifier:     verify.NewVerifier(st, registry, guard, calc, cfg.Verification, cfg.Scan),
	}, nil
}
