package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-engine/internal/model"
	"github.com/sells-group/visibility-engine/internal/monitoring"
	"github.com/sells-group/visibility-engine/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Background failure-rate checks against the same collector the
		// /metrics endpoint reads from.
		checker := monitoring.NewChecker(env.collector, env.alerter, cfg.Monitoring)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		snap, err := env.collector.Collect(req.Context(), cfg.Monitoring.LookbackHours)
		if err != nil {
			zap.L().Error("metrics collection failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "metrics collection failed")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Post("/scans", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			BrandID string `json:"brand_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.BrandID == "" {
			writeError(w, http.StatusBadRequest, "brand_id is required")
			return
		}

		if _, err := env.store.GetBrand(req.Context(), body.BrandID); err != nil {
			writeError(w, http.StatusNotFound, "brand not found")
			return
		}

		// The batch outlives the request; budget gating inside the
		// orchestrator keeps a runaway trigger from overspending.
		go func() {
			summary, err := env.orchestrator.RunBatch(context.Background(), body.BrandID, env.panels.Scan)
			if err != nil {
				zap.L().Error("triggered scan batch failed",
					zap.String("brand_id", body.BrandID),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("triggered scan batch complete",
				zap.String("brand_id", body.BrandID),
				zap.Int("scanned", summary.Scanned),
				zap.Int("visibility_score", summary.VisibilityScore),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":   "accepted",
			"brand_id": body.BrandID,
		})
	})

	r.Get("/brands/{id}/budget", func(w http.ResponseWriter, req *http.Request) {
		brandID := chi.URLParam(req, "id")

		brand, err := env.store.GetBrand(req.Context(), brandID)
		if err != nil {
			writeError(w, http.StatusNotFound, "brand not found")
			return
		}
		policy, err := env.store.GetBudgetPolicy(req.Context(), brandID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load budget policy failed")
			return
		}
		monthKey := model.MonthKey(time.Now())
		spent, err := env.store.MonthlySpendCents(req.Context(), brandID, monthKey)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load monthly spend failed")
			return
		}

		resp := map[string]any{
			"brand_id":    brandID,
			"month_key":   monthKey,
			"spent_cents": spent,
			"is_paused":   brand.IsPaused,
		}
		if policy != nil {
			resp["cap_cents"] = policy.MonthlyCapCents
			resp["alert_at_percent"] = policy.AlertAtPercent
			resp["pause_at_cap"] = policy.PauseAtCap
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/brands/{id}/gaps", func(w http.ResponseWriter, req *http.Request) {
		brandID := chi.URLParam(req, "id")

		filter := store.GapFilter{
			Status: model.GapStatus(req.URL.Query().Get("status")),
			Limit:  50,
		}
		if l := req.URL.Query().Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			filter.Limit = n
		}

		gaps, err := env.store.ListGaps(req.Context(), brandID, filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list gaps failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"brand_id": brandID,
			"gaps":     gaps,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
