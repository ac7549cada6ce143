package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-engine/internal/config"
	"github.com/sells-group/visibility-engine/internal/model"
	"github.com/sells-group/visibility-engine/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertBudgetWarning   AlertType = "budget_warning"
	AlertBudgetExceeded  AlertType = "budget_exceeded"
	AlertScanFailureRate AlertType = "scan_failure_rate"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter builds alerts from budget events and metric snapshots and
// delivers them via webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			OnRetry:        resilience.RetryLogger("webhook", "send_alert"),
		},
	}
}

// BudgetAlert converts a persisted budget alert row into a webhook alert.
// The caller only passes rows that won the insert, so each
// (brand, month, kind) fires at most once.
func BudgetAlert(brandName string, a *model.BudgetAlert) Alert {
	severity := "medium"
	typ := AlertBudgetWarning
	msg := fmt.Sprintf(
		"Brand %s spent %d of %d cents (%.0f%%) of its monthly budget (%s)",
		brandName, a.SpentCents, a.CapCents,
		float64(a.SpentCents)/float64(a.CapCents)*100, a.MonthKey,
	)
	if a.Kind == model.AlertBudgetExceeded {
		severity = "high"
		typ = AlertBudgetExceeded
		msg = fmt.Sprintf(
			"Brand %s exceeded its monthly budget: %d of %d cents spent (%s)",
			brandName, a.SpentCents, a.CapCents, a.MonthKey,
		)
	}
	return Alert{
		Type:     typ,
		Severity: severity,
		Message:  msg,
		Details: map[string]any{
			"brand_id":    a.BrandID,
			"month_key":   a.MonthKey,
			"spent_cents": a.SpentCents,
			"cap_cents":   a.CapCents,
		},
		Timestamp: time.Now().UTC(),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.ScansCompleted + snap.ScansFailed
	if finished >= 5 && snap.ScanFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertScanFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Scan failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.ScanFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.ScansFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.ScanFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.ScansFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL, retrying transient
// delivery failures with backoff.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	return resilience.Do(ctx, a.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
		if err != nil {
			return eris.Wrap(err, "monitoring: create webhook request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			return eris.Wrap(err, "monitoring: webhook request")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(
				eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode),
				resp.StatusCode,
			)
		}
		if resp.StatusCode >= 400 {
			return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		}
		return nil
	})
}
