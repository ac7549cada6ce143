package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-engine/internal/config"
	"github.com/sells-group/visibility-engine/internal/model"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	snap := &MetricsSnapshot{
		ScansCompleted: 95,
		ScansFailed:    5,
		ScanFailRate:   0.05,
		LookbackHours:  24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_ScanFailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	snap := &MetricsSnapshot{
		ScansCompleted: 12,
		ScansFailed:    8,
		ScanFailRate:   0.4, // 8/20 = 40%
		LookbackHours:  24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertScanFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_TooFewScansToAlert(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	// 2 of 3 failed, but under the minimum sample of 5 finished scans.
	snap := &MetricsSnapshot{
		ScansCompleted: 1,
		ScansFailed:    2,
		ScanFailRate:   0.66,
		LookbackHours:  24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestBudgetAlert_Warning(t *testing.T) {
	alert := BudgetAlert("Acme", &model.BudgetAlert{
		BrandID:    "brand-1",
		MonthKey:   "2026-08",
		Kind:       model.AlertBudgetWarning,
		SpentCents: 8200,
		CapCents:   10000,
	})

	assert.Equal(t, AlertBudgetWarning, alert.Type)
	assert.Equal(t, "medium", alert.Severity)
	assert.Contains(t, alert.Message, "Acme")
	assert.Contains(t, alert.Message, "82%")
	assert.Equal(t, "2026-08", alert.Details["month_key"])
}

func TestBudgetAlert_Exceeded(t *testing.T) {
	alert := BudgetAlert("Acme", &model.BudgetAlert{
		BrandID:    "brand-1",
		MonthKey:   "2026-08",
		Kind:       model.AlertBudgetExceeded,
		SpentCents: 10150,
		CapCents:   10000,
	})

	assert.Equal(t, AlertBudgetExceeded, alert.Type)
	assert.Equal(t, "high", alert.Severity)
	assert.Contains(t, alert.Message, "exceeded")
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.Equal(t, AlertBudgetExceeded, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertBudgetExceeded, Severity: "high", Message: "over budget"},
	})

	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(1), received.Load())
}

func TestAlerter_SendAlerts_NoWebhookConfigured(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertBudgetWarning, Message: "near budget"},
	})
	assert.Zero(t, sent)
}

func TestAlerter_SendAlerts_RetriesTransientFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	a.retry.InitialBackoff = time.Millisecond

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertBudgetWarning, Message: "near budget"},
	})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(2), hits.Load())
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	a.retry.InitialBackoff = time.Millisecond

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertBudgetWarning, Message: "near budget"},
	})
	assert.Zero(t, sent)
	// 500 is transient, so the full attempt budget is spent.
	assert.Equal(t, int32(3), hits.Load())
}

func TestAlerter_SendAlerts_ClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	a.retry.InitialBackoff = time.Millisecond

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertBudgetWarning, Message: "near budget"},
	})
	assert.Zero(t, sent)
	assert.Equal(t, int32(1), hits.Load())
}
