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

	"github.com/sells-group/outreach-agent/internal/config"
	"github.com/sells-group/outreach-agent/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertToolErrorRate     AlertType = "tool_error_rate"
	AlertEnrichFailureRate AlertType = "enrichment_failure_rate"
	AlertCostOverrun       AlertType = "cost_overrun"
)

// minSample is the smallest window population worth alerting on. Rates
// computed over a handful of calls are noise.
const minSample = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates activity stats against configured thresholds and
// delivers breaches to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates an Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the stats against thresholds and returns any alerts.
func (a *Alerter) Evaluate(stats *model.ActivityStats) []Alert {
	var alerts []Alert
	now := time.Now().UTC()
	window := int(now.Sub(stats.Since).Hours())

	if stats.ToolCalls >= minSample {
		rate := float64(stats.ToolErrors) / float64(stats.ToolCalls)
		if rate > a.cfg.ToolErrorRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertToolErrorRate,
				Severity: "high",
				Message: fmt.Sprintf(
					"Tool error rate %.1f%% exceeds threshold %.1f%% (%d errors / %d calls in last %dh)",
					rate*100, a.cfg.ToolErrorRateThreshold*100,
					stats.ToolErrors, stats.ToolCalls, window,
				),
				Details: map[string]any{
					"error_rate": rate,
					"threshold":  a.cfg.ToolErrorRateThreshold,
					"errors":     stats.ToolErrors,
					"calls":      stats.ToolCalls,
				},
				Timestamp: now,
			})
		}
	}

	if stats.EnrichAttempted >= minSample {
		rate := float64(stats.EnrichFailed) / float64(stats.EnrichAttempted)
		if rate > a.cfg.EnrichFailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertEnrichFailureRate,
				Severity: "high",
				Message: fmt.Sprintf(
					"Enrichment failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d attempted in last %dh)",
					rate*100, a.cfg.EnrichFailureRateThreshold*100,
					stats.EnrichFailed, stats.EnrichAttempted, window,
				),
				Details: map[string]any{
					"failure_rate": rate,
					"threshold":    a.cfg.EnrichFailureRateThreshold,
					"failed":       stats.EnrichFailed,
					"attempted":    stats.EnrichAttempted,
				},
				Timestamp: now,
			})
		}
	}

	if a.cfg.CostThresholdUSD > 0 && stats.CostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Spend $%.2f exceeds threshold $%.2f in last %dh (%d Apollo credits)",
				stats.CostUSD, a.cfg.CostThresholdUSD, window, stats.ApolloCredits,
			),
			Details: map[string]any{
				"cost_usd":       stats.CostUSD,
				"threshold_usd":  a.cfg.CostThresholdUSD,
				"apollo_credits": stats.ApolloCredits,
				"sessions":       stats.ActiveSessions,
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

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
