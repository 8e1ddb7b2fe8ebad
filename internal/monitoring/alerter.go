package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bioscope/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertLayerFailureRate AlertType = "layer_failure_rate"
	AlertSyntheticRate    AlertType = "synthetic_rate"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks a window of counters against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()
	minSamples := float64(a.cfg.MinSamples)

	layers := make([]string, 0, len(snap.LayerQueries))
	for layer := range snap.LayerQueries {
		layers = append(layers, layer)
	}
	sort.Strings(layers)

	for _, layer := range layers {
		total := snap.LayerQueries[layer]
		if total < minSamples || a.cfg.LayerFailureThreshold <= 0 {
			continue
		}
		rate := snap.LayerFailureRate(layer)
		if rate <= a.cfg.LayerFailureThreshold {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertLayerFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Layer %s failure rate %.1f%% exceeds threshold %.1f%% (%.0f failed / %.0f queries)",
				layer, rate*100, a.cfg.LayerFailureThreshold*100, snap.LayerFailures[layer], total,
			),
			Details: map[string]any{
				"layer":        layer,
				"failure_rate": rate,
				"threshold":    a.cfg.LayerFailureThreshold,
				"failed":       snap.LayerFailures[layer],
				"queries":      total,
			},
			Timestamp: now,
		})
	}

	if total := snap.TotalResolutions(); total >= minSamples && total > 0 && a.cfg.SyntheticRateThreshold > 0 {
		rate := snap.SyntheticRate()
		if rate > a.cfg.SyntheticRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertSyntheticRate,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Synthetic mitigation rate %.1f%% exceeds threshold %.1f%% (%.0f of %.0f resolutions)",
					rate*100, a.cfg.SyntheticRateThreshold*100, snap.Resolutions["synthetic"], total,
				),
				Details: map[string]any{
					"synthetic_rate": rate,
					"threshold":      a.cfg.SyntheticRateThreshold,
					"resolutions":    total,
					"timeouts":       snap.Timeouts,
				},
				Timestamp: now,
			})
		}
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

// sendWebhook posts a single alert to the webhook URL.
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
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
