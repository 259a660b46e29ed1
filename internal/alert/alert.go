// Package alert notifies operators about verification runs that need
// attention.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/broker-verify/internal/model"
)

// Type identifies the kind of alert.
type Type string

const (
	// TypeCriticalDiscrepancy fires when a critical field disagrees.
	TypeCriticalDiscrepancy Type = "critical_discrepancy"
	// TypeHighDiscrepancies fires when too many high severity fields disagree.
	TypeHighDiscrepancies Type = "high_discrepancies"
	// TypeLowConfidence fires when the overall confidence is too low.
	TypeLowConfidence Type = "low_confidence"
)

// Alert is the webhook payload for one verification run.
type Alert struct {
	Type             Type           `json:"type"`
	Severity         string         `json:"severity"`
	Message          string         `json:"message"`
	BrokerID         string         `json:"broker_id"`
	BrokerName       string         `json:"broker_name"`
	DiscrepancyCount int            `json:"discrepancy_count"`
	CriticalCount    int            `json:"critical_count"`
	HighCount        int            `json:"high_count"`
	Confidence       float64        `json:"confidence"`
	Status           string         `json:"status"`
	Details          map[string]any `json:"details,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// Thresholds decide when a result is worth an alert.
type Thresholds struct {
	// MaxHigh high severity discrepancies are tolerated. Default: 2.
	MaxHigh int `json:"max_high" mapstructure:"max_high"`
	// MinConfidence below which a run alerts. Default: 0.4.
	MinConfidence float64 `json:"min_confidence" mapstructure:"min_confidence"`
}

// DefaultThresholds returns the standard alert thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxHigh: 2, MinConfidence: 0.4}
}

// Evaluate returns the alert for res, or nil when the run is healthy.
func Evaluate(res *model.VerificationResult, th Thresholds) *Alert {
	if res == nil {
		return nil
	}
	critical := res.CountBySeverity(model.SeverityCritical)
	high := res.CountBySeverity(model.SeverityHigh)

	a := &Alert{
		BrokerID:         res.BrokerID,
		BrokerName:       res.BrokerName,
		DiscrepancyCount: len(res.Discrepancies),
		CriticalCount:    critical,
		HighCount:        high,
		Confidence:       res.OverallConfidence,
		Status:           string(res.Status),
		Timestamp:        res.Timestamp,
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}

	switch {
	case critical > 0:
		a.Type = TypeCriticalDiscrepancy
		a.Severity = "critical"
		a.Message = fmt.Sprintf("%s: %d critical discrepancy(ies) found", res.BrokerName, critical)
		fields := make([]string, 0, critical)
		for _, d := range res.Discrepancies {
			if d.Severity == model.SeverityCritical {
				fields = append(fields, d.Field)
			}
		}
		a.Details = map[string]any{"fields": fields}
	case high > th.MaxHigh:
		a.Type = TypeHighDiscrepancies
		a.Severity = "high"
		a.Message = fmt.Sprintf("%s: %d high severity discrepancies (max %d)", res.BrokerName, high, th.MaxHigh)
	case res.OverallConfidence < th.MinConfidence:
		a.Type = TypeLowConfidence
		a.Severity = "medium"
		a.Message = fmt.Sprintf("%s: confidence %.2f below %.2f", res.BrokerName, res.OverallConfidence, th.MinConfidence)
		a.Details = map[string]any{"threshold": th.MinConfidence, "sources": len(res.Sources)}
	default:
		return nil
	}
	return a
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// WebhookNotifier posts alerts as JSON to a URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier returns a notifier posting to url. A non-positive
// timeout defaults to 10s.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: timeout}}
}

// Notify posts a to the webhook. Any non-2xx status is an error.
func (w *WebhookNotifier) Notify(ctx context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "alert: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "alert: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "alert: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eris.Errorf("alert: webhook returned status %d", resp.StatusCode)
	}
	zap.L().Info("alert: alert sent",
		zap.String("type", string(a.Type)),
		zap.String("broker", a.BrokerName),
		zap.String("severity", a.Severity),
	)
	return nil
}

// LogNotifier writes alerts to the global logger. It is the default
// channel when no webhook is configured.
type LogNotifier struct{}

// Notify logs a as a warning.
func (LogNotifier) Notify(_ context.Context, a Alert) error {
	zap.L().Warn("alert: verification alert",
		zap.String("type", string(a.Type)),
		zap.String("broker", a.BrokerName),
		zap.String("severity", a.Severity),
		zap.String("message", a.Message),
		zap.Int("discrepancies", a.DiscrepancyCount),
		zap.Int("critical", a.CriticalCount),
		zap.Float64("confidence", a.Confidence),
	)
	return nil
}

// MultiNotifier fans an alert out to every notifier. Every notifier is
// attempted; the returned error joins all failures.
type MultiNotifier []Notifier

// Notify delivers a to every notifier.
func (m MultiNotifier) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewNotifier returns the notifier for a configuration: the log notifier
// alone, or the log notifier plus a webhook when url is set.
func NewNotifier(url string, timeout time.Duration) Notifier {
	if url == "" {
		return LogNotifier{}
	}
	return MultiNotifier{LogNotifier{}, NewWebhookNotifier(url, timeout)}
}
