// Package alerts derives security-relevant signals from the audit log: a
// view over recorded entries, not a new source of truth. Nothing here writes
// back to the log.
package alerts

import (
	"time"

	"github.com/domekit-run/domekit/internal/domekit/audit"
)

// Severity classifies how urgently an alert warrants operator attention.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a single derived security signal.
type Alert struct {
	Severity  Severity  `json:"severity"`
	RequestID string    `json:"request_id"`
	Rule      string    `json:"rule,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Thresholds configures the heuristics below. Zero values fall back to the
// documented defaults.
type Thresholds struct {
	// DenialBurstCount is how many policy denials within DenialBurstWindow
	// from a single request_id raises a "denial burst" alert — a model
	// repeatedly probing for an allowed resource looks like this.
	DenialBurstCount  int
	DenialBurstWindow time.Duration
}

func (t Thresholds) withDefaults() Thresholds {
	if t.DenialBurstCount <= 0 {
		t.DenialBurstCount = 3
	}
	if t.DenialBurstWindow <= 0 {
		t.DenialBurstWindow = 10 * time.Second
	}
	return t
}

// Scan walks entries in order and derives alerts. It is pure: the same
// entries and thresholds always produce the same alerts, so callers can run
// it incrementally over a growing log without double-counting as long as
// they pass the same window of entries each time.
func Scan(entries []audit.Entry, thresholds Thresholds) []Alert {
	thresholds = thresholds.withDefaults()

	var alerts []Alert
	denialTimes := make(map[string][]time.Time)

	for _, e := range entries {
		if e.Type != audit.EventPolicyBlock {
			continue
		}

		times := append(denialTimes[e.RequestID], e.Timestamp)
		cutoff := e.Timestamp.Add(-thresholds.DenialBurstWindow)
		kept := times[:0]
		for _, t := range times {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		denialTimes[e.RequestID] = kept

		if len(kept) == thresholds.DenialBurstCount {
			rule := ""
			if e.Decision != nil {
				rule = e.Decision.Rule
			}
			alerts = append(alerts, Alert{
				Severity:  SeverityWarning,
				RequestID: e.RequestID,
				Rule:      rule,
				Message:   "repeated policy denials within a short window; possible probing",
				Timestamp: e.Timestamp,
			})
		}
	}

	return alerts
}

// FromFailedRequests derives one alert per request.end entry that recorded
// an error, surfacing request-level failures alongside policy-level ones.
func FromFailedRequests(entries []audit.Entry) []Alert {
	var alerts []Alert
	for _, e := range entries {
		if e.Type == audit.EventRequestEnd && e.Error != "" {
			alerts = append(alerts, Alert{
				Severity:  SeverityInfo,
				RequestID: e.RequestID,
				Message:   e.Error,
				Timestamp: e.Timestamp,
			})
		}
	}
	return alerts
}
