// Package metrics derives throughput, latency, error-rate, and tool-usage
// summaries from the audit log, for the /v1/domekit/metrics endpoint's JSON
// view. It is computed on demand from whatever entries the caller passes;
// the HTTP handler passes the entries recorded for a single request_id.
package metrics

import (
	"time"

	"github.com/domekit-run/domekit/internal/domekit/audit"
)

// Summary is a point-in-time aggregation over a window of audit entries.
type Summary struct {
	RequestCount      int            `json:"request_count"`
	ErrorCount        int            `json:"error_count"`
	ToolCallsByTool   map[string]int `json:"tool_calls_by_tool"`
	ToolDenialsByTool map[string]int `json:"tool_denials_by_tool"`
	AverageLatency    time.Duration  `json:"average_latency_ns"`
}

// Summarize aggregates entries into a Summary.
func Summarize(entries []audit.Entry) Summary {
	s := Summary{
		ToolCallsByTool:   make(map[string]int),
		ToolDenialsByTool: make(map[string]int),
	}

	starts := make(map[string]time.Time)
	var totalLatency time.Duration
	var completed int

	for _, e := range entries {
		switch e.Type {
		case audit.EventRequestStart:
			s.RequestCount++
			starts[e.RequestID] = e.Timestamp
		case audit.EventRequestEnd:
			if e.Error != "" {
				s.ErrorCount++
			}
			if start, ok := starts[e.RequestID]; ok {
				totalLatency += e.Timestamp.Sub(start)
				completed++
				delete(starts, e.RequestID)
			}
		case audit.EventToolCall:
			s.ToolCallsByTool[e.Tool]++
		case audit.EventPolicyBlock:
			s.ToolDenialsByTool[e.Tool]++
		}
	}

	if completed > 0 {
		s.AverageLatency = totalLatency / time.Duration(completed)
	}
	return s
}
