package metrics_test

import (
	"testing"
	"time"

	"github.com/domekit-run/domekit/internal/domekit/audit"
	"github.com/domekit-run/domekit/internal/domekit/policy"
	"github.com/domekit-run/domekit/internal/domekit/views/metrics"
)

func TestSummarize_CountsAndLatency(t *testing.T) {
	start := time.Now()
	entries := []audit.Entry{
		{RequestID: "r1", Type: audit.EventRequestStart, Timestamp: start},
		{RequestID: "r1", Type: audit.EventToolCall, Tool: "read_file"},
		{RequestID: "r1", Type: audit.EventRequestEnd, Timestamp: start.Add(2 * time.Second)},
		{RequestID: "r2", Type: audit.EventRequestStart, Timestamp: start},
		{RequestID: "r2", Type: audit.EventRequestEnd, Timestamp: start.Add(time.Second), Error: "boom"},
	}

	s := metrics.Summarize(entries)
	if s.RequestCount != 2 {
		t.Errorf("request_count = %d, want 2", s.RequestCount)
	}
	if s.ErrorCount != 1 {
		t.Errorf("error_count = %d, want 1", s.ErrorCount)
	}
	if s.ToolCallsByTool["read_file"] != 1 {
		t.Errorf("tool_calls_by_tool[read_file] = %d, want 1", s.ToolCallsByTool["read_file"])
	}
	wantAvg := (2*time.Second + time.Second) / 2
	if s.AverageLatency != wantAvg {
		t.Errorf("average_latency = %v, want %v", s.AverageLatency, wantAvg)
	}
}

func TestSummarize_CountsDenials(t *testing.T) {
	entries := []audit.Entry{
		{RequestID: "r1", Type: audit.EventPolicyBlock, Tool: "write_file", Decision: &policy.Decision{Verdict: policy.VerdictDeny}},
		{RequestID: "r1", Type: audit.EventToolCall, Tool: "read_file"},
	}
	s := metrics.Summarize(entries)
	if s.ToolDenialsByTool["write_file"] != 1 {
		t.Errorf("tool_denials_by_tool[write_file] = %d, want 1", s.ToolDenialsByTool["write_file"])
	}
	if _, ok := s.ToolDenialsByTool["read_file"]; ok {
		t.Error("allowed check must not count as a denial")
	}
}
