// Package audit implements the append-only JSONL audit log: every policy
// decision, tool call, and tool result the Tool Router produces is appended
// here as a single immutable entry, with a bounded streaming fan-out for live
// subscribers (the SSE audit stream and the derived alert/metrics views).
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/domekit-run/domekit/internal/domekit/policy"
)

// EventType names the kind of audit entry. The Tool Router guarantees a
// strict ordering: request.start always precedes every other event for its
// request_id, request.end always follows all of them, a tool.call event
// always precedes its matching tool.result, and policy.block appears only
// for a tool call the Policy Engine denied (an allowed check emits no event
// of its own — it is implied by the tool.call/tool.result pair that follows).
type EventType string

const (
	EventRequestStart EventType = "request.start"
	EventPolicyBlock  EventType = "policy.block"
	EventToolCall     EventType = "tool.call"
	EventToolResult   EventType = "tool.result"
	EventRequestEnd   EventType = "request.end"
)

// Entry is a single immutable audit record. EntryID is a ULID so entries sort
// lexically in the order they were appended even when two share the same
// microsecond timestamp. App, Model, and PolicyMode are copied from the
// manifest snapshot and request in effect when the entry was produced, so a
// consumer can filter the log without joining against request.start.
type Entry struct {
	EntryID    string           `json:"entry_id"`
	RequestID  string           `json:"request_id"`
	Timestamp  time.Time        `json:"timestamp"`
	Type       EventType        `json:"type"`
	App        string           `json:"app,omitempty"`
	Model      string           `json:"model,omitempty"`
	PolicyMode string           `json:"policy_mode,omitempty"`
	Tool       string           `json:"tool,omitempty"`
	Decision   *policy.Decision `json:"decision,omitempty"`
	Detail     json.RawMessage  `json:"detail,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// NewRequestID returns a fresh UUID for a gateway request.
func NewRequestID() string {
	return uuid.NewString()
}

// subscriberBuffer is the bounded channel size for each live subscriber.
// A subscriber whose buffer is full when a new entry arrives is dropped: it
// is unregistered and its channel closed, rather than blocking the writer or
// losing an entry from the middle of its stream (drop-slow-subscriber, never
// drop-newest, never block appends).
const subscriberBuffer = 256

// Log is an append-only, single-writer JSONL audit log with streaming
// fan-out to subscribers.
type Log struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer

	subMu sync.Mutex
	subs  map[int]chan Entry
	nextID int

	entriesMu sync.RWMutex
	byRequest map[string][]Entry
}

// Open opens (creating if necessary) the JSONL audit file at path for
// appending.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Log{
		file:      f,
		w:         bufio.NewWriter(f),
		subs:      make(map[int]chan Entry),
		byRequest: make(map[string][]Entry),
	}, nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("flush audit log: %w", err)
	}
	return l.file.Close()
}

// Append writes entry as a single JSON line and fans it out to every live
// subscriber. EntryID and Timestamp are assigned here when unset, so callers
// only need to populate RequestID, Type, and the event-specific fields.
func (l *Log) Append(entry Entry) error {
	if entry.EntryID == "" {
		entry.EntryID = ulid.Make().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	l.mu.Lock()
	_, werr := l.w.Write(data)
	if werr == nil {
		_, werr = l.w.WriteString("\n")
	}
	if werr == nil {
		werr = l.w.Flush()
	}
	l.mu.Unlock()
	if werr != nil {
		return fmt.Errorf("append audit entry: %w", werr)
	}

	l.entriesMu.Lock()
	l.byRequest[entry.RequestID] = append(l.byRequest[entry.RequestID], entry)
	l.entriesMu.Unlock()

	l.fanOut(entry)
	return nil
}

func (l *Log) fanOut(entry Entry) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for id, ch := range l.subs {
		select {
		case ch <- entry:
		default:
			// Subscriber is behind; drop the subscriber itself so that
			// every entry it did receive arrived in order with no gaps.
			// Closing the channel tells the reader it has been cut off.
			delete(l.subs, id)
			close(ch)
		}
	}
}

// ByRequest returns every entry recorded so far for requestID, in append
// order. Intended for short-lived per-request debugging/inspection; callers
// needing durable history should read the JSONL file directly.
func (l *Log) ByRequest(requestID string) []Entry {
	l.entriesMu.RLock()
	defer l.entriesMu.RUnlock()
	entries := l.byRequest[requestID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Subscription is a live feed of audit entries appended after the
// subscription was created. Callers must call Close when done to release the
// channel.
type Subscription struct {
	ch chan Entry
	id int
	l  *Log
}

// C returns the channel to receive entries on. The channel is closed when
// the subscriber falls a full buffer behind and is dropped.
func (s *Subscription) C() <-chan Entry { return s.ch }

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.l.subMu.Lock()
	delete(s.l.subs, s.id)
	s.l.subMu.Unlock()
}

// Subscribe registers a new live subscriber and returns a Subscription whose
// channel receives every entry appended from this point forward, until the
// subscriber is dropped for falling a full buffer behind.
func (l *Log) Subscribe() *Subscription {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	id := l.nextID
	l.nextID++
	ch := make(chan Entry, subscriberBuffer)
	l.subs[id] = ch
	return &Subscription{ch: ch, id: id, l: l}
}
