package observability

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/spec-kit/sla-guard/internal/events"
)

// Metrics keeps in-process counters for requests, errors and domain events.
// A nil *Metrics is a valid no-op.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	eventCount   map[events.EventType]int64
	latencyTotal time.Duration
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Requests         map[string]int64 `json:"requests"`
	Errors           map[string]int64 `json:"errors"`
	Events           map[string]int64 `json:"events"`
	AverageLatencyMs float64          `json:"average_latency_ms"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		eventCount:   make(map[events.EventType]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := method + " " + path + " " + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.latencyTotal += duration
}

// RecordError increments error counters by error code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := method + " " + path + " " + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// Observe counts every domain event published on dispatcher.
func (m *Metrics) Observe(dispatcher events.Dispatcher, types ...events.EventType) {
	if m == nil || dispatcher == nil {
		return
	}
	for _, t := range types {
		dispatcher.Subscribe(t, m.countEvent)
	}
}

func (m *Metrics) countEvent(_ context.Context, event events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventCount[event.Type]++
	return nil
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Requests: map[string]int64{},
		Errors:   map[string]int64{},
		Events:   map[string]int64{},
	}
	if m == nil {
		return snap
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int64
	for k, v := range m.requestCount {
		snap.Requests[k] = v
		total += v
	}
	for k, v := range m.errorCount {
		snap.Errors[k] = v
	}
	for k, v := range m.eventCount {
		snap.Events[string(k)] = v
	}
	if total > 0 {
		snap.AverageLatencyMs = float64(m.latencyTotal.Milliseconds()) / float64(total)
	}
	return snap
}

// EventTypes lists every event the service publishes, sorted.
func EventTypes() []events.EventType {
	types := []events.EventType{
		events.EventTicketCreated,
		events.EventTicketAccepted,
		events.EventTicketReassigned,
		events.EventTicketEscalated,
		events.EventTicketResolved,
		events.EventSLAWarning,
		events.EventCommentAdded,
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
