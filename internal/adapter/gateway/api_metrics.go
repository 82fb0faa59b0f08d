package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"roundtable/internal/domain"
)

// Metrics tracks debate counters fed from the event bus.
type Metrics struct {
	DebatesStarted     atomic.Int64
	DebatesCompleted   atomic.Int64
	RoundsCompleted    atomic.Int64
	TurnsCompleted     atomic.Int64
	ParticipantFailure atomic.Int64
	ActiveStreams      atomic.Int64
	RejectedRequests   atomic.Int64

	mu        sync.Mutex
	byReason  map[string]int64 // participant failures by reason
	startTime time.Time
}

// NewMetrics creates a Metrics with its uptime clock started.
func NewMetrics() *Metrics {
	return &Metrics{byReason: make(map[string]int64), startTime: time.Now()}
}

// Subscribe wires the counters to bus and returns the unsubscribe function.
func (m *Metrics) Subscribe(bus domain.EventBus) func() {
	return bus.SubscribeAll(func(_ context.Context, ev domain.Event) {
		switch ev.Type {
		case domain.EventDebateStarted:
			m.DebatesStarted.Add(1)
		case domain.EventDebateCompleted:
			m.DebatesCompleted.Add(1)
		case domain.EventRoundCompleted:
			m.RoundsCompleted.Add(1)
		case domain.EventParticipantDone:
			m.TurnsCompleted.Add(1)
		case domain.EventParticipantFailed:
			var p domain.ParticipantPayload
			_ = json.Unmarshal(ev.Payload, &p)
			m.addFailure(p.Reason)
			m.ParticipantFailure.Add(1)
		}
	})
}

func (m *Metrics) addFailure(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.mu.Lock()
	m.byReason[reason]++
	m.mu.Unlock()
}

// FailuresByReason returns a snapshot of participant failures per reason.
func (m *Metrics) FailuresByReason() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.byReason))
	for k, v := range m.byReason {
		out[k] = v
	}
	return out
}

// Uptime returns the time since the metrics were created.
func (m *Metrics) Uptime() time.Duration { return time.Since(m.startTime) }

// metricsHandler serves GET /metrics in the Prometheus text format.
func metricsHandler(m *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		counter := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
		}
		gauge := func(name, help string, v any) {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %v\n", name, help, name, name, v)
		}

		counter("roundtable_debates_started_total", "Debates started.", m.DebatesStarted.Load())
		counter("roundtable_debates_completed_total", "Debates that emitted debate_done.", m.DebatesCompleted.Load())
		counter("roundtable_rounds_completed_total", "Rounds completed across all debates.", m.RoundsCompleted.Load())
		counter("roundtable_turns_completed_total", "Participant turns that closed normally.", m.TurnsCompleted.Load())
		counter("roundtable_participant_failures_total", "Participant turns that ended in an error.", m.ParticipantFailure.Load())
		byReason := m.FailuresByReason()
		if len(byReason) > 0 {
			const name = "roundtable_participant_failures_by_reason_total"
			fmt.Fprintf(w, "# HELP %s Participant turn failures by reason.\n# TYPE %s counter\n", name, name)
			reasons := make([]string, 0, len(byReason))
			for r := range byReason {
				reasons = append(reasons, r)
			}
			slices.Sort(reasons)
			for _, r := range reasons {
				fmt.Fprintf(w, "%s{reason=%q} %d\n", name, r, byReason[r])
			}
		}
		counter("roundtable_rejected_requests_total", "Debate requests rejected before streaming.", m.RejectedRequests.Load())
		gauge("roundtable_active_streams", "Debate streams currently open.", m.ActiveStreams.Load())
		gauge("roundtable_uptime_seconds", "Seconds since the server started.", int64(m.Uptime().Seconds()))

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		gauge("go_goroutines", "Number of goroutines.", runtime.NumGoroutine())
		gauge("go_memstats_alloc_bytes", "Bytes of allocated heap objects.", mem.Alloc)
	}
}
