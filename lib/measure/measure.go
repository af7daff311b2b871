// Package measure collects per-operation latencies and outcomes.
//
// Every store call reports (operation, start time, status) to a Recorder.
// The Registry keeps a go-metrics timer per operation for the benchmark
// summary and exports counters and latency histograms in Prometheus format
// through VictoriaMetrics, served by a small chi router.
package measure

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	gometrics "github.com/rcrowley/go-metrics"
)

// Recorder receives one sample per store operation
type Recorder interface {
	Record(op string, start time.Time, status string)
}

type nopRecorder struct{}

func (nopRecorder) Record(string, time.Time, string) {}

// Nop returns a Recorder that discards all samples
func Nop() Recorder { return nopRecorder{} }

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Registry is a Recorder backed by go-metrics timers and a VictoriaMetrics set.
//
// Thread-safety: All methods are safe for concurrent use.
type Registry struct {
	timers gometrics.Registry
	set    *vm.Set

	mu  sync.Mutex
	ops map[string]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		timers: gometrics.NewRegistry(),
		set:    vm.NewSet(),
		ops:    make(map[string]struct{}),
	}
}

// Record stores the latency of one operation and counts its status. Only
// successful operations (OK, BATCHED_OK) are added to the latency timer.
func (r *Registry) Record(op string, start time.Time, status string) {
	r.set.GetOrCreateCounter(fmt.Sprintf(`dbench_operations_total{op=%q,status=%q}`, op, status)).Inc()
	if status != "OK" && status != "BATCHED_OK" {
		return
	}
	r.set.GetOrCreateHistogram(fmt.Sprintf(`dbench_operation_duration_seconds{op=%q}`, op)).UpdateDuration(start)
	gometrics.GetOrRegisterTimer(op, r.timers).UpdateSince(start)

	r.mu.Lock()
	r.ops[op] = struct{}{}
	r.mu.Unlock()
}

// OpStats summarizes the successful calls of one operation
type OpStats struct {
	Op      string
	Count   int64
	Mean    time.Duration
	P50     time.Duration
	P99     time.Duration
	Max     time.Duration
	RateSec float64 // mean rate over the lifetime of the timer
}

// Stats returns a summary per operation, sorted by name
func (r *Registry) Stats() []OpStats {
	r.mu.Lock()
	names := make([]string, 0, len(r.ops))
	for op := range r.ops {
		names = append(names, op)
	}
	r.mu.Unlock()
	sort.Strings(names)

	out := make([]OpStats, 0, len(names))
	for _, op := range names {
		t := gometrics.GetOrRegisterTimer(op, r.timers).Snapshot()
		ps := t.Percentiles([]float64{0.5, 0.99})
		out = append(out, OpStats{
			Op:      op,
			Count:   t.Count(),
			Mean:    time.Duration(t.Mean()),
			P50:     time.Duration(ps[0]),
			P99:     time.Duration(ps[1]),
			Max:     time.Duration(t.Max()),
			RateSec: t.RateMean(),
		})
	}
	return out
}

// Count returns how often op finished with status
func (r *Registry) Count(op, status string) uint64 {
	return r.set.GetOrCreateCounter(fmt.Sprintf(`dbench_operations_total{op=%q,status=%q}`, op, status)).Get()
}

// Handler returns a router serving /metrics in Prometheus text format. The
// output contains this registry and the process-wide default set.
func (r *Registry) Handler() http.Handler {
	router := chi.NewRouter()
	router.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.set.WritePrometheus(w)
		vm.WritePrometheus(w, true)
	})
	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return router
}
