package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/events"
)

// Metrics stores process-wide counters
type Metrics struct {
	RequestsTotal      atomic.Uint64
	RequestsInProgress atomic.Int64
	RequestsSuccess    atomic.Uint64
	RequestsFailed     atomic.Uint64

	UnitsSubmitted atomic.Uint64
	UnitsCompleted atomic.Uint64
	UnitsFailed    atomic.Uint64
	UnitsRemoved   atomic.Uint64

	RunsStarted   atomic.Uint64
	RunsRunning   atomic.Int64
	RunsDone      atomic.Uint64
	RunsFailed    atomic.Uint64
	RunsCancelled atomic.Uint64

	ReportsGenerated atomic.Uint64
	SessionsCreated  atomic.Uint64

	StartTime time.Time
}

var globalMetrics = &Metrics{StartTime: time.Now()}

// EventMetrics counts workflow events; plug it into a session as an events.Reporter.
var EventMetrics events.Reporter = events.ReporterFunc(RecordEvent)

// RecordEvent updates the workflow counters for one event.
func RecordEvent(ev events.Event) {
	m := globalMetrics
	switch ev.Kind {
	case events.UnitSubmitted:
		m.UnitsSubmitted.Add(1)
	case events.UnitCompleted:
		m.UnitsCompleted.Add(1)
	case events.UnitFailed:
		m.UnitsFailed.Add(1)
	case events.UnitRemoved:
		m.UnitsRemoved.Add(1)
	case events.RunStarted:
		m.RunsStarted.Add(1)
		m.RunsRunning.Add(1)
	case events.RunDone:
		m.RunsDone.Add(1)
		m.RunsRunning.Add(-1)
	case events.RunFailed:
		m.RunsFailed.Add(1)
		m.RunsRunning.Add(-1)
	case events.RunCancelled:
		m.RunsCancelled.Add(1)
		m.RunsRunning.Add(-1)
	case events.ReportGenerated:
		m.ReportsGenerated.Add(1)
	}
}

// IncrementSessions counts a newly created session
func IncrementSessions() {
	globalMetrics.SessionsCreated.Add(1)
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m := globalMetrics

	return map[string]interface{}{
		"requests_total":       m.RequestsTotal.Load(),
		"requests_in_progress": m.RequestsInProgress.Load(),
		"requests_success":     m.RequestsSuccess.Load(),
		"requests_failed":      m.RequestsFailed.Load(),
		"sessions_created":     m.SessionsCreated.Load(),
		"units_submitted":      m.UnitsSubmitted.Load(),
		"units_completed":      m.UnitsCompleted.Load(),
		"units_failed":         m.UnitsFailed.Load(),
		"units_removed":        m.UnitsRemoved.Load(),
		"runs_started":         m.RunsStarted.Load(),
		"runs_running":         m.RunsRunning.Load(),
		"runs_done":            m.RunsDone.Load(),
		"runs_failed":          m.RunsFailed.Load(),
		"runs_cancelled":       m.RunsCancelled.Load(),
		"reports_generated":    m.ReportsGenerated.Load(),
		"uptime_seconds":       time.Since(m.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := globalMetrics
		m.RequestsTotal.Add(1)
		m.RequestsInProgress.Add(1)
		defer m.RequestsInProgress.Add(-1)

		wrapped := wrapWriter(w)
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.RequestsSuccess.Add(1)
		} else {
			m.RequestsFailed.Add(1)
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}
