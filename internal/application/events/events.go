// Package events carries progress notifications from the tracker and the
// pipeline runner to whoever watches a workflow session.
package events

import (
	"time"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/analysis"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/report"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/uploads"
)

// Kind enum
type Kind string

const (
	UnitSubmitted Kind = "unit.submitted"
	UnitProgress  Kind = "unit.progress"
	UnitCompleted Kind = "unit.completed"
	UnitFailed    Kind = "unit.failed"
	UnitRemoved   Kind = "unit.removed"

	RunStarted   Kind = "run.started"
	RunPhase     Kind = "run.phase"
	RunProgress  Kind = "run.progress"
	RunDone      Kind = "run.done"
	RunFailed    Kind = "run.failed"
	RunCancelled Kind = "run.cancelled"
	RunReset     Kind = "run.reset"

	ReportGenerated Kind = "report.generated"
)

// Event is a snapshot taken at the moment of the change. Unit and Run are
// copies; mutating them has no effect on the producer.
type Event struct {
	Kind      Kind                  `json:"kind"`
	SessionID string                `json:"session_id,omitempty"`
	At        time.Time             `json:"at"`
	Unit      *uploads.WorkUnit     `json:"unit,omitempty"`
	Run       *analysis.RunSnapshot `json:"run,omitempty"`
	Report    *report.Report        `json:"report,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// Reporter receives events. Implementations must not block and must not call
// back into the component that reported the event.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(Event)

func (f ReporterFunc) Report(ev Event) { f(ev) }

// Discard drops every event.
var Discard Reporter = ReporterFunc(func(Event) {})

// Multi fans an event out to several reporters in order.
func Multi(reporters ...Reporter) Reporter {
	rs := make([]Reporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return ReporterFunc(func(ev Event) {
		for _, r := range rs {
			r.Report(ev)
		}
	})
}
