// Package workflow ties the tracker, the pipeline runner and the aggregator
// into one review session: upload files, analyze them once every upload has
// settled, then read the dashboard or generate a report.
package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/aggregate"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/events"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/pipeline"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/reports"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/tracker"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/analysis"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/report"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/risk"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/uploads"
)

var (
	ErrNotReady        = errors.New("uploads are not ready for analysis")
	ErrNoResult        = errors.New("no analysis result available")
	ErrUnknownSession  = errors.New("unknown session")
	ErrReportsDisabled = errors.New("report generation is not configured")
	ErrSessionClosed   = errors.New("session closed")
)

// DefaultMaxUploadBytes is the largest file accepted by default (10 MiB).
const DefaultMaxUploadBytes int64 = 10 << 20

type Options struct {
	Tracker  tracker.Options
	Pipeline pipeline.Options
	// Phases run by StartAnalysis; empty means pipeline.DefaultPhases.
	Phases []string
	// MaxUploadBytes fails larger submissions right away. Zero or negative disables the check.
	MaxUploadBytes int64
	// Reporter receives every session event in addition to subscribers.
	Reporter events.Reporter
	Clock    application.Clock
}

func DefaultOptions() Options {
	return Options{
		Tracker:        tracker.DefaultOptions(),
		Pipeline:       pipeline.DefaultOptions(),
		Phases:         pipeline.DefaultPhases(),
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

// Session exclusively owns the uploads, the analysis run and its result.
// Callers only ever receive copies.
type Session struct {
	ID        string
	CreatedAt time.Time

	tracker *tracker.Tracker
	runner  *pipeline.Runner
	broker  *events.Broker
	reports *reports.Service
	phases  []string
	maxSize int64
	log     logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	clock  application.Clock
	emit   events.Reporter

	// mu serializes StartAnalysis, Reset and Close and guards the fields below.
	mu       sync.Mutex
	riskRun  analysis.RunID
	riskData risk.Data
	closed   bool
}

// NewSession builds a session around analyzer. svc may be nil when reports are not wanted.
func NewSession(id string, analyzer analysis.Analyzer, svc *reports.Service, opts Options, log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	clock := opts.Clock
	if clock == nil {
		clock = application.SystemClock{}
	}
	if opts.Tracker.Clock == nil {
		opts.Tracker.Clock = clock
	}
	if opts.Pipeline.Clock == nil {
		opts.Pipeline.Clock = clock
	}
	phases := opts.Phases
	if len(phases) == 0 {
		phases = pipeline.DefaultPhases()
	}
	log = log.WithField("session", id)

	s := &Session{
		ID:        id,
		CreatedAt: clock.Now(),
		broker:    events.NewBroker(),
		reports:   svc,
		phases:    append([]string(nil), phases...),
		maxSize:   opts.MaxUploadBytes,
		log:       log,
		clock:     clock,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	fanout := events.Multi(s.broker, opts.Reporter)
	s.emit = events.ReporterFunc(func(ev events.Event) {
		ev.SessionID = id
		logEvent(log, ev)
		fanout.Report(ev)
	})
	s.tracker = tracker.New(opts.Tracker, s.emit, log)
	s.runner = pipeline.New(analyzer, opts.Pipeline, s.emit, log)
	return s
}

// Submit registers an upload. Files above the size limit are tracked but failed immediately.
func (s *Session) Submit(meta uploads.Metadata) (uploads.WorkUnit, error) {
	if s.maxSize > 0 && meta.SizeBytes > s.maxSize {
		reason := fmt.Sprintf("file is %s, the limit is %s",
			humanize.IBytes(uint64(meta.SizeBytes)), humanize.IBytes(uint64(s.maxSize)))
		return s.tracker.Reject(meta, reason)
	}
	return s.tracker.Submit(meta)
}

func (s *Session) Upload(id uploads.UnitID) (uploads.WorkUnit, error) { return s.tracker.Get(id) }

func (s *Session) Uploads() []uploads.WorkUnit { return s.tracker.List() }

// CompletedUploads is the file set a new analysis would receive.
func (s *Session) CompletedUploads() []uploads.WorkUnit { return s.tracker.ListCompleted() }

func (s *Session) RemoveUpload(id uploads.UnitID) error { return s.tracker.Remove(id) }

// Busy reports whether a run is active or an upload is still in flight.
func (s *Session) Busy() bool {
	return s.runner.Snapshot().Status == analysis.RunRunning || !s.tracker.Settled()
}

// Ready reports whether StartAnalysis would be accepted upload-wise.
func (s *Session) Ready() bool { return s.tracker.Ready() }

// WaitUploads blocks until no upload is still in flight.
func (s *Session) WaitUploads(ctx context.Context) error { return s.tracker.WaitSettled(ctx) }

// StartAnalysis runs the phases over the completed uploads. It needs at least
// one completed upload and none still in flight. The run lives as long as the
// session unless it is cancelled.
func (s *Session) StartAnalysis() (*pipeline.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if !s.tracker.Ready() {
		return nil, ErrNotReady
	}
	return s.runner.Start(s.ctx, s.phases, s.tracker.ListCompleted())
}

// Analyze starts a run and waits for it. If ctx ends first the run is cancelled.
func (s *Session) Analyze(ctx context.Context) (analysis.Result, error) {
	h, err := s.StartAnalysis()
	if err != nil {
		return analysis.Result{}, err
	}
	res, err := h.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		h.Cancel()
	}
	return res, err
}

func (s *Session) Run() analysis.RunSnapshot { return s.runner.Snapshot() }

func (s *Session) CancelAnalysis() { s.runner.Cancel() }

// Result returns the result of the finished run.
func (s *Session) Result() (analysis.Result, error) {
	_, res, err := s.outcome()
	return res, err
}

// Risk returns the risk data derived from the current result. It is computed
// once per run.
func (s *Session) Risk() (risk.Data, error) {
	run, res, err := s.outcome()
	if err != nil {
		return risk.Data{}, err
	}
	return s.riskFor(run, res)
}

func (s *Session) outcome() (analysis.RunID, analysis.Result, error) {
	run, res, ok := s.runner.Outcome()
	if !ok {
		return "", analysis.Result{}, ErrNoResult
	}
	return run, res, nil
}

func (s *Session) riskFor(run analysis.RunID, res analysis.Result) (risk.Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.riskRun == run {
		return s.riskData, nil
	}
	d, err := aggregate.DeriveRisk(res)
	if err != nil {
		return risk.Data{}, err
	}
	s.riskRun, s.riskData = run, d
	return d, nil
}

// Dashboard summarizes the current result and its risk.
func (s *Session) Dashboard() (aggregate.Dashboard, error) {
	run, res, err := s.outcome()
	if err != nil {
		return aggregate.Dashboard{}, err
	}
	d, err := s.riskFor(run, res)
	if err != nil {
		return aggregate.Dashboard{}, err
	}
	return aggregate.BuildDashboard(res, d)
}

// GenerateReport hands the current result to the report service. The session
// state is only read.
func (s *Session) GenerateReport(ctx context.Context) (*report.Report, error) {
	if s.reports == nil {
		return nil, ErrReportsDisabled
	}
	run, res, err := s.outcome()
	if err != nil {
		return nil, err
	}
	d, err := s.riskFor(run, res)
	if err != nil {
		return nil, err
	}
	dash, err := aggregate.BuildDashboard(res, d)
	if err != nil {
		return nil, err
	}
	rep, err := s.reports.Generate(ctx, reports.GenerateCommand{
		SessionID: s.ID,
		RunID:     run,
		Result:    res,
		Risk:      d,
		Dashboard: dash,
	})
	if err != nil {
		s.log.WithError(err).Warn("report generation failed")
		return nil, err
	}
	snap := *rep
	s.emit.Report(events.Event{Kind: events.ReportGenerated, At: s.clock.Now(), Report: &snap})
	return rep, nil
}

// Reports lists the reports generated for this session.
func (s *Session) Reports(ctx context.Context, limit int) ([]*report.Report, error) {
	if s.reports == nil {
		return nil, ErrReportsDisabled
	}
	return s.reports.List(ctx, s.ID, limit)
}

// Report returns one of this session's reports. Reports of other sessions are
// reported as missing.
func (s *Session) Report(ctx context.Context, id report.ReportID) (*report.Report, error) {
	if s.reports == nil {
		return nil, ErrReportsDisabled
	}
	rep, err := s.reports.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rep.SessionID != s.ID {
		return nil, sql.ErrNoRows
	}
	return rep, nil
}

// Reset drops the analysis and every upload. It fails with BusyError while a run is active.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.runner.Reset(); err != nil {
		return err
	}
	for _, u := range s.tracker.List() {
		if err := s.tracker.Remove(u.ID); err != nil {
			var unknown *uploads.UnknownUnitError
			if !errors.As(err, &unknown) {
				return err
			}
		}
	}
	s.riskRun, s.riskData = "", risk.Data{}
	s.log.Info("session reset")
	return nil
}

// Subscribe streams session events. The channel closes on Unsubscribe or Close.
func (s *Session) Subscribe(buffer int) (uint64, <-chan events.Event) {
	return s.broker.Subscribe(buffer)
}

func (s *Session) Unsubscribe(id uint64) { s.broker.Unsubscribe(id) }

// DroppedEvents counts the deliveries subscribers missed because their buffer was full.
func (s *Session) DroppedEvents() uint64 { return s.broker.Dropped() }

// Close cancels all scheduled work and waits for it to stop.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.runner.Close()
	s.tracker.Close()
	s.broker.Close()
	s.log.Debug("session closed")
}

func logEvent(log logrus.FieldLogger, ev events.Event) {
	fields := logrus.Fields{"event": ev.Kind}
	if ev.Unit != nil {
		fields["unit"] = ev.Unit.ID
		fields["progress"] = ev.Unit.Progress
	}
	if ev.Run != nil {
		fields["run"] = ev.Run.ID
		fields["phase"] = ev.Run.CurrentPhase
		fields["progress"] = ev.Run.Progress
	}
	log.WithFields(fields).Debug("progress event")
}
