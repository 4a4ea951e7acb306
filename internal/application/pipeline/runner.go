// Package pipeline drives one ordered list of analysis phases at a time.
//
// Overall progress walks through each phase's slice in bounded steps while the
// analyzer works concurrently. The run only commits progress 100, the done
// status and the result together, once both the phases and the analyzer have
// finished.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/aggregate"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/events"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/analysis"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/uploads"
)

var (
	ErrCancelled = errors.New("pipeline run cancelled")
	ErrTimeout   = errors.New("pipeline run timed out")
)

// DefaultPhases are the six phases of a document review.
func DefaultPhases() []string {
	return []string{
		"Scanning document structure...",
		"Analyzing content completeness...",
		"Detecting missing information...",
		"Checking for inconsistencies...",
		"Generating quality assessment...",
		"Finalizing analysis report...",
	}
}

type Options struct {
	// StepsPerPhase is how many increments each phase slice is split into.
	StepsPerPhase int
	// StepInterval is the pause before each step. Zero runs the steps back to back.
	StepInterval time.Duration
	// Weights sizes the phase slices; empty means equal slices.
	Weights []float64
	// MaxDuration fails a run that has not finished in time. Zero disables it.
	MaxDuration time.Duration
	Clock       application.Clock
}

func DefaultOptions() Options {
	return Options{
		StepsPerPhase: 10,
		StepInterval:  150 * time.Millisecond,
	}
}

// Runner allows at most one running PipelineRun; Start while running fails with BusyError.
// Reporter callbacks run under the runner lock and must not call back into it.
type Runner struct {
	mu     sync.RWMutex
	state  analysis.RunSnapshot
	result *analysis.Result
	cancel context.CancelFunc

	analyzer analysis.Analyzer
	opts     Options
	clock    application.Clock
	reporter events.Reporter
	log      logrus.FieldLogger
	wg       sync.WaitGroup
}

func New(analyzer analysis.Analyzer, opts Options, reporter events.Reporter, log logrus.FieldLogger) *Runner {
	if opts.StepsPerPhase <= 0 {
		opts.StepsPerPhase = DefaultOptions().StepsPerPhase
	}
	clock := opts.Clock
	if clock == nil {
		clock = application.SystemClock{}
	}
	if reporter == nil {
		reporter = events.Discard
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		state:    analysis.RunSnapshot{Status: analysis.RunIdle},
		analyzer: analyzer,
		opts:     opts,
		clock:    clock,
		reporter: reporter,
		log:      log,
	}
}

// Handle is the caller's view of a started run.
type Handle struct {
	id     analysis.RunID
	done   chan struct{}
	result analysis.Result
	err    error
	runner *Runner
}

func (h *Handle) ID() analysis.RunID { return h.id }

// Done is closed once the run has finished, failed or been cancelled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run ends or ctx is done. Giving up waiting does not cancel the run.
func (h *Handle) Wait(ctx context.Context) (analysis.Result, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return analysis.Result{}, ctx.Err()
	}
}

// Cancel abandons the run. No further progress is applied once Cancel returns.
func (h *Handle) Cancel() {
	h.runner.cancelRun(h.id)
}

// Run starts a run and waits for it.
func (r *Runner) Run(ctx context.Context, phases []string, files []uploads.WorkUnit) (analysis.Result, error) {
	h, err := r.Start(ctx, phases, files)
	if err != nil {
		return analysis.Result{}, err
	}
	return h.Wait(ctx)
}

// Start validates the phases and launches a run. Cancelling ctx abandons the run.
func (r *Runner) Start(ctx context.Context, phases []string, files []uploads.WorkUnit) (*Handle, error) {
	bounds, err := r.boundaries(phases)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Status == analysis.RunRunning {
		return nil, &analysis.BusyError{RunID: r.state.ID}
	}
	if r.state.Status.Terminal() {
		// starting over from a finished run implies a reset
		r.state = analysis.RunSnapshot{Status: analysis.RunIdle}
		r.result = nil
		r.emitLocked(events.RunReset, "")
	}

	h := &Handle{
		id:     analysis.RunID(uuid.NewString()),
		done:   make(chan struct{}),
		runner: r,
	}
	r.state = analysis.RunSnapshot{
		ID:           h.id,
		Phases:       append([]string(nil), phases...),
		CurrentPhase: phases[0],
		Status:       analysis.RunRunning,
		StartedAt:    r.clock.Now(),
	}
	r.result = nil

	var runCtx context.Context
	var cancel context.CancelFunc
	if r.opts.MaxDuration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.opts.MaxDuration)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	r.cancel = cancel

	r.log.WithFields(logrus.Fields{"run": h.id, "phases": len(phases), "files": len(files)}).Info("pipeline run started")
	r.emitLocked(events.RunStarted, "")

	files = append([]uploads.WorkUnit(nil), files...)
	r.wg.Add(1)
	go r.execute(runCtx, cancel, h, phases, bounds, files)
	return h, nil
}

// Snapshot returns the current run state.
func (r *Runner) Snapshot() analysis.RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Result returns the result of the last completed run.
func (r *Runner) Result() (analysis.Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.result == nil {
		return analysis.Result{}, false
	}
	return *r.result, true
}

// Outcome returns the last completed run's id together with its result.
func (r *Runner) Outcome() (analysis.RunID, analysis.Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.result == nil {
		return "", analysis.Result{}, false
	}
	return r.state.ID, *r.result, true
}

// Reset returns a finished runner to idle and drops the previous result.
func (r *Runner) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Status == analysis.RunRunning {
		return &analysis.BusyError{RunID: r.state.ID}
	}
	r.state = analysis.RunSnapshot{Status: analysis.RunIdle}
	r.result = nil
	r.cancel = nil
	r.emitLocked(events.RunReset, "")
	return nil
}

// Cancel abandons the active run, if any.
func (r *Runner) Cancel() {
	r.mu.RLock()
	id := r.state.ID
	r.mu.RUnlock()
	r.cancelRun(id)
}

// Close cancels the active run and waits for its goroutine to exit.
func (r *Runner) Close() {
	r.Cancel()
	r.wg.Wait()
}

func (r *Runner) cancelRun(id analysis.RunID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.ID != id || r.state.Status != analysis.RunRunning {
		return
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.state.Status = analysis.RunCancelled
	r.state.Error = ErrCancelled.Error()
	r.state.FinishedAt = r.clock.Now()
	r.log.WithField("run", id).Info("pipeline run cancelled")
	r.emitLocked(events.RunCancelled, r.state.Error)
}

func (r *Runner) execute(ctx context.Context, cancel context.CancelFunc, h *Handle, phases []string, bounds []float64, files []uploads.WorkUnit) {
	defer r.wg.Done()
	defer cancel()

	var findings analysis.Findings
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f, err := r.analyzer.Analyze(gctx, files)
		if err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
		findings = f
		return nil
	})
	g.Go(func() error {
		return r.drive(gctx, h.id, phases, bounds)
	})

	err := g.Wait()
	var res analysis.Result
	if err == nil {
		res, err = aggregate.Build(findings)
	}
	r.finish(ctx, h, res, err)
}

// drive walks every phase slice. The last step of the last phase is left to finish.
func (r *Runner) drive(ctx context.Context, id analysis.RunID, phases []string, bounds []float64) error {
	steps := r.opts.StepsPerPhase
	last := len(phases) - 1
	for i := range phases {
		if err := r.apply(ctx, id, i, bounds[i], true); err != nil {
			return err
		}
		width := bounds[i+1] - bounds[i]
		for j := 1; j <= steps; j++ {
			if err := r.pause(ctx); err != nil {
				return err
			}
			if i == last && j == steps {
				return nil
			}
			p := bounds[i] + float64(j)*width/float64(steps)
			if err := r.apply(ctx, id, i, p, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, id analysis.RunID, phase int, progress float64, entering bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.state.ID != id || r.state.Status != analysis.RunRunning {
		return ErrCancelled
	}
	if phase > r.state.CurrentPhaseIndex {
		r.state.CurrentPhaseIndex = phase
		r.state.CurrentPhase = r.state.Phases[phase]
	}
	if progress > r.state.Progress && progress < 100 {
		r.state.Progress = progress
	}
	if entering {
		r.log.WithFields(logrus.Fields{"run": id, "phase": r.state.CurrentPhase, "index": phase}).Debug("pipeline phase started")
		r.emitLocked(events.RunPhase, "")
		return nil
	}
	r.emitLocked(events.RunProgress, "")
	return nil
}

func (r *Runner) pause(ctx context.Context) error {
	if r.opts.StepInterval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.opts.StepInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Runner) finish(ctx context.Context, h *Handle, res analysis.Result, err error) {
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		err = ErrCancelled
	}

	r.mu.Lock()
	defer func() {
		r.mu.Unlock()
		close(h.done)
	}()

	if r.state.ID != h.id || r.state.Status != analysis.RunRunning {
		// cancelled while the last step was in flight
		if err == nil || errors.Is(err, ErrCancelled) {
			err = ErrCancelled
		}
		h.err = err
		return
	}

	r.state.FinishedAt = r.clock.Now()
	if err != nil {
		h.err = err
		r.state.Error = err.Error()
		if errors.Is(err, ErrCancelled) {
			r.state.Status = analysis.RunCancelled
			r.emitLocked(events.RunCancelled, r.state.Error)
			return
		}
		r.state.Status = analysis.RunFailed
		r.log.WithFields(logrus.Fields{"run": h.id, "error": err}).Warn("pipeline run failed")
		r.emitLocked(events.RunFailed, r.state.Error)
		return
	}

	r.state.CurrentPhaseIndex = len(r.state.Phases) - 1
	r.state.CurrentPhase = r.state.Phases[r.state.CurrentPhaseIndex]
	r.state.Progress = 100
	r.state.Status = analysis.RunDone
	r.result = &res
	h.result = res
	r.log.WithFields(logrus.Fields{"run": h.id, "score": res.Completeness.Score}).Info("pipeline run done")
	r.emitLocked(events.RunDone, "")
}

// boundaries returns len(phases)+1 cumulative progress marks from 0 to exactly 100.
func (r *Runner) boundaries(phases []string) ([]float64, error) {
	if len(phases) == 0 {
		return nil, &analysis.ValidationError{Field: "phases", Reason: "at least one phase is required"}
	}
	for i, p := range phases {
		if p == "" {
			return nil, &analysis.ValidationError{Field: fmt.Sprintf("phases[%d]", i), Reason: "name is empty"}
		}
	}

	weights := r.opts.Weights
	if len(weights) == 0 {
		weights = make([]float64, len(phases))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(phases) {
		return nil, &analysis.ValidationError{
			Field:  "weights",
			Reason: fmt.Sprintf("%d weights for %d phases", len(weights), len(phases)),
		}
	}
	var total float64
	for i, w := range weights {
		if w <= 0 {
			return nil, &analysis.ValidationError{Field: fmt.Sprintf("weights[%d]", i), Reason: "must be positive"}
		}
		total += w
	}

	bounds := make([]float64, len(phases)+1)
	for i, w := range weights {
		bounds[i+1] = bounds[i] + w/total*100
	}
	bounds[len(phases)] = 100
	return bounds, nil
}

func (r *Runner) snapshotLocked() analysis.RunSnapshot {
	s := r.state
	s.Phases = append([]string(nil), r.state.Phases...)
	return s
}

func (r *Runner) emitLocked(kind events.Kind, errMsg string) {
	snap := r.snapshotLocked()
	r.reporter.Report(events.Event{Kind: kind, At: r.clock.Now(), Run: &snap, Error: errMsg})
}
