// Package tracker owns the progress of many concurrently advancing work units.
//
// Every unit gets its own ticker goroutine. The tracker keeps a cancellation
// handle per running unit and re-checks it under the lock before applying any
// tick, so once Remove or Fail returns no further update for that unit can be
// observed. The tracker knows nothing about what the work represents.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/events"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/uploads"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("tracker closed")

// Options tunes how units advance.
type Options struct {
	// TickInterval between autonomous advances of one unit. Zero or negative
	// disables autonomous advancement; callers then drive Advance themselves.
	TickInterval time.Duration
	// MaxIncrement bounds a single random step; steps are drawn from [0, MaxIncrement).
	MaxIncrement float64
	// MaxDuration fails a unit still running this long after submission. Zero disables it.
	MaxDuration time.Duration
	// Seed for the step generator; zero seeds from the clock.
	Seed int64
	// Increment overrides the random step source.
	Increment func() float64
	Clock     application.Clock
}

// DefaultOptions mirrors the reference upload simulation: a step of up to 20% every 200ms.
func DefaultOptions() Options {
	return Options{
		TickInterval: 200 * time.Millisecond,
		MaxIncrement: 20,
	}
}

// Tracker is safe for concurrent use. Reporter callbacks run while the
// tracker lock is held and must not call back into the tracker.
type Tracker struct {
	mu      sync.RWMutex
	units   map[uploads.UnitID]*uploads.WorkUnit
	order   []uploads.UnitID
	cancels map[uploads.UnitID]context.CancelFunc
	changed chan struct{}
	closed  bool
	rnd     *rand.Rand // guarded by mu

	opts     Options
	clock    application.Clock
	reporter events.Reporter
	log      logrus.FieldLogger
	wg       sync.WaitGroup
}

// New creates a tracker. A nil reporter discards events; a nil logger uses the standard logger.
func New(opts Options, reporter events.Reporter, log logrus.FieldLogger) *Tracker {
	if opts.MaxIncrement <= 0 {
		opts.MaxIncrement = DefaultOptions().MaxIncrement
	}
	clock := opts.Clock
	if clock == nil {
		clock = application.SystemClock{}
	}
	seed := opts.Seed
	if seed == 0 {
		seed = clock.Now().UnixNano()
	}
	if reporter == nil {
		reporter = events.Discard
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tracker{
		units:    make(map[uploads.UnitID]*uploads.WorkUnit),
		cancels:  make(map[uploads.UnitID]context.CancelFunc),
		changed:  make(chan struct{}),
		rnd:      rand.New(rand.NewSource(seed)),
		opts:     opts,
		clock:    clock,
		reporter: reporter,
		log:      log,
	}
}

// Submit registers a unit, moves it to running and schedules its advancement.
func (t *Tracker) Submit(meta uploads.Metadata) (uploads.WorkUnit, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, err := t.registerLocked(meta)
	if err != nil {
		return uploads.WorkUnit{}, err
	}
	if t.opts.TickInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancels[u.ID] = cancel
		t.wg.Add(1)
		go t.loop(ctx, u.ID)
	}
	return *u, nil
}

// Reject registers a unit that fails straight away, without ever advancing.
func (t *Tracker) Reject(meta uploads.Metadata, reason string) (uploads.WorkUnit, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, err := t.registerLocked(meta)
	if err != nil {
		return uploads.WorkUnit{}, err
	}
	t.failLocked(u, reason)
	return *u, nil
}

func (t *Tracker) registerLocked(meta uploads.Metadata) (*uploads.WorkUnit, error) {
	if t.closed {
		return nil, ErrClosed
	}
	u := &uploads.WorkUnit{
		ID:          uploads.UnitID(uuid.NewString()),
		Name:        meta.Name,
		SizeBytes:   meta.SizeBytes,
		MediaType:   meta.MediaType,
		Status:      uploads.StatusPending,
		SubmittedAt: t.clock.Now(),
	}
	t.units[u.ID] = u
	t.order = append(t.order, u.ID)
	u.Status = uploads.StatusRunning

	t.log.WithFields(logrus.Fields{"unit": u.ID, "name": u.Name, "size": u.SizeBytes}).Debug("work unit submitted")
	t.emitLocked(events.UnitSubmitted, u, "")
	return u, nil
}

// Advance applies one step to a running unit. Units that already reached a
// terminal status are returned unchanged.
func (t *Tracker) Advance(id uploads.UnitID) (uploads.WorkUnit, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.units[id]
	if !ok {
		return uploads.WorkUnit{}, &uploads.UnknownUnitError{ID: id}
	}
	if u.Status == uploads.StatusRunning {
		t.advanceLocked(u)
	}
	return *u, nil
}

// Fail moves a running unit to failed and stops its advancement.
func (t *Tracker) Fail(id uploads.UnitID, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.units[id]
	if !ok {
		return &uploads.UnknownUnitError{ID: id}
	}
	if !uploads.CanTransition(u.Status, uploads.StatusFailed) {
		return &uploads.TransitionError{ID: id, From: u.Status, To: uploads.StatusFailed}
	}
	t.failLocked(u, reason)
	return nil
}

// Remove stops tracking a unit. A running unit's advancement is cancelled first.
func (t *Tracker) Remove(id uploads.UnitID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.units[id]
	if !ok {
		return &uploads.UnknownUnitError{ID: id}
	}
	t.releaseLocked(id)
	delete(t.units, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
	t.log.WithField("unit", id).Debug("work unit removed")
	t.emitLocked(events.UnitRemoved, u, "")
	t.notifyLocked()
	return nil
}

// Get returns a snapshot of one unit.
func (t *Tracker) Get(id uploads.UnitID) (uploads.WorkUnit, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.units[id]
	if !ok {
		return uploads.WorkUnit{}, &uploads.UnknownUnitError{ID: id}
	}
	return *u, nil
}

// List returns every tracked unit in submission order.
func (t *Tracker) List() []uploads.WorkUnit {
	return t.filter(func(*uploads.WorkUnit) bool { return true })
}

// ListCompleted returns the completed units in submission order.
func (t *Tracker) ListCompleted() []uploads.WorkUnit {
	return t.filter(func(u *uploads.WorkUnit) bool { return u.Status == uploads.StatusCompleted })
}

// Ready reports whether at least one unit completed and none is still in flight.
// Failed units neither block nor count toward readiness.
func (t *Tracker) Ready() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	completed := 0
	for _, u := range t.units {
		switch u.Status {
		case uploads.StatusPending, uploads.StatusRunning:
			return false
		case uploads.StatusCompleted:
			completed++
		}
	}
	return completed > 0
}

// Settled reports whether no unit is pending or running.
func (t *Tracker) Settled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.settledLocked()
}

// WaitSettled blocks until no unit is pending or running, or ctx ends.
func (t *Tracker) WaitSettled(ctx context.Context) error {
	for {
		t.mu.RLock()
		settled := t.settledLocked()
		ch := t.changed
		t.mu.RUnlock()
		if settled {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Close cancels every scheduled advance and waits for the tickers to exit.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	for id, cancel := range t.cancels {
		cancel()
		delete(t.cancels, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Tracker) loop(ctx context.Context, id uploads.UnitID) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.tick(ctx, id) {
				return
			}
		}
	}
}

// tick reports whether the unit should keep ticking.
func (t *Tracker) tick(ctx context.Context, id uploads.UnitID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	u, ok := t.units[id]
	if !ok || u.Status != uploads.StatusRunning {
		return false
	}
	t.advanceLocked(u)
	return u.Status == uploads.StatusRunning
}

func (t *Tracker) advanceLocked(u *uploads.WorkUnit) {
	now := t.clock.Now()
	if t.opts.MaxDuration > 0 && now.Sub(u.SubmittedAt) > t.opts.MaxDuration {
		t.failLocked(u, fmt.Sprintf("timed out after %s", t.opts.MaxDuration))
		return
	}

	next := u.Progress + t.stepLocked()
	if next >= 100 {
		u.Progress = 100
		u.Status = uploads.StatusCompleted
		u.FinishedAt = now
		t.releaseLocked(u.ID)
		t.log.WithFields(logrus.Fields{"unit": u.ID, "name": u.Name}).Info("work unit completed")
		t.emitLocked(events.UnitCompleted, u, "")
		t.notifyLocked()
		return
	}
	u.Progress = next
	t.emitLocked(events.UnitProgress, u, "")
}

func (t *Tracker) stepLocked() float64 {
	var step float64
	if t.opts.Increment != nil {
		step = t.opts.Increment()
	} else {
		step = t.rnd.Float64() * t.opts.MaxIncrement
	}
	if step < 0 {
		return 0
	}
	return step
}

func (t *Tracker) failLocked(u *uploads.WorkUnit, reason string) {
	u.Status = uploads.StatusFailed
	u.FailureReason = reason
	u.FinishedAt = t.clock.Now()
	t.releaseLocked(u.ID)
	t.log.WithFields(logrus.Fields{"unit": u.ID, "name": u.Name, "reason": reason}).Warn("work unit failed")
	t.emitLocked(events.UnitFailed, u, reason)
	t.notifyLocked()
}

// releaseLocked drops the cancellation handle; the ticker sees it on its next resumption.
func (t *Tracker) releaseLocked(id uploads.UnitID) {
	if cancel, ok := t.cancels[id]; ok {
		cancel()
		delete(t.cancels, id)
	}
}

func (t *Tracker) notifyLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}

func (t *Tracker) settledLocked() bool {
	for _, u := range t.units {
		if !u.Status.Terminal() {
			return false
		}
	}
	return true
}

func (t *Tracker) emitLocked(kind events.Kind, u *uploads.WorkUnit, errMsg string) {
	snap := *u
	t.reporter.Report(events.Event{Kind: kind, At: t.clock.Now(), Unit: &snap, Error: errMsg})
}

func (t *Tracker) filter(keep func(*uploads.WorkUnit) bool) []uploads.WorkUnit {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]uploads.WorkUnit, 0, len(t.order))
	for _, id := range t.order {
		if u := t.units[id]; keep(u) {
			out = append(out, *u)
		}
	}
	return out
}
