package workflow

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/events"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/pipeline"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/reports"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/tracker"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/analysis"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/risk"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/uploads"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/ai/canned"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/db/memory"
)

func quietLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.Tracker = tracker.Options{TickInterval: time.Millisecond, Increment: func() float64 { return 50 }}
	opts.Pipeline = pipeline.Options{StepsPerPhase: 2}
	return opts
}

// stuckOptions keeps uploads running for the length of a test.
func stuckOptions() Options {
	opts := fastOptions()
	opts.Tracker.TickInterval = time.Hour
	return opts
}

func newSession(t *testing.T, analyzer analysis.Analyzer, opts Options) *Session {
	t.Helper()
	svc := &reports.Service{Repo: memory.NewReportRepository(), Log: quietLogger()}
	s := NewSession("s-test", analyzer, svc, opts, quietLogger())
	t.Cleanup(s.Close)
	return s
}

func pdf(name string, size int64) uploads.Metadata {
	return uploads.Metadata{Name: name, SizeBytes: size, MediaType: uploads.MediaPDF}
}

func waitUploads(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitUploads(ctx))
}

func TestSessionEndToEnd(t *testing.T) {
	s := newSession(t, canned.New(), fastOptions())
	subID, ch := s.Subscribe(4096)
	defer s.Unsubscribe(subID)

	for _, name := range []string{"dpr-part1.pdf", "dpr-part2.pdf"} {
		u, err := s.Submit(pdf(name, 2<<20))
		require.NoError(t, err)
		assert.Equal(t, uploads.StatusRunning, u.Status)
	}
	waitUploads(t, s)
	require.True(t, s.Ready())
	require.Len(t, s.CompletedUploads(), 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := s.Analyze(ctx)
	require.NoError(t, err)
	assert.Equal(t, 87, res.Completeness.Score)
	assert.Equal(t, analysis.RunDone, s.Run().Status)

	dash, err := s.Dashboard()
	require.NoError(t, err)
	assert.Equal(t, 36, dash.OverallRisk)
	assert.Equal(t, risk.StatusMedium, dash.RiskStatus)
	assert.Equal(t, 2, dash.CriticalActions)

	rep, err := s.GenerateReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s-test", rep.SessionID)
	assert.Equal(t, string(s.Run().ID), rep.RunID)

	list, err := s.Reports(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	kinds := map[events.Kind]bool{}
	for len(ch) > 0 {
		ev := <-ch
		assert.Equal(t, "s-test", ev.SessionID)
		kinds[ev.Kind] = true
	}
	for _, k := range []events.Kind{events.UnitSubmitted, events.UnitCompleted, events.RunStarted, events.RunDone, events.ReportGenerated} {
		assert.True(t, kinds[k], "missing %s", k)
	}
}

func TestStartAnalysisNeedsSettledUploads(t *testing.T) {
	s := newSession(t, canned.New(), stuckOptions())

	_, err := s.StartAnalysis()
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = s.Submit(pdf("a.pdf", 10))
	require.NoError(t, err)
	_, err = s.StartAnalysis()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, analysis.RunIdle, s.Run().Status)
}

func TestOversizeUploadIsFailed(t *testing.T) {
	s := newSession(t, canned.New(), stuckOptions())

	u, err := s.Submit(pdf("huge.pdf", 11<<20))
	require.NoError(t, err)
	assert.Equal(t, uploads.StatusFailed, u.Status)
	assert.Contains(t, u.FailureReason, "11 MiB")
	assert.Contains(t, u.FailureReason, "10 MiB")
	assert.False(t, s.Ready())
}

func TestOnlyCompletedUploadsReachTheAnalyzer(t *testing.T) {
	var mu sync.Mutex
	var seen []uploads.WorkUnit
	analyzer := analysis.AnalyzerFunc(func(ctx context.Context, files []uploads.WorkUnit) (analysis.Findings, error) {
		mu.Lock()
		seen = files
		mu.Unlock()
		return canned.Findings(), nil
	})
	s := newSession(t, analyzer, fastOptions())

	ok, err := s.Submit(pdf("ok.pdf", 100))
	require.NoError(t, err)
	_, err = s.Submit(pdf("huge.pdf", 20<<20))
	require.NoError(t, err)
	waitUploads(t, s)

	_, err = s.Analyze(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, ok.ID, seen[0].ID)
	assert.Equal(t, uploads.StatusCompleted, seen[0].Status)
}

func TestNoResultBeforeAnalysis(t *testing.T) {
	s := newSession(t, canned.New(), fastOptions())

	_, err := s.Result()
	assert.ErrorIs(t, err, ErrNoResult)
	_, err = s.Risk()
	assert.ErrorIs(t, err, ErrNoResult)
	_, err = s.Dashboard()
	assert.ErrorIs(t, err, ErrNoResult)
	_, err = s.GenerateReport(context.Background())
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestAnalysisIsRejectedWhileRunning(t *testing.T) {
	release := make(chan struct{})
	analyzer := analysis.AnalyzerFunc(func(ctx context.Context, _ []uploads.WorkUnit) (analysis.Findings, error) {
		select {
		case <-release:
			return canned.Findings(), nil
		case <-ctx.Done():
			return analysis.Findings{}, ctx.Err()
		}
	})
	s := newSession(t, analyzer, fastOptions())
	_, err := s.Submit(pdf("a.pdf", 1))
	require.NoError(t, err)
	waitUploads(t, s)

	h, err := s.StartAnalysis()
	require.NoError(t, err)

	_, err = s.StartAnalysis()
	var busy *analysis.BusyError
	assert.True(t, errors.As(err, &busy))
	assert.True(t, errors.As(s.Reset(), &busy))

	close(release)
	_, err = h.Wait(context.Background())
	require.NoError(t, err)
}

func TestResetClearsSession(t *testing.T) {
	s := newSession(t, canned.New(), fastOptions())
	_, err := s.Submit(pdf("a.pdf", 1))
	require.NoError(t, err)
	waitUploads(t, s)
	_, err = s.Analyze(context.Background())
	require.NoError(t, err)
	_, err = s.Risk()
	require.NoError(t, err)

	require.NoError(t, s.Reset())
	assert.Empty(t, s.Uploads())
	assert.Equal(t, analysis.RunIdle, s.Run().Status)
	_, err = s.Result()
	assert.ErrorIs(t, err, ErrNoResult)
	_, err = s.StartAnalysis()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestAnalyzeCancelsOnContext(t *testing.T) {
	block := analysis.AnalyzerFunc(func(ctx context.Context, _ []uploads.WorkUnit) (analysis.Findings, error) {
		<-ctx.Done()
		return analysis.Findings{}, ctx.Err()
	})
	s := newSession(t, block, fastOptions())
	_, err := s.Submit(pdf("a.pdf", 1))
	require.NoError(t, err)
	waitUploads(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Analyze(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, analysis.RunCancelled, s.Run().Status)
}

func TestReportsDisabled(t *testing.T) {
	s := NewSession("s-none", canned.New(), nil, fastOptions(), quietLogger())
	defer s.Close()

	_, err := s.GenerateReport(context.Background())
	assert.ErrorIs(t, err, ErrReportsDisabled)
	_, err = s.Reports(context.Background(), 5)
	assert.ErrorIs(t, err, ErrReportsDisabled)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	s := NewSession("s-close", canned.New(), nil, fastOptions(), quietLogger())
	_, ch := s.Subscribe(1)
	s.Close()
	s.Close()

	for range ch {
	}
	_, err := s.Submit(pdf("late.pdf", 1))
	assert.ErrorIs(t, err, tracker.ErrClosed)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRegistry(t *testing.T, opts RegistryOptions, sessionOpts Options) *Registry {
	t.Helper()
	r := NewRegistry(opts, func(id string) *Session {
		return NewSession(id, canned.New(), nil, sessionOpts, quietLogger())
	}, quietLogger())
	t.Cleanup(r.Close)
	return r
}

// manualRegistry never sweeps on its own; tests drive it through clock and Sweep.
func manualRegistry(t *testing.T, max int, ttl time.Duration, sessionOpts Options) (*Registry, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	r := newRegistry(t, RegistryOptions{Max: max, TTL: ttl, SweepInterval: time.Hour, Clock: clock}, sessionOpts)
	return r, clock
}

func closed(ch <-chan events.Event) func() bool {
	return func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}
}

func TestRegistryLifecycle(t *testing.T) {
	r := newRegistry(t, RegistryOptions{Max: 10, TTL: time.Hour}, fastOptions())

	s, err := r.Create()
	require.NoError(t, err)
	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Delete(s.ID))
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.ErrorIs(t, r.Delete(s.ID), ErrUnknownSession)
}

func TestRegistryEvictionClosesSession(t *testing.T) {
	r := newRegistry(t, RegistryOptions{Max: 1, TTL: time.Hour}, fastOptions())

	first, err := r.Create()
	require.NoError(t, err)
	_, ch := first.Subscribe(1)
	second, err := r.Create()
	require.NoError(t, err)

	_, err = r.Get(first.ID)
	assert.ErrorIs(t, err, ErrUnknownSession)
	_, err = r.Get(second.ID)
	assert.NoError(t, err)

	require.Eventually(t, closed(ch), 2*time.Second, time.Millisecond)
}

func TestRegistryMakesRoomFromIdleSessionsOnly(t *testing.T) {
	r, _ := manualRegistry(t, 2, time.Hour, stuckOptions())

	busy, err := r.Create()
	require.NoError(t, err)
	_, err = busy.Submit(pdf("a.pdf", 1))
	require.NoError(t, err)
	idle, err := r.Create()
	require.NoError(t, err)

	// busy is the least recently used, but its upload is still in flight
	_, err = r.Create()
	require.NoError(t, err)
	_, err = r.Get(busy.ID)
	assert.NoError(t, err)
	_, err = r.Get(idle.ID)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestRegistryFullOfBusySessions(t *testing.T) {
	r, _ := manualRegistry(t, 1, time.Hour, stuckOptions())

	only, err := r.Create()
	require.NoError(t, err)
	_, err = only.Submit(pdf("a.pdf", 1))
	require.NoError(t, err)

	_, err = r.Create()
	assert.ErrorIs(t, err, ErrRegistryFull)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryExpiry(t *testing.T) {
	r := newRegistry(t, RegistryOptions{TTL: 20 * time.Millisecond, SweepInterval: 5 * time.Millisecond}, fastOptions())

	s, err := r.Create()
	require.NoError(t, err)
	_, ch := s.Subscribe(1)
	require.Eventually(t, func() bool { return r.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, ErrUnknownSession)
	require.Eventually(t, closed(ch), 2*time.Second, time.Millisecond)
}

func TestRegistryAccessKeepsSessionAlive(t *testing.T) {
	r, clock := manualRegistry(t, 0, 150*time.Millisecond, fastOptions())

	s, err := r.Create()
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		clock.Advance(20 * time.Millisecond)
		r.Sweep()
		_, err := r.Get(s.ID)
		require.NoError(t, err, "session dropped after %d accesses", i)
	}

	clock.Advance(150 * time.Millisecond)
	r.Sweep()
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestRegistryAccessKeepsSessionAliveInRealTime(t *testing.T) {
	r := newRegistry(t, RegistryOptions{TTL: 150 * time.Millisecond, SweepInterval: 10 * time.Millisecond}, fastOptions())

	s, err := r.Create()
	require.NoError(t, err)
	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		_, err := r.Get(s.ID)
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRegistryKeepsBusySessions(t *testing.T) {
	r, clock := manualRegistry(t, 0, time.Minute, stuckOptions())

	uploading, err := r.Create()
	require.NoError(t, err)
	_, err = uploading.Submit(pdf("a.pdf", 1))
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	blocking := analysis.AnalyzerFunc(func(ctx context.Context, _ []uploads.WorkUnit) (analysis.Findings, error) {
		select {
		case <-release:
			return canned.Findings(), nil
		case <-ctx.Done():
			return analysis.Findings{}, ctx.Err()
		}
	})
	analyzing := NewSession("s-run", blocking, nil, fastOptions(), quietLogger())
	r.mu.Lock()
	r.lru.Add(analyzing.ID, &entry{session: analyzing, seen: clock.Now()})
	r.mu.Unlock()
	_, err = analyzing.Submit(pdf("a.pdf", 1))
	require.NoError(t, err)
	waitUploads(t, analyzing)
	_, err = analyzing.StartAnalysis()
	require.NoError(t, err)

	idle, err := r.Create()
	require.NoError(t, err)

	clock.Advance(time.Hour)
	r.Sweep()

	_, err = r.Get(uploading.ID)
	assert.NoError(t, err)
	_, err = r.Get(analyzing.ID)
	assert.NoError(t, err)
	_, err = r.Get(idle.ID)
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.Equal(t, analysis.RunRunning, analyzing.Run().Status)
}

func TestStartAnalysisAfterClose(t *testing.T) {
	s := NewSession("s-closed", canned.New(), nil, fastOptions(), quietLogger())
	_, err := s.Submit(pdf("a.pdf", 1))
	require.NoError(t, err)
	waitUploads(t, s)
	s.Close()

	h, err := s.StartAnalysis()
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Nil(t, h)
	assert.ErrorIs(t, s.Reset(), ErrSessionClosed)
	assert.Equal(t, analysis.RunIdle, s.Run().Status)
}

func TestResetAndStartAnalysisDoNotInterleave(t *testing.T) {
	blocking := analysis.AnalyzerFunc(func(ctx context.Context, _ []uploads.WorkUnit) (analysis.Findings, error) {
		<-ctx.Done()
		return analysis.Findings{}, ctx.Err()
	})

	for i := 0; i < 50; i++ {
		s := NewSession("s-race", blocking, nil, fastOptions(), quietLogger())
		_, err := s.Submit(pdf("a.pdf", 1))
		require.NoError(t, err)
		waitUploads(t, s)

		var startErr, resetErr error
		var wg sync.WaitGroup
		gate := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-gate
			_, startErr = s.StartAnalysis()
		}()
		go func() {
			defer wg.Done()
			<-gate
			resetErr = s.Reset()
		}()
		close(gate)
		wg.Wait()

		if resetErr == nil {
			// reset won: the uploads are gone, so no run may have started
			assert.ErrorIs(t, startErr, ErrNotReady)
			assert.NotEqual(t, analysis.RunRunning, s.Run().Status)
			assert.Empty(t, s.Uploads())
		} else {
			var busy *analysis.BusyError
			assert.True(t, errors.As(resetErr, &busy))
			assert.NoError(t, startErr)
			assert.Len(t, s.Uploads(), 1)
		}
		s.Close()
	}
}

func TestSessionReportLookup(t *testing.T) {
	repo := memory.NewReportRepository()
	svc := &reports.Service{Repo: repo, Log: quietLogger()}
	mine := NewSession("s-mine", canned.New(), svc, fastOptions(), quietLogger())
	defer mine.Close()
	other := NewSession("s-other", canned.New(), svc, fastOptions(), quietLogger())
	defer other.Close()

	_, err := mine.Submit(pdf("a.pdf", 1))
	require.NoError(t, err)
	waitUploads(t, mine)
	ctx := context.Background()
	_, err = mine.Analyze(ctx)
	require.NoError(t, err)
	rep, err := mine.GenerateReport(ctx)
	require.NoError(t, err)

	got, err := mine.Report(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.ID, got.ID)

	_, err = other.Report(ctx, rep.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = mine.Report(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSlowSubscriberDropsAreCounted(t *testing.T) {
	var mu sync.Mutex
	var extra int
	opts := stuckOptions()
	opts.Reporter = events.ReporterFunc(func(events.Event) {
		mu.Lock()
		extra++
		mu.Unlock()
	})
	s := newSession(t, canned.New(), opts)
	_, _ = s.Subscribe(1)

	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		_, err := s.Submit(pdf(name, 1))
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(2), s.DroppedEvents())
	mu.Lock()
	assert.Equal(t, 3, extra)
	mu.Unlock()
}
