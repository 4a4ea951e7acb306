package workflow

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/sirupsen/logrus"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application"
)

// ErrRegistryFull is returned by Create when every live session is busy.
var ErrRegistryFull = errors.New("too many active sessions")

// Factory builds a session for a freshly allocated id.
type Factory func(id string) *Session

type RegistryOptions struct {
	// Max bounds the live sessions; 0 means unbounded.
	Max int
	// TTL is how long a session may sit idle; 0 means forever.
	TTL time.Duration
	// SweepInterval defaults to TTL/2.
	SweepInterval time.Duration
	Clock         application.Clock
}

type entry struct {
	session *Session
	seen    time.Time
}

// Registry holds the live sessions. Every Get counts as activity; a session
// idle for longer than the TTL is dropped and closed in the background. A busy
// session is never dropped, neither by expiry nor to make room.
type Registry struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[string, *entry]
	max     int
	ttl     time.Duration
	clock   application.Clock
	factory Factory
	log     logrus.FieldLogger

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

func NewRegistry(opts RegistryOptions, factory Factory, log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	clock := opts.Clock
	if clock == nil {
		clock = application.SystemClock{}
	}
	r := &Registry{
		max:     opts.Max,
		ttl:     opts.TTL,
		clock:   clock,
		factory: factory,
		log:     log,
		stop:    make(chan struct{}),
	}
	size := opts.Max
	if size <= 0 {
		size = math.MaxInt
	}
	// size is always positive, NewLRU cannot fail
	r.lru, _ = simplelru.NewLRU[string, *entry](size, r.evicted)

	if r.ttl > 0 {
		interval := opts.SweepInterval
		if interval <= 0 {
			interval = r.ttl / 2
		}
		r.wg.Add(1)
		go r.sweepLoop(interval)
	}
	return r
}

// Create starts a new session. When the registry is full the least recently
// used idle session makes room; if none is idle Create fails with ErrRegistryFull.
func (r *Registry) Create() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && r.lru.Len() >= r.max && !r.evictIdleLocked() {
		return nil, ErrRegistryFull
	}
	id := uuid.NewString()
	s := r.factory(id)
	r.lru.Add(id, &entry{session: s, seen: r.clock.Now()})
	r.log.WithField("session", id).Info("session created")
	return s, nil
}

// Get returns a live session or ErrUnknownSession, and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.lru.Get(id)
	if !ok {
		return nil, ErrUnknownSession
	}
	now := r.clock.Now()
	if r.expiredLocked(e, now) {
		r.lru.Remove(id)
		return nil, ErrUnknownSession
	}
	e.seen = now
	return e.session, nil
}

// Delete ends a session, busy or not.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lru.Remove(id) {
		return ErrUnknownSession
	}
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Len()
}

// Close ends every session and waits until they are torn down.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.stop) })
	r.mu.Lock()
	r.lru.Purge()
	r.mu.Unlock()
	r.wg.Wait()
}

// Sweep drops the sessions that have been idle past the TTL.
func (r *Registry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	for _, id := range r.lru.Keys() {
		if e, ok := r.lru.Peek(id); ok && r.expiredLocked(e, now) {
			r.lru.Remove(id)
		}
	}
}

func (r *Registry) sweepLoop(interval time.Duration) {
	defer r.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// expiredLocked treats a busy session as just used.
func (r *Registry) expiredLocked(e *entry, now time.Time) bool {
	if r.ttl <= 0 {
		return false
	}
	if e.session.Busy() {
		e.seen = now
		return false
	}
	return now.Sub(e.seen) >= r.ttl
}

// evictIdleLocked removes the least recently used idle session.
func (r *Registry) evictIdleLocked() bool {
	for _, id := range r.lru.Keys() {
		if e, ok := r.lru.Peek(id); ok && !e.session.Busy() {
			r.lru.Remove(id)
			return true
		}
	}
	return false
}

// evicted runs under r.mu for every removal.
func (r *Registry) evicted(id string, e *entry) {
	r.log.WithField("session", id).Info("session ended")
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		e.session.Close()
	}()
}
