// Package throttle bounds how much work runs per key (a user ID): at most
// Limit units in flight at once, and at most Limit unit starts per Window.
package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Keyed is a per-key concurrency and start-rate limiter.
type Keyed struct {
	mu           sync.Mutex
	entries      map[string]*entry
	stopCleanup  chan struct{}
	shutdownOnce sync.Once

	limit           int
	window          time.Duration
	idleTTL         time.Duration
	cleanupInterval time.Duration
}

type entry struct {
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	inFlight int
	lastUsed time.Time
}

// Config holds throttle configuration
type Config struct {
	Limit           int
	Window          time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns 10 units per user per minute.
func DefaultConfig() Config {
	return Config{
		Limit:           10,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

func New(config Config) *Keyed {
	def := DefaultConfig()
	if config.Limit <= 0 {
		config.Limit = def.Limit
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}

	k := &Keyed{
		entries:         make(map[string]*entry),
		stopCleanup:     make(chan struct{}),
		limit:           config.Limit,
		window:          config.Window,
		idleTTL:         2 * config.Window,
		cleanupInterval: config.CleanupInterval,
	}
	go k.startCleanup()
	return k
}

// Acquire blocks until key has both a free concurrency slot and a start
// token, or ctx ends. The returned release must be called once the unit is
// done; extra calls are no-ops.
func (k *Keyed) Acquire(ctx context.Context, key string) (release func(), err error) {
	e := k.checkout(key)

	if err := e.limiter.Wait(ctx); err != nil {
		k.checkin(e)
		return nil, err
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		k.checkin(e)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			k.checkin(e)
		})
	}, nil
}

func (k *Keyed) checkout(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		e = &entry{
			sem:     semaphore.NewWeighted(int64(k.limit)),
			limiter: rate.NewLimiter(rate.Every(k.window/time.Duration(k.limit)), k.limit),
		}
		k.entries[key] = e
	}
	e.inFlight++
	e.lastUsed = time.Now()
	return e
}

func (k *Keyed) checkin(e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.inFlight--
	e.lastUsed = time.Now()
}

// startCleanup runs periodic cleanup to remove idle keys
func (k *Keyed) startCleanup() {
	ticker := time.NewTicker(k.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.cleanupIdle(time.Now())
		case <-k.stopCleanup:
			return
		}
	}
}

// cleanupIdle drops keys with nothing in flight that have been idle long
// enough for their token bucket to refill.
func (k *Keyed) cleanupIdle(now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()

	cutoff := now.Add(-k.idleTTL)
	for key, e := range k.entries {
		if e.inFlight == 0 && e.lastUsed.Before(cutoff) {
			delete(k.entries, key)
		}
	}
}

// ActiveKeys returns the number of currently tracked keys
func (k *Keyed) ActiveKeys() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// Stop shuts down the cleanup goroutine
func (k *Keyed) Stop() {
	k.shutdownOnce.Do(func() {
		close(k.stopCleanup)
	})
}
