package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	applog "fintrix/internal/log"
)

// PeriodicConfig holds configuration for a periodic runner
type PeriodicConfig struct {
	// Name identifies the runner in logs.
	Name string

	// Interval between runs.
	Interval time.Duration

	// RunOnStart runs once immediately instead of waiting a full interval.
	RunOnStart bool
}

// Periodic calls a function on a fixed interval until stopped. Runs never
// overlap; a run that takes longer than the interval delays the next tick.
type Periodic struct {
	config PeriodicConfig
	run    func(ctx context.Context) error

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewPeriodic(config PeriodicConfig, run func(ctx context.Context) error) *Periodic {
	return &Periodic{
		config: config,
		run:    run,
	}
}

// Start begins the loop. Returns an error if already running.
func (p *Periodic) Start(ctx context.Context) error {
	if p.config.Interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", p.config.Name)
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("%s is already running", p.config.Name)
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.loop(ctx)

	slog.InfoContext(ctx, "Periodic runner started",
		"name", p.config.Name,
		"interval", p.config.Interval)

	return nil
}

// Stop signals the loop and waits for the current run to finish.
func (p *Periodic) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Periodic runner stopped", "name", p.config.Name)
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Periodic runner stop timed out", "name", p.config.Name)
		return ctx.Err()
	}
}

func (p *Periodic) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Wait blocks until the loop exits.
func (p *Periodic) Wait() {
	p.mu.Lock()
	doneCh := p.doneCh
	p.mu.Unlock()
	if doneCh != nil {
		<-doneCh
	}
}

func (p *Periodic) loop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	if p.config.RunOnStart {
		p.runOnce(ctx)
	}

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Periodic) runOnce(ctx context.Context) {
	start := time.Now()
	if err := p.run(ctx); err != nil {
		slog.ErrorContext(ctx, "Periodic run failed",
			"name", p.config.Name,
			"duration", time.Since(start),
			applog.FieldError, err)
		return
	}
	slog.DebugContext(ctx, "Periodic run complete",
		"name", p.config.Name,
		"duration", time.Since(start))
}
