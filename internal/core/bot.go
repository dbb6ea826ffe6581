package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"paperpost/internal/types"
)

// Runner is satisfied by *Pipeline.
type Runner interface {
	Run(ctx context.Context) (types.RunSummary, error)
}

type Bot struct {
	name       string
	runner     Runner
	interval   time.Duration
	runOnce    bool
	afterRun   func(ctx context.Context, summary types.RunSummary, err error)
	shutdownFn func() error
	logger     *slog.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	stopped sync.Once
	errorCh chan error
}

type BotConfig struct {
	Name     string
	Runner   Runner
	Interval time.Duration
	RunOnce  bool
	// AfterRun is called after every run, e.g. to push metrics.
	AfterRun   func(ctx context.Context, summary types.RunSummary, err error)
	ShutdownFn func() error
	Logger     *slog.Logger
}

func NewBot(config BotConfig) *Bot {
	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Bot{
		name:       config.Name,
		runner:     config.Runner,
		interval:   config.Interval,
		runOnce:    config.RunOnce,
		afterRun:   config.AfterRun,
		shutdownFn: config.ShutdownFn,
		logger:     config.Logger.With("bot", config.Name),
		stopCh:     make(chan struct{}),
		errorCh:    make(chan error, 10),
	}
}

// Start blocks until the single run finishes (run once) or until ctx is done
// or Stop is called (scheduled).
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot already running")
	}
	b.running = true
	b.mu.Unlock()

	if b.runOnce {
		return b.runOnceMode(ctx)
	}

	return b.runContinuousMode(ctx)
}

func (b *Bot) runOnceMode(ctx context.Context) error {
	defer b.markStopped()

	if err := b.execute(ctx); err != nil {
		return fmt.Errorf("pipeline execution failed: %w", err)
	}

	return nil
}

func (b *Bot) runContinuousMode(ctx context.Context) error {
	defer b.markStopped()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.executeRun(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stopCh:
			return nil
		case <-ticker.C:
			b.executeRun(ctx)
		}
	}
}

// executeRun bounds a scheduled run so it ends before the next tick.
func (b *Bot) executeRun(ctx context.Context) {
	timeout := b.interval - 10*time.Second
	if timeout <= 0 {
		timeout = b.interval
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := b.execute(runCtx); err != nil {
		b.logger.Error("Pipeline run failed", "error", err)
		select {
		case b.errorCh <- err:
		default:
		}
	}
}

func (b *Bot) execute(ctx context.Context) error {
	summary, err := b.runner.Run(ctx)
	if b.afterRun != nil {
		b.afterRun(context.WithoutCancel(ctx), summary, err)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (b *Bot) Stop(ctx context.Context) error {
	b.stopped.Do(func() { close(b.stopCh) })

	if b.shutdownFn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- b.shutdownFn() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("custom shutdown failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (b *Bot) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

func (b *Bot) Name() string {
	return b.name
}

// Errors receives failures of scheduled runs. Sends never block.
func (b *Bot) Errors() <-chan error {
	return b.errorCh
}

func (b *Bot) markStopped() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}
