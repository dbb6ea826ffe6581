package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"paperpost/internal/types"
)

type countingRunner struct {
	mu    sync.Mutex
	runs  int
	err   error
	block bool
}

func (r *countingRunner) Run(ctx context.Context) (types.RunSummary, error) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	if r.block {
		<-ctx.Done()
		return types.RunSummary{}, ctx.Err()
	}
	return types.RunSummary{Fetched: 1}, r.err
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func TestBotRunOnce(t *testing.T) {
	runner := &countingRunner{}
	var seen types.RunSummary
	bot := NewBot(BotConfig{
		Name:    "test",
		Runner:  runner,
		RunOnce: true,
		AfterRun: func(ctx context.Context, summary types.RunSummary, err error) {
			seen = summary
		},
	})

	if err := bot.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if runner.count() != 1 || seen.Fetched != 1 {
		t.Fatalf("expected one run reported to AfterRun, got %d runs, %+v", runner.count(), seen)
	}
	if bot.IsRunning() {
		t.Fatalf("bot should be stopped after a single run")
	}
}

func TestBotRunOnceReturnsError(t *testing.T) {
	runner := &countingRunner{err: types.ErrSourceUnavailable}
	bot := NewBot(BotConfig{Name: "test", Runner: runner, RunOnce: true})

	if err := bot.Start(context.Background()); !errors.Is(err, types.ErrSourceUnavailable) {
		t.Fatalf("expected run error, got %v", err)
	}
}

func TestBotScheduledStopsOnStop(t *testing.T) {
	runner := &countingRunner{}
	shutdownCalled := false
	bot := NewBot(BotConfig{
		Name:       "test",
		Runner:     runner,
		Interval:   time.Hour,
		ShutdownFn: func() error { shutdownCalled = true; return nil },
	})

	done := make(chan error, 1)
	go func() { done <- bot.Start(context.Background()) }()

	deadline := time.After(5 * time.Second)
	for runner.count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("first run never happened")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := bot.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("bot did not stop")
	}
	if !shutdownCalled {
		t.Fatalf("shutdown function not called")
	}
	if err := bot.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop should be harmless: %v", err)
	}
}

func TestBotScheduledRunsAreBounded(t *testing.T) {
	runner := &countingRunner{block: true}
	bot := NewBot(BotConfig{Name: "test", Runner: runner, Interval: 50 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- bot.Start(ctx) }()

	select {
	case err := <-bot.Errors():
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected run deadline, got %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("scheduled run was not bounded")
	}
	cancel()
	<-done
}

func TestBotRejectsSecondStart(t *testing.T) {
	runner := &countingRunner{block: true}
	bot := NewBot(BotConfig{Name: "test", Runner: runner, RunOnce: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Start(ctx) }()

	for runner.count() == 0 {
		time.Sleep(time.Millisecond)
	}
	if err := bot.Start(ctx); err == nil {
		t.Fatalf("second Start should fail while running")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("cancelled run should not be an error, got %v", err)
	}
}
