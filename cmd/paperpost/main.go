package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paperpost/internal/config"
	"paperpost/internal/core"
	"paperpost/internal/loader"
	"paperpost/internal/logging"
)

var (
	configPath = flag.String("config", "config.toml", "Path to configuration file")
	numPapers  = flag.Int("num-papers", 0, "Maximum number of papers to select per run (default from config, 20)")
	model      = flag.String("model", "", "LLM model used for ranking and summaries (default from config, gpt-4o)")
	testMode   = flag.Bool("test", false, "Print messages instead of publishing and process at most one paper")
)

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("Received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyFlags(cfg)

	logger, closer, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("Loaded configuration", "path", *configPath, "model", cfg.LLM.Model, "max_selected", cfg.Bot.MaxSelected, "dry_run", cfg.Bot.DryRun)

	st, err := loader.NewLoader(cfg, logger).Initialize(ctx)
	if err != nil {
		return err
	}
	bot := st.Bot

	logger.Info("Starting bot", "name", bot.Name(), "run_once", cfg.Bot.Once())

	errChan := make(chan error, 1)
	go func() {
		errChan <- bot.Start(ctx)
	}()

	runErr := wait(ctx, logger, bot, errChan)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := bot.Stop(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", "error", err)
		if runErr == nil {
			runErr = fmt.Errorf("shutdown error: %w", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("Bot stopped successfully")
	return nil
}

// shutdownGrace is how long a run may take to reach its next checkpoint
// after a shutdown signal.
var shutdownGrace = 30 * time.Second

// wait blocks until the bot returns or a signal arrives. The bot logs failed
// scheduled runs itself; the latest failure becomes the exit status.
func wait(ctx context.Context, logger *slog.Logger, bot *core.Bot, errChan <-chan error) error {
	var lastRunErr error
	for {
		select {
		case err := <-errChan:
			return runResult(err, drainErrors(bot, lastRunErr))
		case err := <-bot.Errors():
			lastRunErr = err
		case <-ctx.Done():
			logger.Info("Initiating shutdown")
			select {
			case err := <-errChan:
				return runResult(err, drainErrors(bot, lastRunErr))
			case <-time.After(shutdownGrace):
				return fmt.Errorf("run did not stop within %s of the shutdown signal", shutdownGrace)
			}
		}
	}
}

func drainErrors(bot *core.Bot, last error) error {
	for {
		select {
		case err := <-bot.Errors():
			last = err
		default:
			return last
		}
	}
}

func runResult(err, lastRunErr error) error {
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if lastRunErr != nil {
		return fmt.Errorf("last scheduled run failed: %w", lastRunErr)
	}
	return nil
}

// applyFlags lets command line flags override the file. -test also switches
// to readable debug logs.
func applyFlags(cfg *config.Config) {
	if *numPapers > 0 {
		cfg.Bot.MaxSelected = *numPapers
	}
	if *model != "" {
		cfg.LLM.Model = *model
	}
	if *testMode {
		cfg.Bot.DryRun = true
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	}
}
