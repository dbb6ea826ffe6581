package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"paperpost/internal/components"
	"paperpost/internal/config"
	"paperpost/internal/core"
	"paperpost/internal/processors"
	"paperpost/internal/retry"
	"paperpost/internal/sources"
	"paperpost/internal/state"
	"paperpost/internal/targets"
	"paperpost/internal/types"

	_ "paperpost/internal/storage/file"
	_ "paperpost/internal/storage/redis"
	_ "paperpost/internal/storage/sqlite"
)

type Loader struct {
	config *config.Config
	logger *slog.Logger
	// out receives dry-run messages.
	out io.Writer
}

func NewLoader(cfg *config.Config, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		config: cfg,
		logger: logger,
		out:    os.Stdout,
	}
}

// WithOutput redirects dry-run messages.
func (l *Loader) WithOutput(w io.Writer) *Loader {
	l.out = w
	return l
}

func (l *Loader) Initialize(ctx context.Context) (*state.State, error) {
	registry := components.NewRegistry(l.logger)
	l.logger.Info("Initializing all components")

	storageComp := components.NewStorageComponent(l.config.Storage)
	if err := registry.Register(storageComp); err != nil {
		return nil, fmt.Errorf("failed to register storage component: %w", err)
	}

	platformComp := components.NewPlatformComponent(l.config, l.logger)
	if err := registry.Register(platformComp); err != nil {
		return nil, fmt.Errorf("failed to register platform component: %w", err)
	}

	metricsComp := components.NewMetricsComponent(l.config.Metrics)
	if err := registry.Register(metricsComp); err != nil {
		return nil, fmt.Errorf("failed to register metrics component: %w", err)
	}

	if err := registry.InitializeAll(ctx); err != nil {
		_ = registry.CloseAll(ctx)
		return nil, fmt.Errorf("component initialization failed: %w", err)
	}

	l.logger.Info("All components initialized successfully")

	pipeline, err := l.buildPipeline(storageComp, platformComp, metricsComp)
	if err != nil {
		_ = registry.CloseAll(ctx)
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	bot := core.NewBot(core.BotConfig{
		Name:     l.config.Bot.Name,
		Runner:   pipeline,
		Interval: config.ParseDuration(l.config.Bot.Interval, 24*time.Hour),
		RunOnce:  l.config.Bot.Once(),
		AfterRun: func(ctx context.Context, summary types.RunSummary, err error) {
			if err := metricsComp.Push(ctx); err != nil {
				l.logger.Warn("Failed to push metrics", "error", err)
			}
		},
		ShutdownFn: func() error {
			return registry.CloseAll(context.Background())
		},
		Logger: l.logger,
	})

	return state.NewState(l.config, registry, pipeline, bot), nil
}

func (l *Loader) buildPipeline(
	storageComp *components.StorageComponent,
	platformComp *components.PlatformComponent,
	metricsComp *components.MetricsComponent,
) (*core.Pipeline, error) {
	cfg := l.config

	source := l.createSource()

	ranker, err := l.createRanker(platformComp)
	if err != nil {
		return nil, fmt.Errorf("failed to create ranker: %w", err)
	}

	enricher, err := l.createEnricher(platformComp)
	if err != nil {
		return nil, fmt.Errorf("failed to create enricher: %w", err)
	}

	notifier, publishers, err := l.createPublishers(platformComp)
	if err != nil {
		return nil, fmt.Errorf("failed to create publishers: %w", err)
	}

	names := make([]string, 0, len(publishers))
	for _, p := range publishers {
		names = append(names, p.Name())
	}
	l.logger.Info("Pipeline assembled", "source", source.Name(), "publishers", names, "dry_run", cfg.Bot.DryRun)

	return core.NewPipeline(core.PipelineConfig{
		Source:      source,
		Ranker:      ranker,
		Enricher:    enricher,
		Publishers:  publishers,
		Announcer:   notifier,
		Store:       storageComp.Store(),
		MaxSelected: cfg.Bot.MaxSelected,
		ItemTimeout: config.ParseDuration(cfg.Bot.ItemTimeout, 15*time.Minute),
		DryRun:      cfg.Bot.DryRun,
		Retry: core.RetryPolicies{
			Fetch:   policy("fetch", cfg.Retry.Fetch),
			Rank:    policy("rank", cfg.Retry.Rank),
			Publish: policy("publish", cfg.Retry.Publish),
		},
		Metrics: metricsComp.Recorder(),
		Logger:  l.logger,
	})
}

func (l *Loader) createSource() core.Source {
	arxiv := l.config.Sources.Arxiv
	client := &http.Client{Timeout: config.ParseDuration(arxiv.Timeout, 30*time.Second)}
	return sources.NewArxivSource(arxiv.Endpoint, arxiv.Category, arxiv.MaxResults, client, l.logger)
}

func (l *Loader) createRanker(platformComp *components.PlatformComponent) (core.Ranker, error) {
	keywords, err := l.config.Ranking.LoadKeywords()
	if err != nil {
		return nil, err
	}
	prompt, err := config.ReadOptionalFile(l.config.Ranking.PromptFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read ranking prompt: %w", err)
	}
	if len(keywords) == 0 {
		l.logger.Warn("No ranking keywords configured, every paper will be selected")
	}
	return processors.NewLLMRanker(platformComp.LLM(), keywords, prompt, l.logger), nil
}

func (l *Loader) createEnricher(platformComp *components.PlatformComponent) (core.Enricher, error) {
	cfg := l.config.Enrichment

	prompt, err := config.ReadOptionalFile(cfg.PromptFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary prompt: %w", err)
	}

	timeout := config.ParseDuration(cfg.Timeout, 5*time.Minute)
	return processors.NewPaperEnricher(processors.NewSummarizer(platformComp.LLM(), prompt), processors.EnricherOptions{
		Client:          &http.Client{Timeout: timeout},
		TempDir:         cfg.TempDir,
		MaxTextChars:    cfg.MaxTextChars,
		Timeout:         timeout,
		DownloadPolicy:  policy("download", l.config.Retry.Enrich),
		SummarizePolicy: policy("summarize", l.config.Retry.Enrich),
		Logger:          l.logger,
	}), nil
}

// createPublishers returns the announcer and the publishers in delivery
// order: notifier, archiver, registrar. Sinks without a platform are left
// out; PlatformComponent already warned about them. Without a notifier the
// announcer is nil.
func (l *Loader) createPublishers(platformComp *components.PlatformComponent) (core.Announcer, []core.Publisher, error) {
	templatePath := l.config.Discord.TemplateFile

	if l.config.Bot.DryRun {
		notifier, err := targets.NewPreviewNotifier(l.out, templatePath, l.logger)
		if err != nil {
			return nil, nil, err
		}
		return notifier, []core.Publisher{notifier}, nil
	}

	var announcer core.Announcer
	var publishers []core.Publisher

	if discord := platformComp.Discord(); discord != nil {
		notifier, err := targets.NewDiscordNotifier(discord, templatePath, l.logger)
		if err != nil {
			return nil, nil, err
		}
		announcer = notifier
		publishers = append(publishers, notifier)
	}

	if drive := platformComp.Drive(); drive != nil {
		archive := l.config.Archive
		publishers = append(publishers, targets.NewDriveArchiver(drive, archive.FolderName, archive.ShouldCreateFolder(), l.logger))
	}

	if zotero := platformComp.Zotero(); zotero != nil {
		publishers = append(publishers, targets.NewZoteroRegistrar(zotero, l.config.Zotero.CollectionName, l.logger))
	}

	return announcer, publishers, nil
}

func policy(name string, cfg config.RetryPolicyConfig) retry.Policy {
	return retry.Policy{
		Name:        name,
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   config.ParseDuration(cfg.BaseDelay, time.Second),
		MaxDelay:    config.ParseDuration(cfg.MaxDelay, time.Minute),
	}
}
