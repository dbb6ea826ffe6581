package components

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"paperpost/internal/config"
	"paperpost/internal/platforms"
)

// PlatformComponent builds the external service clients. Only the language
// model is required. Discord, Drive and Zotero are optional: when their
// credentials are missing they are left out with a warning.
type PlatformComponent struct {
	config *config.Config
	dryRun bool
	logger *slog.Logger

	llm     platforms.LLM
	discord *platforms.DiscordPlatform
	drive   *platforms.DrivePlatform
	zotero  *platforms.ZoteroPlatform
}

func NewPlatformComponent(cfg *config.Config, logger *slog.Logger) *PlatformComponent {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlatformComponent{
		config: cfg,
		dryRun: cfg.Bot.DryRun,
		logger: logger.With("component", PlatformComponentName),
	}
}

func (c *PlatformComponent) Name() string {
	return PlatformComponentName
}

func (c *PlatformComponent) Dependencies() []string {
	return []string{}
}

func (c *PlatformComponent) Validate() error {
	switch c.config.LLM.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unsupported llm provider: %s", c.config.LLM.Provider)
	}

	return c.config.Validate(config.OpRank)
}

func (c *PlatformComponent) Initialize(ctx context.Context) error {
	llmClient := &http.Client{Timeout: config.ParseDuration(c.config.LLM.Timeout, 2*time.Minute)}

	switch c.config.LLM.Provider {
	case "ollama":
		llm, err := platforms.NewOllamaPlatform(c.config.LLM.Model, c.config.LLM.BaseURL, llmClient)
		if err != nil {
			return fmt.Errorf("failed to create ollama platform: %w", err)
		}
		c.llm = llm
	default:
		llm, err := platforms.NewOpenAIPlatform(c.config.LLM, llmClient)
		if err != nil {
			return fmt.Errorf("failed to create openai platform: %w", err)
		}
		c.llm = llm
	}

	if c.dryRun {
		c.logger.Info("Dry run: messages are printed, archive and zotero are disabled")
		return nil
	}

	if err := c.config.Validate(config.OpNotify); err != nil {
		c.logger.Warn("Discord webhook not configured, skipping notifications", "error", err)
	} else {
		discord, err := platforms.NewDiscordPlatform(c.config.Discord.WebhookURL, c.config.Discord.Username, nil)
		if err != nil {
			return fmt.Errorf("failed to create discord platform: %w", err)
		}
		c.discord = discord
	}

	if c.config.Archive.Enabled {
		if err := c.config.Validate(config.OpArchive); err != nil {
			c.logger.Warn("Google Drive archive not configured, skipping", "error", err)
		} else {
			drive, err := platforms.NewDrivePlatform(ctx, c.config.Archive.CredentialsFile)
			if err != nil {
				return fmt.Errorf("failed to create drive platform: %w", err)
			}
			c.drive = drive
		}
	}

	if err := c.config.Validate(config.OpRegister); err != nil {
		c.logger.Warn("Zotero credentials not found, skipping zotero registration", "error", err)
	} else {
		zotero, err := platforms.NewZoteroPlatform(
			c.config.Zotero.BaseURL,
			c.config.Zotero.LibraryType,
			c.config.Zotero.LibraryID,
			c.config.Zotero.APIKey,
			&http.Client{Timeout: time.Minute},
		)
		if err != nil {
			return fmt.Errorf("failed to create zotero platform: %w", err)
		}
		c.zotero = zotero
	}

	return nil
}

func (c *PlatformComponent) Close(ctx context.Context) error {
	return nil
}

func (c *PlatformComponent) LLM() platforms.LLM {
	return c.llm
}

// Discord is nil in dry-run mode or when the webhook is missing.
func (c *PlatformComponent) Discord() *platforms.DiscordPlatform {
	return c.discord
}

// Drive is nil when archiving is disabled or not configured.
func (c *PlatformComponent) Drive() *platforms.DrivePlatform {
	return c.drive
}

// Zotero is nil when its credentials are missing.
func (c *PlatformComponent) Zotero() *platforms.ZoteroPlatform {
	return c.zotero
}
