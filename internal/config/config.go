package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"paperpost/internal/types"
)

type Config struct {
	Bot        BotConfig        `toml:"bot"`
	Storage    StorageConfig    `toml:"storage"`
	Sources    SourcesConfig    `toml:"sources"`
	LLM        LLMConfig        `toml:"llm"`
	Ranking    RankingConfig    `toml:"ranking"`
	Enrichment EnrichmentConfig `toml:"enrichment"`
	Discord    DiscordConfig    `toml:"discord"`
	Archive    ArchiveConfig    `toml:"archive"`
	Zotero     ZoteroConfig     `toml:"zotero"`
	Retry      RetryConfig      `toml:"retry"`
	Logging    LoggingConfig    `toml:"logging"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

type BotConfig struct {
	Name     string `toml:"name"`
	Interval string `toml:"interval"`
	// RunOnce defaults to true; set it to false to run every Interval.
	RunOnce *bool `toml:"run_once"`
	DryRun  bool  `toml:"dry_run"`
	// MaxSelected caps the number of papers the ranker may select per run.
	MaxSelected int `toml:"max_selected"`
	// ItemTimeout bounds enrichment and publishing of one paper.
	ItemTimeout string `toml:"item_timeout"`
}

func (b BotConfig) Once() bool {
	return b.RunOnce == nil || *b.RunOnce
}

type StorageConfig struct {
	Type string `toml:"type"`
	// Path is the checkpoint file for "file" and the database for "sqlite".
	Path  string      `toml:"path"`
	Redis RedisConfig `toml:"redis"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

type SourcesConfig struct {
	Arxiv ArxivConfig `toml:"arxiv"`
}

type ArxivConfig struct {
	Endpoint   string `toml:"endpoint"`
	Category   string `toml:"category"`
	MaxResults int    `toml:"max_results"`
	Timeout    string `toml:"timeout"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Timeout  string `toml:"timeout"`
}

type RankingConfig struct {
	Keywords     []string `toml:"keywords"`
	KeywordsFile string   `toml:"keywords_file"`
	PromptFile   string   `toml:"prompt_file"`
}

type EnrichmentConfig struct {
	PromptFile   string `toml:"prompt_file"`
	MaxTextChars int    `toml:"max_text_chars"`
	Timeout      string `toml:"timeout"`
	TempDir      string `toml:"temp_dir"`
}

type DiscordConfig struct {
	WebhookURL string `toml:"webhook_url"`
	Username   string `toml:"username"`
	// TemplateFile replaces the built-in paper message template.
	TemplateFile string `toml:"template_file"`
}

type ArchiveConfig struct {
	Enabled         bool   `toml:"enabled"`
	CredentialsFile string `toml:"credentials_file"`
	FolderName      string `toml:"folder_name"`
	// CreateFolder defaults to true when unset.
	CreateFolder *bool `toml:"create_folder"`
}

func (a ArchiveConfig) ShouldCreateFolder() bool {
	return a.CreateFolder == nil || *a.CreateFolder
}

type ZoteroConfig struct {
	APIKey         string `toml:"api_key"`
	LibraryID      string `toml:"library_id"`
	LibraryType    string `toml:"library_type"`
	CollectionName string `toml:"collection_name"`
	BaseURL        string `toml:"base_url"`
}

type RetryConfig struct {
	Fetch   RetryPolicyConfig `toml:"fetch"`
	Rank    RetryPolicyConfig `toml:"rank"`
	Enrich  RetryPolicyConfig `toml:"enrich"`
	Publish RetryPolicyConfig `toml:"publish"`
}

type RetryPolicyConfig struct {
	MaxAttempts int    `toml:"max_attempts"`
	BaseDelay   string `toml:"base_delay"`
	MaxDelay    string `toml:"max_delay"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

type MetricsConfig struct {
	PushgatewayURL string `toml:"pushgateway_url"`
	Job            string `toml:"job"`
}

// Load reads the TOML file at path. A missing file is not an error: defaults
// and environment variables are enough to run.
func Load(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnv(&config, os.Getenv)

	if err := applyDefaults(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func applyEnv(config *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&config.LLM.APIKey, "OPENAI_API_KEY")
	set(&config.Discord.WebhookURL, "DISCORD_WEBHOOK_URL")
	set(&config.Zotero.APIKey, "ZOTERO_API_KEY")
	set(&config.Zotero.LibraryID, "ZOTERO_LIBRARY_ID")
	set(&config.Archive.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	set(&config.Storage.Redis.Password, "REDIS_PASSWORD")
}

func applyDefaults(config *Config) error {
	if config.Bot.Name == "" {
		config.Bot.Name = "paperpost"
	}
	if config.Bot.Interval == "" {
		config.Bot.Interval = "24h"
	}
	if _, err := time.ParseDuration(config.Bot.Interval); err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}
	if config.Bot.MaxSelected <= 0 {
		config.Bot.MaxSelected = 20
	}
	if config.Bot.ItemTimeout == "" {
		config.Bot.ItemTimeout = "15m"
	}

	if config.Storage.Type == "" {
		config.Storage.Type = "file"
	}
	if config.Storage.Path == "" {
		switch config.Storage.Type {
		case "sqlite":
			config.Storage.Path = "./paperpost.db"
		default:
			config.Storage.Path = "settings/last_date.txt"
		}
	}
	if config.Storage.Redis.Addr == "" {
		config.Storage.Redis.Addr = "localhost:6379"
	}
	if config.Storage.Redis.Prefix == "" {
		config.Storage.Redis.Prefix = "paperpost"
	}

	arxiv := &config.Sources.Arxiv
	if arxiv.Endpoint == "" {
		arxiv.Endpoint = "https://export.arxiv.org/api/query"
	}
	if arxiv.Category == "" {
		arxiv.Category = "cs.LG"
	}
	if arxiv.MaxResults <= 0 {
		arxiv.MaxResults = 50
	}
	if arxiv.Timeout == "" {
		arxiv.Timeout = "30s"
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "gpt-4o"
	}
	if config.LLM.Timeout == "" {
		config.LLM.Timeout = "2m"
	}

	if config.Enrichment.MaxTextChars <= 0 {
		config.Enrichment.MaxTextChars = 100000
	}
	if config.Enrichment.Timeout == "" {
		config.Enrichment.Timeout = "5m"
	}

	if config.Archive.FolderName == "" {
		config.Archive.FolderName = "papers"
	}

	if config.Zotero.LibraryType == "" {
		config.Zotero.LibraryType = "user"
	}
	if config.Zotero.CollectionName == "" {
		config.Zotero.CollectionName = "daily"
	}
	if config.Zotero.BaseURL == "" {
		config.Zotero.BaseURL = "https://api.zotero.org"
	}

	defaultPolicy(&config.Retry.Fetch, 4, "2s")
	defaultPolicy(&config.Retry.Rank, 3, "1s")
	defaultPolicy(&config.Retry.Enrich, 3, "1s")
	defaultPolicy(&config.Retry.Publish, 3, "1s")

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "json"
	}
	if config.Metrics.Job == "" {
		config.Metrics.Job = config.Bot.Name
	}

	for _, d := range []struct {
		name  string
		value string
	}{
		{"bot.item_timeout", config.Bot.ItemTimeout},
		{"sources.arxiv.timeout", arxiv.Timeout},
		{"llm.timeout", config.LLM.Timeout},
		{"enrichment.timeout", config.Enrichment.Timeout},
		{"retry.fetch.base_delay", config.Retry.Fetch.BaseDelay},
		{"retry.rank.base_delay", config.Retry.Rank.BaseDelay},
		{"retry.enrich.base_delay", config.Retry.Enrich.BaseDelay},
		{"retry.publish.base_delay", config.Retry.Publish.BaseDelay},
		{"retry.fetch.max_delay", config.Retry.Fetch.MaxDelay},
		{"retry.rank.max_delay", config.Retry.Rank.MaxDelay},
		{"retry.enrich.max_delay", config.Retry.Enrich.MaxDelay},
		{"retry.publish.max_delay", config.Retry.Publish.MaxDelay},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
	}

	return nil
}

func defaultPolicy(p *RetryPolicyConfig, attempts int, base string) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = attempts
	}
	if p.BaseDelay == "" {
		p.BaseDelay = base
	}
	if p.MaxDelay == "" {
		p.MaxDelay = "1m"
	}
}

// Operations checked by Validate.
const (
	OpRank      = "rank"
	OpSummarize = "summarize"
	OpNotify    = "notify"
	OpArchive   = "archive"
	OpRegister  = "zotero"
)

// Validate fails with a *types.ConfigurationError naming every setting the
// operation needs but does not have.
func (c *Config) Validate(operation string) error {
	var missing []string

	switch operation {
	case OpRank, OpSummarize:
		if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
			missing = append(missing, "llm.api_key (OPENAI_API_KEY)")
		}
		if c.LLM.Model == "" {
			missing = append(missing, "llm.model")
		}
	case OpNotify:
		if c.Discord.WebhookURL == "" {
			missing = append(missing, "discord.webhook_url (DISCORD_WEBHOOK_URL)")
		}
	case OpArchive:
		if c.Archive.CredentialsFile == "" {
			missing = append(missing, "archive.credentials_file (GOOGLE_APPLICATION_CREDENTIALS)")
		}
		if c.Archive.FolderName == "" {
			missing = append(missing, "archive.folder_name")
		}
	case OpRegister:
		if c.Zotero.APIKey == "" {
			missing = append(missing, "zotero.api_key (ZOTERO_API_KEY)")
		}
		if c.Zotero.LibraryID == "" {
			missing = append(missing, "zotero.library_id (ZOTERO_LIBRARY_ID)")
		}
	default:
		return fmt.Errorf("unknown operation: %s", operation)
	}

	if len(missing) > 0 {
		return types.NewConfigurationError(operation, missing...)
	}
	return nil
}

// ParseDuration returns def when value is empty or invalid.
func ParseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// LoadKeywords merges inline keywords with the keywords file, one per line.
func (r RankingConfig) LoadKeywords() ([]string, error) {
	keywords := make([]string, 0, len(r.Keywords))
	for _, kw := range r.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	if r.KeywordsFile == "" {
		return keywords, nil
	}

	data, err := os.ReadFile(r.KeywordsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return keywords, nil
		}
		return nil, fmt.Errorf("failed to read keywords file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
			keywords = append(keywords, line)
		}
	}
	return keywords, nil
}

// ReadOptionalFile returns the file contents, or "" if path is empty or missing.
func ReadOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}
