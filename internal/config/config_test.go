package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"paperpost/internal/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"OPENAI_API_KEY", "DISCORD_WEBHOOK_URL", "ZOTERO_API_KEY", "ZOTERO_LIBRARY_ID", "GOOGLE_APPLICATION_CREDENTIALS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Storage.Type != "file" || cfg.Storage.Path != "settings/last_date.txt" {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.Retry.Fetch.MaxAttempts != 4 || cfg.Retry.Fetch.BaseDelay != "2s" {
		t.Fatalf("unexpected fetch policy %+v", cfg.Retry.Fetch)
	}
	if cfg.Retry.Rank.MaxAttempts != 3 || cfg.Retry.Rank.BaseDelay != "1s" {
		t.Fatalf("unexpected rank policy %+v", cfg.Retry.Rank)
	}
	if cfg.Bot.MaxSelected != 20 || cfg.LLM.Model != "gpt-4o" {
		t.Fatalf("unexpected defaults %+v %+v", cfg.Bot, cfg.LLM)
	}
	if cfg.Retry.Publish.MaxAttempts != 3 || cfg.Retry.Publish.MaxDelay != "1m" {
		t.Fatalf("unexpected publish policy %+v", cfg.Retry.Publish)
	}
	if !cfg.Archive.ShouldCreateFolder() {
		t.Fatalf("archive folder creation should default to true")
	}
	if !cfg.Bot.Once() || cfg.Bot.ItemTimeout != "15m" {
		t.Fatalf("unexpected bot defaults %+v", cfg.Bot)
	}
}

func TestArchiveCreateFolderExplicitFalse(t *testing.T) {
	path := writeFile(t, "config.toml", `[archive]
enabled = true
create_folder = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Archive.ShouldCreateFolder() {
		t.Fatalf("explicit create_folder = false was ignored")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, "config.toml", `
[bot]
name = "papers"
interval = "12h"
run_once = false

[storage]
type = "sqlite"

[sources.arxiv]
category = "cs.CL"
max_results = 10

[ranking]
keywords = ["retrieval", " agents "]

[retry.fetch]
max_attempts = 2
base_delay = "500ms"
`)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ZOTERO_LIBRARY_ID", "12345")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Bot.Name != "papers" || cfg.Metrics.Job != "papers" || cfg.Bot.Once() {
		t.Fatalf("unexpected bot config %+v", cfg.Bot)
	}
	if cfg.Storage.Path != "./paperpost.db" {
		t.Fatalf("sqlite path default not applied: %q", cfg.Storage.Path)
	}
	if cfg.Sources.Arxiv.Category != "cs.CL" || cfg.Sources.Arxiv.MaxResults != 10 {
		t.Fatalf("unexpected arxiv config %+v", cfg.Sources.Arxiv)
	}
	if cfg.LLM.APIKey != "sk-test" || cfg.Zotero.LibraryID != "12345" {
		t.Fatalf("environment overrides not applied")
	}
	if cfg.Retry.Fetch.MaxAttempts != 2 || cfg.Retry.Fetch.BaseDelay != "500ms" {
		t.Fatalf("unexpected fetch policy %+v", cfg.Retry.Fetch)
	}

	keywords, err := cfg.Ranking.LoadKeywords()
	if err != nil {
		t.Fatal(err)
	}
	if len(keywords) != 2 || keywords[1] != "agents" {
		t.Fatalf("unexpected keywords %q", keywords)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeFile(t, "config.toml", "[retry.rank]\nbase_delay = \"soon\"\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected invalid duration error")
	}
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := writeFile(t, "config.toml", "[bot\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.LLM.Provider = "openai"
	cfg.LLM.Model = "gpt-4o"

	tests := []struct {
		operation string
		missing   int
	}{
		{OpRank, 1},
		{OpNotify, 1},
		{OpArchive, 2},
		{OpRegister, 2},
	}
	for _, tt := range tests {
		t.Run(tt.operation, func(t *testing.T) {
			err := cfg.Validate(tt.operation)
			var cfgErr *types.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if len(cfgErr.Missing) != tt.missing {
				t.Fatalf("missing = %v", cfgErr.Missing)
			}
			if types.IsRetryable(err) {
				t.Fatalf("configuration errors must not be retried")
			}
		})
	}

	cfg.LLM.Provider = "ollama"
	if err := cfg.Validate(OpSummarize); err != nil {
		t.Fatalf("ollama needs no api key: %v", err)
	}
}

func TestLoadKeywordsFile(t *testing.T) {
	path := writeFile(t, "keywords.txt", "# interests\nlarge language models\n\nreinforcement learning\n")
	r := RankingConfig{Keywords: []string{"diffusion"}, KeywordsFile: path}

	keywords, err := r.LoadKeywords()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"diffusion", "large language models", "reinforcement learning"}
	if len(keywords) != len(want) {
		t.Fatalf("got %q, want %q", keywords, want)
	}
	for i := range want {
		if keywords[i] != want[i] {
			t.Fatalf("got %q, want %q", keywords, want)
		}
	}
}

func TestApplyEnvIgnoresBlank(t *testing.T) {
	cfg := &Config{}
	cfg.Discord.WebhookURL = "https://discord.com/api/webhooks/1/abc"
	applyEnv(cfg, func(string) string { return "  " })
	if cfg.Discord.WebhookURL == "" {
		t.Fatalf("blank environment value should not override config")
	}
}
