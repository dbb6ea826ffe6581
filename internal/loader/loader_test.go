package loader

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"paperpost/internal/components"
	"paperpost/internal/config"
	"paperpost/internal/types"
)

func testConfig(t *testing.T, endpoint string) *config.Config {
	t.Helper()
	for _, key := range []string{"OPENAI_API_KEY", "DISCORD_WEBHOOK_URL", "ZOTERO_API_KEY", "ZOTERO_LIBRARY_ID", "GOOGLE_APPLICATION_CREDENTIALS"} {
		t.Setenv(key, "")
	}

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	cfg.LLM.APIKey = "sk-test"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "last_date.txt")
	cfg.Sources.Arxiv.Endpoint = endpoint
	cfg.Retry.Fetch.MaxAttempts = 1
	return cfg
}

func TestInitializeDryRunEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"><title>empty</title></feed>`))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Bot.DryRun = true

	var out bytes.Buffer
	st, err := NewLoader(cfg, nil).WithOutput(&out).Initialize(context.Background())
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer st.Close(context.Background())

	if err := st.Bot.Start(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "本日の新着論文はありません。") {
		t.Fatalf("expected no-news preview, got %q", out.String())
	}
}

func TestInitializeWithoutWebhookSkipsNotifier(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")

	st, err := NewLoader(cfg, nil).Initialize(context.Background())
	if err != nil {
		t.Fatalf("a missing webhook should not be fatal: %v", err)
	}
	defer st.Close(context.Background())

	platformComp := components.NewPlatformComponent(cfg, nil)
	if err := platformComp.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	announcer, publishers, err := NewLoader(cfg, nil).createPublishers(platformComp)
	if err != nil {
		t.Fatal(err)
	}
	if announcer != nil {
		t.Fatalf("expected no announcer, got %T", announcer)
	}
	if len(publishers) != 0 {
		t.Fatalf("expected no publishers, got %d", len(publishers))
	}
}

func TestInitializeRequiresModelKey(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	cfg.LLM.APIKey = ""

	_, err := NewLoader(cfg, nil).Initialize(context.Background())
	if !types.IsConfigurationError(err) {
		t.Fatalf("expected configuration error for missing api key, got %v", err)
	}
}

func TestInitializeBuildsConfiguredSinks(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	cfg.Discord.WebhookURL = "https://discord.com/api/webhooks/1/token"
	cfg.Zotero.APIKey = "key"
	cfg.Zotero.LibraryID = "7"

	st, err := NewLoader(cfg, nil).Initialize(context.Background())
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer st.Close(context.Background())

	if st.Pipeline == nil || st.Bot == nil {
		t.Fatalf("pipeline and bot should be built")
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := policy("fetch", config.RetryPolicyConfig{MaxAttempts: 4, BaseDelay: "2s", MaxDelay: "30s"})
	if p.Name != "fetch" || p.MaxAttempts != 4 || p.BaseDelay.Seconds() != 2 || p.MaxDelay.Seconds() != 30 {
		t.Fatalf("unexpected policy %+v", p)
	}
}
