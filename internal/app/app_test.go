package app

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"NewsDesk/internal/config"
	"NewsDesk/internal/provider"
)

func testApp() *Application {
	return &Application{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		router: provider.NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
}

func providerConfig(id, kind, capability, keyEnv string) config.ProviderConfig {
	return config.ProviderConfig{
		ID:         id,
		Kind:       kind,
		Capability: capability,
		Model:      "m",
		Priority:   1,
		RateLimit:  config.RateLimitConfig{Count: 10, Window: config.Duration(time.Minute)},
		APIKeyEnv:  keyEnv,
	}
}

func TestBuildProfilesSkipsMismatchedCapability(t *testing.T) {
	t.Setenv("TEST_AI_KEY", "k")

	a := testApp()
	profiles := a.buildProfiles([]config.ProviderConfig{
		providerConfig("claude-img", "anthropic", "image", "TEST_AI_KEY"),
		providerConfig("cohere-img", "cohere", "image", "TEST_AI_KEY"),
		providerConfig("dalle", "openai", "image", "TEST_AI_KEY"),
		providerConfig("claude", "anthropic", "text", "TEST_AI_KEY"),
	})

	if len(profiles) != 2 {
		t.Fatalf("expected 2 usable profiles, got %d", len(profiles))
	}
	for _, p := range profiles {
		if p.Capability == provider.CapabilityImage && p.Image == nil {
			t.Fatalf("profile %s declared image capability without a renderer", p.ID)
		}
	}
}

func TestBuildProfilesSkipsMissingCredentialAndUnknownKind(t *testing.T) {
	t.Setenv("TEST_AI_KEY", "k")

	a := testApp()
	profiles := a.buildProfiles([]config.ProviderConfig{
		providerConfig("no-key", "openai", "text", "UNSET_TEST_KEY_ENV"),
		providerConfig("mystery", "llama-farm", "text", "TEST_AI_KEY"),
		providerConfig("gpt", "openai", "text", "TEST_AI_KEY"),
	})

	if len(profiles) != 1 || profiles[0].ID != "gpt" {
		t.Fatalf("expected only the configured openai profile, got %+v", profiles)
	}
}

func TestReloadProvidersSwapsRouterSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newsdesk.yaml")
	raw := `
providers:
  - id: reloaded
    kind: openai
    capability: text
    model: gpt-4o-mini
    priority: 1
    rateLimit:
      count: 10
      window: 1m
    apiKeyEnv: TEST_AI_KEY
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("NEWSDESK_CONFIG", path)
	t.Setenv("TEST_AI_KEY", "k")

	a := testApp()
	a.reloadProviders()

	snap := a.router.Snapshot()
	if len(snap) != 1 || snap[0].ID != "reloaded" {
		t.Fatalf("router should hold the reloaded profile set, got %+v", snap)
	}
}
