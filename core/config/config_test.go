package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc"},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Errorf("run mode = %q, want longpoll", cfg.Telegram.RunMode)
	}
	if cfg.Access.FreeDownloadsAllowed != 2 || cfg.Access.FreeResetHours != 10 {
		t.Errorf("access defaults = %+v", cfg.Access)
	}
	if cfg.Access.WaitTimeSeconds != 20 || cfg.Access.TokenDurationHours != 10 {
		t.Errorf("access defaults = %+v", cfg.Access)
	}
	if cfg.Access.SessionTTLSeconds != 3600 || cfg.Access.SweepIntervalSeconds != 600 {
		t.Errorf("access defaults = %+v", cfg.Access)
	}
	if cfg.Storage.Backend != StorageLocal || cfg.Storage.LocalDir != "data" {
		t.Errorf("storage defaults = %+v", cfg.Storage)
	}
	if len(cfg.Catalog.Branches) != 5 || cfg.Catalog.MaxSemester != 8 {
		t.Errorf("catalog defaults = %+v", cfg.Catalog)
	}
	if cfg.Catalog.MaxSearchResults != 10 {
		t.Errorf("max search results = %d", cfg.Catalog.MaxSearchResults)
	}
	if cfg.Keepalive.Listen != ":8080" || cfg.Keepalive.PingIntervalSeconds != 300 {
		t.Errorf("keepalive defaults = %+v", cfg.Keepalive)
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }},
		{"bad run mode", func(c *Config) { c.Telegram.RunMode = "carrier-pigeon" }},
		{"webhook without url", func(c *Config) { c.Telegram.RunMode = RunModeWebhook }},
		{"bad storage backend", func(c *Config) { c.Storage.Backend = "s3" }},
		{"github backend without token", func(c *Config) { c.Storage.Backend = StorageGitHub }},
		{"postgres backend without host", func(c *Config) { c.Storage.Backend = StoragePostgres }},
		{"ad without id", func(c *Config) { c.Ads = []Ad{{URL: "https://x"}} }},
		{"ad without url", func(c *Config) { c.Ads = []Ad{{ID: "a1"}} }},
		{"bad rate limit exclude", func(c *Config) { c.RateLimit.ExcludeUpdates = []string{"gopher"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := Normalize(cfg); err == nil {
				t.Fatal("Normalize accepted invalid config")
			}
		})
	}
}

func TestNormalizeRunModeAliases(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "Polling"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q, want longpoll", cfg.Telegram.RunMode)
	}
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
telegram:
  token: "from-yaml"
storage:
  backend: local
  local_dir: docs
access:
  free_downloads_allowed: 3
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Errorf("env override lost: token = %q", cfg.Telegram.Token)
	}
	if cfg.Storage.LocalDir != "docs" {
		t.Errorf("local_dir = %q", cfg.Storage.LocalDir)
	}
	if cfg.Access.FreeDownloadsAllowed != 3 {
		t.Errorf("free_downloads_allowed = %d", cfg.Access.FreeDownloadsAllowed)
	}
}
