package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quorum/internal/config"
)

func TestLoadDefaultsAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("QUORUM_API_TOKEN", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "quorum")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.LogDir != filepath.Join(wantData, "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7985" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Approval.DefaultGroupRole != 1 {
		t.Fatalf("unexpected default group role: %d", cfg.Approval.DefaultGroupRole)
	}
	if cfg.Query.PageSize != 10 || cfg.Query.MaxPageSize != 100 {
		t.Fatalf("unexpected query defaults: %+v", cfg.Query)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "quorum.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
}

func TestLoadReadsFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "state") + `"
api_bind = "127.0.0.1:9000"

[logging]
format = "json"
level = "debug"

[query]
page_size = 25
max_page_size = 50
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config to resolve to %q, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Paths.APIBind != "127.0.0.1:9000" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
	if cfg.Query.PageSize != 25 || cfg.Query.MaxPageSize != 50 {
		t.Fatalf("unexpected query settings: %+v", cfg.Query)
	}
	// Unset sections keep their defaults.
	if cfg.Fanout.RetryInterval != config.Default().Fanout.RetryInterval {
		t.Fatalf("unexpected fanout retry interval: %d", cfg.Fanout.RetryInterval)
	}
}

func TestLoadAPITokenFromEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("QUORUM_API_TOKEN", "  secret-token  ")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIToken != "secret-token" {
		t.Fatalf("expected trimmed env token, got %q", cfg.Paths.APIToken)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"zero page size", func(c *config.Config) { c.Query.PageSize = 0 }, "query.page_size"},
		{"page size above max", func(c *config.Config) { c.Query.PageSize = 200 }, "must not exceed"},
		{"negative role", func(c *config.Config) { c.Approval.DefaultGroupRole = -1 }, "default_group_role"},
		{"zero retry interval", func(c *config.Config) { c.Fanout.RetryInterval = 0 }, "fanout.retry_interval"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestSampleConfigMentionsEverySection(t *testing.T) {
	sample := config.SampleConfig()
	for _, section := range []string{"[paths]", "[logging]", "[approval]", "[fanout]", "[query]"} {
		if !strings.Contains(sample, section) {
			t.Fatalf("sample config missing section %s", section)
		}
	}
}
