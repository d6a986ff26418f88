package testsupport

import (
	"path/filepath"
	"testing"

	"quorum/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithAPIToken sets the API bearer token on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Paths.APIToken = token
	}
}

// WithPageSize overrides the default list page size on the test config.
func WithPageSize(size int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Query.PageSize = size
	}
}

// WithFanoutAttempts overrides the delivery retry budget on the test config.
func WithFanoutAttempts(attempts int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Fanout.MaxAttempts = attempts
	}
}
