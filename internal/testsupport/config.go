package testsupport

import (
	"path/filepath"
	"testing"

	"archivist/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StorageDir = filepath.Join(base, "storage")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = ""
	cfg.Pipeline.RetryBackoffInitial = 0
	cfg.Pipeline.RetryBackoffMax = 0

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithAPIBind enables the HTTP API on the test config.
func WithAPIBind(bind string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Paths.APIBind = bind
	}
}

// WithMaxRetries overrides the retry budget.
func WithMaxRetries(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.MaxRetries = n
	}
}
