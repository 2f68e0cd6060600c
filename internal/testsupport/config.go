package testsupport

import (
	"path/filepath"
	"testing"

	"audiobookmaker/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Cache.Root = filepath.Join(base, "cache")
	cfg.Logging.Dir = filepath.Join(base, "logs")
	cfg.Audio.Cores = 2
	cfg.Limits.MemoryLimitMB = 1 << 20
	cfg.Limits.TaskTimeoutSeconds = 30

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return &cfg
}

// WithValidationLevel overrides validation strictness on the test config.
func WithValidationLevel(level string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Validation.Level = level
	}
}

// WithChapterTitles overrides the chapter title mode on the test config.
func WithChapterTitles(mode string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Output.ChapterTitles = mode
	}
}
