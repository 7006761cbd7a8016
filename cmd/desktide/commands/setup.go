package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/desktide/desktide/pkg/adapters"
	"github.com/desktide/desktide/pkg/config"
	"github.com/desktide/desktide/pkg/engine"
	"github.com/desktide/desktide/pkg/resource"
	"github.com/desktide/desktide/pkg/telemetry"
)

func newLogger() (*telemetry.Logger, error) {
	level := "info"
	if verbose {
		level = "debug"
	}
	format := "console"
	if jsonOutput {
		format = "json"
	}
	return telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  level,
		Format: format,
		Output: "stderr",
	})
}

func loadResources(modes config.Modes) ([]resource.Resource, error) {
	doc, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return config.Resources(doc, modes)
}

func newRunner(log *telemetry.Logger, metrics *telemetry.Metrics) *engine.Runner {
	registry := adapters.DefaultRegistry(adapters.ExecRunner{}, adapters.NewFetcher(), log)
	return engine.NewRunner(registry, log, metrics)
}

// defaultJournalPath places the run journal under the XDG state
// directory.
func defaultJournalPath() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "state")
	}
	dir := filepath.Join(base, "desktide")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create state directory: %w", err)
	}
	return filepath.Join(dir, "journal.db"), nil
}
