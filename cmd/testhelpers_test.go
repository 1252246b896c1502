package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/sells-group/grant-verifier/internal/config"
)

// useTestConfig points cfg at a fresh SQLite file and restores the previous
// config when the test ends.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	prev := cfg
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "grants.db"),
		},
		Research: config.ResearchConfig{
			Provider:    config.ProviderAnthropic,
			TimeoutSecs: 5,
			MaxTokens:   1024,
		},
		Probe:  config.ProbeConfig{TimeoutSecs: 5},
		Batch:  config.BatchConfig{Concurrency: 2, Limit: 50},
		Server: config.ServerConfig{Port: 8080},
		Log:    config.LogConfig{Level: "info", Format: "json"},
	}
	t.Cleanup(func() { cfg = prev })
	return cfg
}

// runCmd executes cmd's RunE with a background context and captured output.
func runCmd(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	t.Cleanup(func() {
		cmd.SetOut(nil)
		cmd.SetContext(context.TODO())
	})
	err := cmd.RunE(cmd, args)
	return out.String(), err
}
