package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/grant-verifier/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "grant-verifier",
	Short: "Verify stored grant records against their official sources",
	Long:  "Probes each grant's official page, scores the source domain, re-researches the program with an LLM and records a confidence score with the discrepancies found.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
