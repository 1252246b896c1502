package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/grant-verifier/internal/model"
	"github.com/sells-group/grant-verifier/internal/store"
	"github.com/sells-group/grant-verifier/internal/verify"
)

var (
	batchStatus      string
	batchLimit       int
	batchConcurrency int
	batchRate        float64
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Verify grants selected by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		applyBatchFlags(cmd)

		status := model.VerificationStatus(batchStatus)
		if status != "" && !status.Valid() {
			return eris.Errorf("invalid --status %q", batchStatus)
		}

		env, err := initVerifyEnv(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		grants, err := env.Store.ListGrants(ctx, store.GrantFilter{Status: status, Limit: cfg.Batch.Limit})
		if err != nil {
			return eris.Wrap(err, "list grants")
		}
		ids := make([]string, len(grants))
		for i, g := range grants {
			ids[i] = g.ID
		}

		zap.L().Info("batch: starting",
			zap.Int("grants", len(ids)),
			zap.String("status", batchStatus),
			zap.Int("concurrency", cfg.Batch.Concurrency),
			zap.Float64("rate_per_second", cfg.Batch.RatePerSecond),
		)

		results := env.Service.VerifyBatch(ctx, ids, verify.BatchOptions{
			Concurrency:   cfg.Batch.Concurrency,
			RatePerSecond: cfg.Batch.RatePerSecond,
		})

		out := cmd.OutOrStdout()
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(out, "%s\terror\t%v\n", r.GrantID, r.Err)
				continue
			}
			fmt.Fprintf(out, "%s\t%s\t%d\n", r.GrantID, r.Response.Status, r.Response.Confidence)
		}

		sum := verify.Summarize(results)
		fmt.Fprintf(out, "total=%d verified=%d warning=%d failed=%d errors=%d\n",
			sum.Total,
			sum.ByStatus[model.StatusVerified],
			sum.ByStatus[model.StatusWarning],
			sum.ByStatus[model.StatusFailed],
			sum.Failed,
		)
		return nil
	},
}

// applyBatchFlags overrides the batch config with any flags set explicitly.
func applyBatchFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("limit") {
		cfg.Batch.Limit = batchLimit
	}
	if flags.Changed("concurrency") {
		cfg.Batch.Concurrency = batchConcurrency
	}
	if flags.Changed("rate") {
		cfg.Batch.RatePerSecond = batchRate
	}
}

func init() {
	batchCmd.Flags().StringVar(&batchStatus, "status", string(model.StatusUnverified), "verification status to select (empty for all)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 50, "max grants to verify")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 5, "max verifications in flight")
	batchCmd.Flags().Float64Var(&batchRate, "rate", 1.0, "verification starts per second (0 for unlimited)")
	rootCmd.AddCommand(batchCmd)
}
