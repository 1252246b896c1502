package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/grant-verifier/internal/verify"
)

var (
	verifyGrantID string
	verifyJSON    bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a single grant",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initVerifyEnv(ctx, "verify")
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Service.Verify(ctx, verifyGrantID)
		if err != nil {
			return eris.Wrap(err, "verify grant")
		}

		if verifyJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		printResponse(cmd.OutOrStdout(), resp)
		return nil
	},
}

func printResponse(w io.Writer, resp *verify.Response) {
	fmt.Fprintf(w, "grant:       %s\n", resp.GrantID)
	fmt.Fprintf(w, "status:      %s\n", resp.Status)
	fmt.Fprintf(w, "confidence:  %d\n", resp.Confidence)
	fmt.Fprintf(w, "checks:      %d/%d\n", resp.ChecksPassed, resp.ChecksTotal)
	fmt.Fprintf(w, "source:      %s (%s, trust %d)\n",
		resp.TrustScore.SourceType, resp.TrustScore.AuthorityTier, resp.TrustScore.Score)
	fmt.Fprintf(w, "duration:    %dms\n", resp.DurationMS)
	for _, iss := range resp.Issues {
		fmt.Fprintf(w, "  [%s] %s: %s\n", iss.Severity, iss.Type, iss.Message)
	}
	for _, d := range resp.Discrepancies {
		fmt.Fprintf(w, "  ~ %s (%s): stored=%v fresh=%v\n", d.Field, d.Severity, d.StoredValue, d.FreshValue)
	}
}

func init() {
	verifyCmd.Flags().StringVar(&verifyGrantID, "grant-id", "", "grant ID to verify")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "print the response as JSON")
	_ = verifyCmd.MarkFlagRequired("grant-id")
	rootCmd.AddCommand(verifyCmd)
}
