package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history <grant-id>",
	Short: "Show past verification runs for a grant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetGrant(ctx, args[0]); err != nil {
			return eris.Wrap(err, "load grant")
		}

		logs, err := st.ListVerificationLogs(ctx, args[0], historyLimit)
		if err != nil {
			return eris.Wrap(err, "list verification logs")
		}

		if historyJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(logs)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WHEN\tSTATUS\tCONFIDENCE\tCHECKS\tDOMAIN\tDISCREPANCIES")
		for _, l := range logs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d/%d\t%s\t%d\n",
				l.CreatedAt.Format(time.RFC3339), l.Status, l.Confidence,
				l.ChecksPassed, l.ChecksTotal, l.URLDomain, len(l.Discrepancies))
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "max runs to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print runs as JSON")
	rootCmd.AddCommand(historyCmd)
}
