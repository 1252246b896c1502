package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/grant-verifier/internal/model"
	"github.com/sells-group/grant-verifier/internal/store"
)

var (
	grantsListStatus string
	grantsListLimit  int
	grantsListOffset int
	grantsListJSON   bool
)

var grantsCmd = &cobra.Command{
	Use:   "grants",
	Short: "Manage stored grants",
}

var grantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List grants, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		status := model.VerificationStatus(grantsListStatus)
		if status != "" && !status.Valid() {
			return eris.Errorf("invalid --status %q", grantsListStatus)
		}

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		grants, err := st.ListGrants(ctx, store.GrantFilter{
			Status: status,
			Limit:  grantsListLimit,
			Offset: grantsListOffset,
		})
		if err != nil {
			return eris.Wrap(err, "list grants")
		}

		if grantsListJSON {
			if grants == nil {
				grants = []model.Grant{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(grants)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tCONFIDENCE\tNAME")
		for _, g := range grants {
			conf := "-"
			if g.HasVerification() {
				conf = fmt.Sprintf("%d", g.VerificationConfidence)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.ID, g.VerificationStatus, conf, g.Name)
		}
		return tw.Flush()
	},
}

// importRecord is one grant in an import file. Deadlines are YYYY-MM-DD.
type importRecord struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	OfficialURL        string   `json:"official_url"`
	FundingSource      string   `json:"funding_source"`
	MinAmount          *float64 `json:"min_amount"`
	MaxAmount          *float64 `json:"max_amount"`
	Deadline           string   `json:"deadline"`
	EligibilitySummary string   `json:"eligibility_summary"`
}

func (r importRecord) toGrant() (model.Grant, error) {
	g := model.Grant{
		ID:                 strings.TrimSpace(r.ID),
		Name:               strings.TrimSpace(r.Name),
		OfficialURL:        strings.TrimSpace(r.OfficialURL),
		FundingSource:      r.FundingSource,
		MinAmount:          r.MinAmount,
		MaxAmount:          r.MaxAmount,
		EligibilitySummary: r.EligibilitySummary,
	}
	if g.Name == "" {
		return g, eris.New("name is required")
	}
	if d := strings.TrimSpace(r.Deadline); d != "" {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return g, eris.Wrapf(err, "parse deadline %q", d)
		}
		g.Deadline = &t
	}
	return g, nil
}

// readImportFile parses a JSON array of grants.
func readImportFile(path string) ([]model.Grant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	var records []importRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}
	grants := make([]model.Grant, 0, len(records))
	for i, r := range records {
		g, err := r.toGrant()
		if err != nil {
			return nil, eris.Wrapf(err, "record %d", i)
		}
		grants = append(grants, g)
	}
	return grants, nil
}

var grantsImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import grants from a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		grants, err := readImportFile(args[0])
		if err != nil {
			return err
		}

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ImportGrants(ctx, grants)
		if err != nil {
			return eris.Wrap(err, "import grants")
		}

		zap.L().Info("grants imported", zap.String("file", args[0]), zap.Int64("rows", n))
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d grants\n", n)
		return nil
	},
}

func init() {
	grantsListCmd.Flags().StringVar(&grantsListStatus, "status", "", "filter by verification status")
	grantsListCmd.Flags().IntVar(&grantsListLimit, "limit", 100, "max grants to list")
	grantsListCmd.Flags().IntVar(&grantsListOffset, "offset", 0, "grants to skip")
	grantsListCmd.Flags().BoolVar(&grantsListJSON, "json", false, "print grants as JSON")

	grantsCmd.AddCommand(grantsListCmd)
	grantsCmd.AddCommand(grantsImportCmd)
	rootCmd.AddCommand(grantsCmd)
}
