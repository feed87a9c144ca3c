package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/costplane/costplane/internal/backend"
	"github.com/costplane/costplane/internal/orchestrator"
	"github.com/costplane/costplane/internal/types"
)

func newImportCmd(v *viper.Viper) *cobra.Command {
	var (
		startFlag       string
		endFlag         string
		reset           bool
		continueOnError bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Discover and load new export versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(v)
			if err != nil {
				return err
			}

			vendor, err := resolveVendor(cmd)
			if err != nil {
				return err
			}
			start, end, err := resolveRange(cfg, vendor, startFlag, endFlag)
			if err != nil {
				return err
			}
			if !reset {
				if vendor == types.VendorAWS {
					reset = cfg.AWS.Reset
				} else {
					reset = cfg.Azure.Reset
				}
			}

			adapter, err := backend.Default.Create(cfg, log)
			if err != nil {
				return err
			}
			defer adapter.Close()

			summary, runErr := orchestrator.New(cfg, adapter, log).Run(cmd.Context(), orchestrator.Params{
				Vendor:          vendor,
				Start:           start,
				End:             end,
				Reset:           reset,
				ContinueOnError: continueOnError,
			})
			if summary != nil {
				printSummary(cmd, summary)
			}
			return runErr
		},
	}

	cmd.Flags().String("vendor", "", "export vendor (aws, azure)")
	cmd.Flags().StringVar(&startFlag, "start", "", "first billing period to consider (YYYY-MM)")
	cmd.Flags().StringVar(&endFlag, "end", "", "last billing period to consider (YYYY-MM)")
	cmd.Flags().BoolVar(&reset, "reset", false, "reload versions the state store already has")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep going past a failed month")
	_ = cmd.MarkFlagRequired("vendor")

	return cmd
}

func printSummary(cmd *cobra.Command, summary *orchestrator.Summary) {
	printf(cmd, "%-10s %-38s %-10s %12s  %s\n", "PERIOD", "VERSION", "ACTION", "ROWS", "TABLE")
	for _, res := range summary.Results {
		table := res.Table
		if table == "" {
			table = "-"
		}
		printf(cmd, "%-10s %-38s %-10s %12d  %s\n",
			formatPeriod(res.BillingPeriod), res.VersionID, res.Action, res.RowCount, table)
	}
	printf(cmd, "\nloaded=%d skipped=%d failed=%d\n",
		summary.Loaded(), summary.Skipped(), summary.Failed())
}
