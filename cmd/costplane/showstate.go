package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/costplane/costplane/internal/backend"
	"github.com/costplane/costplane/internal/types"
)

func newShowStateCmd(v *viper.Viper) *cobra.Command {
	var periodFlag string

	cmd := &cobra.Command{
		Use:   "show-state",
		Short: "Show loaded versions for the configured export",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(v)
			if err != nil {
				return err
			}

			vendor, err := resolveVendor(cmd)
			if err != nil {
				return err
			}
			exportName := exportNameFor(cfg, vendor)

			adapter, err := backend.Default.Create(cfg, log)
			if err != nil {
				return err
			}
			defer adapter.Close()

			store, err := adapter.StateStore(cmd.Context())
			if err != nil {
				return err
			}

			if periodFlag != "" {
				period, perr := types.ParseBillingPeriod(periodFlag)
				if perr != nil {
					return perr
				}
				history, herr := store.VersionHistory(cmd.Context(), vendor, exportName, period)
				if herr != nil {
					return herr
				}
				printf(cmd, "%-38s %-10s %-8s %12s  %s\n", "VERSION", "STATUS", "CURRENT", "ROWS", "ERROR")
				for _, rec := range history {
					current := ""
					if rec.IsCurrent {
						current = "yes"
					}
					printf(cmd, "%-38s %-10s %-8s %12d  %s\n",
						rec.VersionID, rec.Status, current, rec.RowCount, rec.ErrorMessage)
				}
				return nil
			}

			versions, verr := store.CurrentVersions(cmd.Context(), vendor, exportName)
			if verr != nil {
				return verr
			}
			printf(cmd, "%-10s %-38s %-8s %12s  %s\n", "PERIOD", "VERSION", "FORMAT", "ROWS", "LOADED AT")
			for _, cv := range versions {
				printf(cmd, "%-10s %-38s %-8s %12d  %s\n",
					formatPeriod(cv.BillingPeriod), cv.VersionID, cv.DataFormatVersion,
					cv.RowCount, cv.LoadedAt.UTC().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().String("vendor", "", "export vendor (aws, azure)")
	cmd.Flags().StringVar(&periodFlag, "billing-period", "", "show full version history for one period (YYYY-MM)")
	_ = cmd.MarkFlagRequired("vendor")

	return cmd
}
