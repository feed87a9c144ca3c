package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/costplane/costplane/internal/config"
	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/logger"
	"github.com/costplane/costplane/internal/types"
)

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:          "costplane",
		Short:        "Ingest cloud billing exports into an analytical database",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("backend", "", "destination backend (clickhouse, duckdb, postgres)")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("backend", cmd.PersistentFlags().Lookup("backend"))
	_ = v.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.AddCommand(
		newImportCmd(v),
		newListManifestsCmd(v),
		newShowStateCmd(v),
		newListExportsCmd(v),
	)
	return cmd
}

// loadConfig reads file plus environment plus bound flags into a validated
// configuration and builds the logger.
func loadConfig(v *viper.Viper) (*config.Configuration, *logger.Logger, error) {
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, nil, ierr.WithError(err).
				WithHint("failed to read config file").
				Mark(ierr.ErrConfigInvalid)
		}
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// resolveVendor reads the --vendor flag into a validated vendor.
func resolveVendor(cmd *cobra.Command) (types.Vendor, error) {
	raw, _ := cmd.Flags().GetString("vendor")
	vendor := types.Vendor(raw)
	if err := vendor.Validate(); err != nil {
		return "", err
	}
	return vendor, nil
}

// resolveRange turns flag or config date strings into billing period bounds.
// Flags win; empty strings are open bounds.
func resolveRange(cfg *config.Configuration, vendor types.Vendor, startFlag, endFlag string) (types.BillingPeriod, types.BillingPeriod, error) {
	start, end := startFlag, endFlag
	switch vendor {
	case types.VendorAWS:
		if start == "" {
			start = cfg.AWS.StartDate
		}
		if end == "" {
			end = cfg.AWS.EndDate
		}
	case types.VendorAzure:
		if start == "" {
			start = cfg.Azure.StartDate
		}
		if end == "" {
			end = cfg.Azure.EndDate
		}
	}

	var startPeriod, endPeriod types.BillingPeriod
	var err error
	if start != "" {
		if startPeriod, err = types.ParseBillingPeriod(start); err != nil {
			return startPeriod, endPeriod, err
		}
	}
	if end != "" {
		if endPeriod, err = types.ParseBillingPeriod(end); err != nil {
			return startPeriod, endPeriod, err
		}
	}
	return startPeriod, endPeriod, nil
}

// exportNameFor returns the configured export name for the vendor.
func exportNameFor(cfg *config.Configuration, vendor types.Vendor) string {
	if vendor == types.VendorAzure {
		return cfg.Azure.ExportName
	}
	return cfg.AWS.ExportName
}

func formatPeriod(p types.BillingPeriod) string {
	if p.IsZero() {
		return "-"
	}
	return p.String()
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
