package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/costplane/costplane/internal/backend"
)

func newListExportsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list-exports",
		Short: "List the exports the state store knows about",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(v)
			if err != nil {
				return err
			}

			adapter, err := backend.Default.Create(cfg, log)
			if err != nil {
				return err
			}
			defer adapter.Close()

			store, err := adapter.StateStore(cmd.Context())
			if err != nil {
				return err
			}

			exports, err := store.ListExports(cmd.Context())
			if err != nil {
				return err
			}

			printf(cmd, "%-8s %s\n", "VENDOR", "EXPORT")
			for _, ref := range exports {
				printf(cmd, "%-8s %s\n", ref.Vendor, ref.ExportName)
			}
			return nil
		},
	}
}
