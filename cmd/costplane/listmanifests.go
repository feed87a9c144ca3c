package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/costplane/costplane/internal/orchestrator"
)

func newListManifestsCmd(v *viper.Viper) *cobra.Command {
	var startFlag, endFlag string

	cmd := &cobra.Command{
		Use:   "list-manifests",
		Short: "List discovered manifest publications without loading",
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

			refs, err := orchestrator.New(cfg, nil, log).ListManifests(cmd.Context(), orchestrator.Params{
				Vendor: vendor,
				Start:  start,
				End:    end,
			})
			if err != nil {
				return err
			}

			printf(cmd, "%-10s %-20s %s\n", "PERIOD", "LAST MODIFIED", "KEY")
			for _, ref := range refs {
				printf(cmd, "%-10s %-20s %s\n",
					formatPeriod(ref.BillingPeriod),
					ref.LastModified.UTC().Format("2006-01-02 15:04:05"),
					ref.Key)
			}
			return nil
		},
	}

	cmd.Flags().String("vendor", "", "export vendor (aws, azure)")
	cmd.Flags().StringVar(&startFlag, "start", "", "first billing period to consider (YYYY-MM)")
	cmd.Flags().StringVar(&endFlag, "end", "", "last billing period to consider (YYYY-MM)")
	_ = cmd.MarkFlagRequired("vendor")

	return cmd
}
