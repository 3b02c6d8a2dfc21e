package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reportanalyzer/internal/app"
	"reportanalyzer/internal/seed"
)

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the default incident types, questions and templates",
		Long:  "Write the built-in seed, or the one in --file, into the configured store. Existing rows are kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, restore, err := setup()
			if err != nil {
				return err
			}
			defer restore()

			data, err := seed.Default()
			if file != "" {
				data, err = seed.Load(file)
			}
			if err != nil {
				return err
			}
			st, err := app.OpenStore(cmd.Context(), cfg.Store, log)
			if err != nil {
				return err
			}
			defer st.Close()

			sum, err := seed.Apply(cmd.Context(), st, data, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seed %s: %d created, %d already present\n", data.Version, sum.Created, sum.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Seed YAML file (default: built-in seed)")
	return cmd
}
