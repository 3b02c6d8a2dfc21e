package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reportanalyzer/internal/app"
	llmclient "reportanalyzer/internal/llm/client"
)

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured model endpoint answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, restore, err := setup()
			if err != nil {
				return err
			}
			defer restore()

			c, err := app.NewModelClient(cmd.Context(), cfg.LLM)
			if err != nil {
				return err
			}
			defer c.Close()
			p, ok := c.(llmclient.Pinger)
			if !ok {
				return fmt.Errorf("%s cannot be pinged", c.Name())
			}
			if err := p.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("%s unreachable: %w", c.Name(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ok (model %s)\n", c.Name(), c.Model())
			return nil
		},
	}
}
