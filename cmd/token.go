package cmd

import (
	"context"
	"fmt"

	"github.com/giantswarm/mcp-token-debug/internal/agent"
	"github.com/giantswarm/mcp-token-debug/internal/inspect"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Acquire a token and show its decoded payload",
		Long: `Acquires a token the same way the agent does and prints its payload.

Useful to check which claims the inspection endpoint is going to receive
before involving the agent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			setupSignalHandler(cancel, false)

			logger := agent.NewLogger(verbose, !noColor, false)

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			source, err := newCredentialSource(ctx, cfg, logger)
			if err != nil {
				return err
			}

			token, err := agent.AcquireToken(ctx, source, []string{cfg.APIScope}, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprintln(out, token.Value)
				return nil
			}

			claims, err := inspect.Decode(token.Value)
			if err != nil {
				// Opaque tokens are fine; there is just nothing to show.
				fmt.Fprintf(out, "Decoded: %v\n", err)
				return nil
			}
			fmt.Fprintln(out, claims)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the raw token instead of its payload")

	return cmd
}
