package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/giantswarm/mcp-token-debug/internal/agent"
	"github.com/giantswarm/mcp-token-debug/internal/inspect"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		addr         string
		endpointName string
		quiet        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the request inspection endpoint",
		Long: `Runs an anonymous HTTP endpoint that shows what a caller sent.

Every POST to /api/<endpoint-name> is answered with an HTML page listing the
request method, protocol, path, query string, headers, the bearer token and
its decoded payload. The token is decoded for display only: its signature,
expiry and issuer are never checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			setupSignalHandler(cancel, false)

			logger := agent.NewLogger(verbose, !noColor, false)

			var reportLogger inspect.Logger
			if !quiet {
				reportLogger = logger
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           inspect.NewMux(endpointName, reportLogger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			logger.Info("Inspection endpoint listening on %s (%s)", addr, inspect.Route(endpointName))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("inspection server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "listen-addr", ":7071", "Listen address for the inspection endpoint")
	cmd.Flags().StringVar(&endpointName, "endpoint-name", inspect.DefaultEndpointName, "Name of the endpoint under /api/")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Do not log rendered reports")

	return cmd
}
