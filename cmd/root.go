package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/giantswarm/mcp-token-debug/internal/agent"
	"github.com/spf13/cobra"
)

var (
	version         string
	verbose         bool
	noColor         bool
	jsonRPC         bool
	repl            bool
	mcpServer       bool
	serverTransport string
	listenAddr      string
	prompt          string

	// Overrides for the environment configuration
	credentialSource string
	apiScope         string
	inspectorURL     string
	deploymentName   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcp-token-debug",
	Short: "Follow a user's bearer token through an agent tool call",
	Long: `mcp-token-debug demonstrates delegated bearer-token propagation.

It acquires an access token for the current user, hands it to an agent tool
and lets the agent decide when to call it. The tool posts to a request
inspection endpoint (see 'mcp-token-debug serve') which decodes and shows the
token it received.

The tool can be driven in three modes:
- Normal mode (default): Send a single prompt to the agent and print the answer
- REPL mode (--repl): Chat with the agent interactively
- MCP Server mode (--mcp-server): Expose the tool to an external agent runtime

Configuration is read from the environment:
  AZURE_OPENAI_ENDPOINT         Azure OpenAI resource URL (required unless --mcp-server)
  AZURE_OPENAI_DEPLOYMENT_NAME  Model deployment (default: gpt-4o-mini)
  AZURE_OPENAI_API_KEY          API key for the model (optional, uses a bearer token otherwise)
  API_SCOPE                     Scope of the token passed to the tool (default: https://management.azure.com/.default)
  INSPECTOR_URL                 Endpoint called by the tool (default: http://localhost:7071/api/HttpCallDetailsViewer)
  CREDENTIAL_SOURCE             azure-cli, client-credentials, browser, static or dev (default: azure-cli)
  ACCESS_TOKEN                  Token used by the static source
  OAUTH_CLIENT_ID, OAUTH_CLIENT_SECRET, OAUTH_TOKEN_URL, OAUTH_AUTH_URL, OAUTH_REDIRECT_URL
                                OAuth settings for the client-credentials and browser sources
  OAUTH_ISSUER_URL              Issuer used to discover OAUTH_TOKEN_URL and OAUTH_AUTH_URL when unset`,
	RunE: runAgent,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// SetVersion sets the version for the application
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&credentialSource, "credential", "", "Credential source (overrides CREDENTIAL_SOURCE)")
	rootCmd.PersistentFlags().StringVar(&apiScope, "scope", "", "Scope of the token passed to the tool (overrides API_SCOPE)")

	rootCmd.Flags().StringVar(&prompt, "prompt", agent.DefaultPrompt, "Prompt sent to the agent in normal mode")
	rootCmd.Flags().StringVar(&inspectorURL, "inspector-url", "", "Endpoint called by the tool (overrides INSPECTOR_URL)")
	rootCmd.Flags().StringVar(&deploymentName, "deployment", "", "Model deployment name (overrides AZURE_OPENAI_DEPLOYMENT_NAME)")
	rootCmd.Flags().BoolVar(&jsonRPC, "json-rpc", false, "Log full request and response payloads")
	rootCmd.Flags().BoolVar(&repl, "repl", false, "Start interactive REPL mode")
	rootCmd.Flags().BoolVar(&mcpServer, "mcp-server", false, "Run as MCP server exposing the tool")
	rootCmd.Flags().StringVar(&serverTransport, "server-transport", agent.TransportStdio, "Transport protocol for the MCP server itself (stdio, streamable-http)")
	rootCmd.Flags().StringVar(&listenAddr, "listen-addr", ":8899", "Listen address for streamable-http server (path is fixed to /mcp)")

	// Add subcommands
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())

	// Mark flags as mutually exclusive
	rootCmd.MarkFlagsMutuallyExclusive("repl", "mcp-server")
}

// setupSignalHandler sets up graceful shutdown on interrupt signals
func setupSignalHandler(cancel context.CancelFunc, quiet bool) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		if !quiet {
			fmt.Println("\nReceived interrupt signal, shutting down gracefully...")
		}
		cancel()
	}()
}

// loadConfig reads the environment and applies flag overrides
func loadConfig() (*agent.Config, error) {
	cfg := agent.ConfigFromEnv()
	if credentialSource != "" {
		cfg.CredentialSource = credentialSource
	}
	if apiScope != "" {
		cfg.APIScope = apiScope
	}
	if inspectorURL != "" {
		cfg.InspectorURL = inspectorURL
	}
	if deploymentName != "" {
		cfg.DeploymentName = deploymentName
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newCredentialSource discovers missing OAuth endpoints, then builds the configured source
func newCredentialSource(ctx context.Context, cfg *agent.Config, logger *agent.Logger) (agent.CredentialSource, error) {
	if err := cfg.ResolveEndpoints(ctx, logger); err != nil {
		return nil, fmt.Errorf("failed to resolve OAuth endpoints: %w", err)
	}
	return agent.NewCredentialSource(cfg, logger)
}

// newLogger creates the command logger. MCP over stdio keeps stdout for the protocol.
func newLogger() *agent.Logger {
	if mcpServer && serverTransport == agent.TransportStdio {
		return agent.NewLoggerWithWriter(verbose, false, jsonRPC, os.Stderr)
	}
	return agent.NewLogger(verbose, !noColor, jsonRPC)
}

// runMCPServer exposes the capabilities to an external agent runtime
func runMCPServer(ctx context.Context, capabilities *agent.CapabilitySet, logger *agent.Logger) error {
	server, err := agent.NewMCPServer(capabilities, serverTransport, version, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	logger.Info("Starting mcp-token-debug MCP server (transport: %s)...", serverTransport)
	if serverTransport == agent.TransportStreamableHTTP {
		logger.Info("Listening on %s%s", listenAddr, "/mcp")
	}

	if err := server.Start(ctx, listenAddr); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

// newChatClient connects the orchestrator to the model backend
func newChatClient(ctx context.Context, cfg *agent.Config, source agent.CredentialSource, logger *agent.Logger) (*agent.AzureOpenAIClient, error) {
	chatCfg := agent.AzureOpenAIConfig{
		Endpoint:   cfg.ModelEndpoint,
		Deployment: cfg.DeploymentName,
		APIKey:     cfg.ModelAPIKey,
		Logger:     logger,
	}
	if cfg.ModelAPIKey == "" {
		chatCfg.TokenSource = agent.NewTokenSource(ctx, source, []string{agent.ModelScope})
	}
	return agent.NewAzureOpenAIClient(chatCfg)
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	setupSignalHandler(cancel, mcpServer)

	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !mcpServer {
		if err := cfg.ValidateModel(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	source, err := newCredentialSource(ctx, cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("Acquiring token for scope %s using %s credentials...", cfg.APIScope, cfg.CredentialSource)
	token, err := agent.AcquireToken(ctx, source, []string{cfg.APIScope}, logger)
	if err != nil {
		return err
	}

	invoker := agent.NewInvoker(agent.InvokerConfig{
		URL:    cfg.InspectorURL,
		Token:  token,
		Logger: logger,
	})
	capabilities, err := agent.NewCapabilitySet(invoker)
	if err != nil {
		return err
	}

	if mcpServer {
		return runMCPServer(ctx, capabilities, logger)
	}

	chat, err := newChatClient(ctx, cfg, source, logger)
	if err != nil {
		return fmt.Errorf("failed to create chat client: %w", err)
	}
	orchestrator := agent.NewOrchestrator(chat, capabilities, logger)

	if repl {
		replHandler := agent.NewREPL(orchestrator, capabilities, token, logger)
		if err := replHandler.Run(ctx); err != nil {
			return fmt.Errorf("REPL error: %w", err)
		}
		return nil
	}

	answer, err := orchestrator.Run(ctx, prompt)
	if err != nil {
		return fmt.Errorf("agent error: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}
