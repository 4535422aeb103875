// Package agent provides the token-propagating agent implementation.
//
// A token is acquired once at startup from a CredentialSource and captured by
// the Invoker, a tool that forwards it as a bearer credential to the request
// inspection endpoint. The tool is registered in a CapabilitySet which is
// either driven by the built-in Orchestrator (a chat-completions loop against an
// Azure OpenAI deployment) or exposed to an external agent runtime by MCPServer.
//
// # Credential sources
//
//   - azure-cli: reuses the signed-in Azure CLI session (az account get-access-token)
//   - client-credentials: OAuth 2.0 client credentials grant
//   - browser: authorization code flow with PKCE and a loopback callback
//   - static: a token taken from ACCESS_TOKEN
//   - dev: a locally minted HS256 token that nothing can verify
//
// # Key Components
//
//   - Config: environment-derived configuration with defaults and validation
//   - Invoker: the authorized call, exposed as a Capability
//   - Orchestrator: conversation loop that dispatches model tool calls
//   - MCPServer: exposes the capability set over stdio or streamable-http
//   - REPL: interactive prompt for the user
//   - Logger: Formatted logging with color support
package agent
