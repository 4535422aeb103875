package agent

import (
	"encoding/json"
	"fmt"
)

// Defaults mirrored by the environment configuration
const (
	defaultDeploymentName = "gpt-4o-mini"
	defaultAPIScope       = "https://management.azure.com/.default"
	defaultInspectorURL   = "http://localhost:7071/api/HttpCallDetailsViewer"
	defaultRedirectURL    = "http://localhost:8765/callback"

	// ModelScope is requested when the model backend is called without an API key
	ModelScope = "https://cognitiveservices.azure.com/.default"
)

// Agent persona used by the orchestrator
const (
	agentName         = "HelloAgent"
	agentInstructions = "You are a friendly assistant."

	// DefaultPrompt is sent when the agent runs without an explicit prompt
	DefaultPrompt = "Would you please do the thing?"
)

// Credential source names accepted by CREDENTIAL_SOURCE and --credential
const (
	credentialAzureCLI          = "azure-cli"
	credentialClientCredentials = "client-credentials"
	credentialBrowser           = "browser"
	credentialStatic            = "static"
	credentialDev               = "dev"
)

// URL scheme and host constants for validation.
const (
	schemeHTTPS  = "https"
	schemeHTTP   = "http"
	hostLocal    = "localhost"
	hostLoopback = "127.0.0.1"
	hostIPv6     = "::1"
)

// PrettyJSON pretty-prints JSON for logging
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
