package agent

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Environment variables read by ConfigFromEnv
const (
	envModelEndpoint    = "AZURE_OPENAI_ENDPOINT"
	envDeploymentName   = "AZURE_OPENAI_DEPLOYMENT_NAME"
	envModelAPIKey      = "AZURE_OPENAI_API_KEY"
	envAPIScope         = "API_SCOPE"
	envInspectorURL     = "INSPECTOR_URL"
	envCredentialSource = "CREDENTIAL_SOURCE"
	envAccessToken      = "ACCESS_TOKEN"
	envClientID         = "OAUTH_CLIENT_ID"
	envClientSecret     = "OAUTH_CLIENT_SECRET"
	envTokenURL         = "OAUTH_TOKEN_URL"
	envAuthURL          = "OAUTH_AUTH_URL"
	envRedirectURL      = "OAUTH_REDIRECT_URL"
	envIssuerURL        = "OAUTH_ISSUER_URL"
)

// ErrMissingModelEndpoint is returned when an agent run has no model backend configured
var ErrMissingModelEndpoint = errors.New("set " + envModelEndpoint)

// Config holds everything needed to acquire a token and run the agent
type Config struct {
	// ModelEndpoint is the base URL of the Azure OpenAI resource
	ModelEndpoint string

	// DeploymentName is the model deployment (default: gpt-4o-mini)
	DeploymentName string

	// ModelAPIKey authenticates against the model backend. When empty a bearer
	// token for the cognitive services scope is acquired instead.
	ModelAPIKey string

	// APIScope is the scope of the token handed to the tool (default: https://management.azure.com/.default)
	APIScope string

	// InspectorURL is the endpoint the tool calls
	InspectorURL string

	// CredentialSource selects how tokens are acquired (default: azure-cli)
	CredentialSource string

	// StaticToken is used by the static credential source
	StaticToken string

	// OAuth client settings for the client-credentials and browser sources
	ClientID     string
	ClientSecret string
	TokenURL     string
	AuthURL      string

	// IssuerURL is used to discover TokenURL and AuthURL when they are not set
	IssuerURL string

	// RedirectURL is the loopback callback for the browser source (default: http://localhost:8765/callback)
	RedirectURL string
}

// ConfigFromEnv reads the configuration from the process environment
func ConfigFromEnv() *Config {
	return &Config{
		ModelEndpoint:    os.Getenv(envModelEndpoint),
		DeploymentName:   os.Getenv(envDeploymentName),
		ModelAPIKey:      os.Getenv(envModelAPIKey),
		APIScope:         os.Getenv(envAPIScope),
		InspectorURL:     os.Getenv(envInspectorURL),
		CredentialSource: os.Getenv(envCredentialSource),
		StaticToken:      os.Getenv(envAccessToken),
		ClientID:         os.Getenv(envClientID),
		ClientSecret:     os.Getenv(envClientSecret),
		TokenURL:         os.Getenv(envTokenURL),
		AuthURL:          os.Getenv(envAuthURL),
		RedirectURL:      os.Getenv(envRedirectURL),
		IssuerURL:        os.Getenv(envIssuerURL),
	}
}

// WithDefaults returns a copy with unset fields filled in
func (c *Config) WithDefaults() *Config {
	cfg := *c
	if cfg.DeploymentName == "" {
		cfg.DeploymentName = defaultDeploymentName
	}
	if cfg.APIScope == "" {
		cfg.APIScope = defaultAPIScope
	}
	if cfg.InspectorURL == "" {
		cfg.InspectorURL = defaultInspectorURL
	}
	if cfg.CredentialSource == "" {
		cfg.CredentialSource = credentialAzureCLI
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = defaultRedirectURL
	}
	return &cfg
}

// Validate checks the settings needed to acquire a token and call the tool
func (c *Config) Validate() error {
	if err := validateHTTPURL("inspector URL", c.InspectorURL); err != nil {
		return err
	}

	switch c.CredentialSource {
	case credentialAzureCLI, credentialDev:
	case credentialStatic:
		if c.StaticToken == "" {
			return fmt.Errorf("credential source %q requires %s", credentialStatic, envAccessToken)
		}
	case credentialClientCredentials:
		if c.ClientID == "" || c.ClientSecret == "" || (c.TokenURL == "" && c.IssuerURL == "") {
			return fmt.Errorf("credential source %q requires %s, %s and %s (or %s)",
				credentialClientCredentials, envClientID, envClientSecret, envTokenURL, envIssuerURL)
		}
	case credentialBrowser:
		if c.ClientID == "" || ((c.AuthURL == "" || c.TokenURL == "") && c.IssuerURL == "") {
			return fmt.Errorf("credential source %q requires %s, %s and %s (or %s)",
				credentialBrowser, envClientID, envAuthURL, envTokenURL, envIssuerURL)
		}
		if err := validateRedirectURL(c.RedirectURL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown credential source %q (expected one of: %s)",
			c.CredentialSource, strings.Join(CredentialSources(), ", "))
	}

	return nil
}

// ValidateModel checks the settings needed to talk to the model backend
func (c *Config) ValidateModel() error {
	if c.ModelEndpoint == "" {
		return ErrMissingModelEndpoint
	}
	if err := validateHTTPURL("model endpoint", c.ModelEndpoint); err != nil {
		return err
	}
	if c.DeploymentName == "" {
		return fmt.Errorf("deployment name is required")
	}
	return nil
}

// CredentialSources lists the supported credential source names
func CredentialSources() []string {
	return []string{credentialAzureCLI, credentialClientCredentials, credentialBrowser, credentialStatic, credentialDev}
}

func validateHTTPURL(what, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", what, err)
	}
	if parsed.Scheme != schemeHTTP && parsed.Scheme != schemeHTTPS {
		return fmt.Errorf("%s scheme must be http or https, got: %q", what, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s has no host: %q", what, raw)
	}
	return nil
}

// validateRedirectURL only allows plain HTTP for loopback callbacks
func validateRedirectURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("OAuth redirect URL is required")
	}

	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid OAuth redirect URL: %w", err)
	}

	if parsedURL.Scheme == schemeHTTP {
		// Hostname() strips brackets from IPv6 addresses, so [::1] becomes ::1
		hostname := parsedURL.Hostname()
		if hostname != hostLocal && hostname != hostLoopback && hostname != hostIPv6 {
			return fmt.Errorf("HTTP redirect URIs are only allowed for localhost/127.0.0.1/[::1], use HTTPS for other hosts")
		}
	} else if parsedURL.Scheme != schemeHTTPS {
		return fmt.Errorf("redirect URI scheme must be http (localhost only) or https, got: %s", parsedURL.Scheme)
	}

	return nil
}
