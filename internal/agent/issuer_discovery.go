package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

const (
	// Maximum size for issuer metadata documents (1MB)
	maxIssuerMetadataSize = 1024 * 1024

	issuerMetadataTimeout = 10 * time.Second

	userAgent = "mcp-token-debug/1.0"

	pkceMethodS256 = "S256"
)

// IssuerMetadata is the subset of RFC 8414 / OpenID Connect discovery
// metadata needed to request tokens from an issuer
type IssuerMetadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	CodeChallengeMethods  []string `json:"code_challenge_methods_supported,omitempty"`
	GrantTypesSupported   []string `json:"grant_types_supported,omitempty"`
}

// DiscoverIssuer fetches the metadata of an authorization server.
//
// For an issuer without a path the probe order is:
//  1. /.well-known/oauth-authorization-server
//  2. /.well-known/openid-configuration
//
// For an issuer such as https://login.example.com/tenant the well-known
// suffix is inserted before the path first, then appended after it
// (the form Entra ID and most OIDC providers serve).
func DiscoverIssuer(ctx context.Context, issuerURL string, httpClient *http.Client, logger *Logger) (*IssuerMetadata, error) {
	logger = orDiscard(logger)

	endpoints, err := issuerMetadataEndpoints(issuerURL)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: issuerMetadataTimeout}
	}

	var lastErr error
	for i, endpoint := range endpoints {
		logger.InfoVerbose("Trying issuer metadata endpoint (%d/%d): %s", i+1, len(endpoints), endpoint)

		metadata, err := fetchIssuerMetadata(ctx, httpClient, endpoint)
		if err == nil {
			err = metadata.validate()
		}
		if err != nil {
			logger.WarningVerbose("Issuer metadata from %s rejected: %v", endpoint, err)
			lastErr = err
			continue
		}

		logger.InfoVerbose("Discovered issuer metadata at %s", endpoint)
		return metadata, nil
	}

	return nil, fmt.Errorf("no issuer metadata found for %s (last error: %w)", issuerURL, lastErr)
}

func issuerMetadataEndpoints(issuerURL string) ([]string, error) {
	parsed, err := url.Parse(issuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer URL: %w", err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return nil, fmt.Errorf("issuer URL must be absolute: %q", issuerURL)
	}
	if err := requireSecureEndpoint("issuer URL", parsed); err != nil {
		return nil, err
	}

	base := parsed.Scheme + "://" + parsed.Host
	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return []string{
			base + "/.well-known/oauth-authorization-server",
			base + "/.well-known/openid-configuration",
		}, nil
	}
	return []string{
		base + "/.well-known/oauth-authorization-server/" + path,
		base + "/.well-known/openid-configuration/" + path,
		base + "/" + path + "/.well-known/openid-configuration",
	}, nil
}

func fetchIssuerMetadata(ctx context.Context, httpClient *http.Client, metadataURL string) (*IssuerMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(strings.ToLower(ct), "application/json") {
		return nil, fmt.Errorf("unexpected Content-Type: %s", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIssuerMetadataSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) >= maxIssuerMetadataSize {
		return nil, fmt.Errorf("response exceeds maximum size of %d bytes", maxIssuerMetadataSize)
	}

	var metadata IssuerMetadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &metadata, nil
}

func (m *IssuerMetadata) validate() error {
	if m.Issuer == "" {
		return fmt.Errorf("missing required field: issuer")
	}
	if m.TokenEndpoint == "" {
		return fmt.Errorf("missing required field: token_endpoint")
	}

	endpoints := []struct{ name, value string }{
		{"issuer", m.Issuer},
		{"token_endpoint", m.TokenEndpoint},
	}
	if m.AuthorizationEndpoint != "" {
		endpoints = append(endpoints, struct{ name, value string }{"authorization_endpoint", m.AuthorizationEndpoint})
	}

	for _, e := range endpoints {
		parsed, err := url.Parse(e.value)
		if err != nil {
			return fmt.Errorf("invalid %s URL: %w", e.name, err)
		}
		if !parsed.IsAbs() || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL: %s", e.name, e.value)
		}
		if err := requireSecureEndpoint(e.name, parsed); err != nil {
			return err
		}
	}
	return nil
}

// checkPKCE fails when the issuer advertises challenge methods without S256.
// Issuers that advertise nothing are accepted with a warning.
func (m *IssuerMetadata) checkPKCE(logger *Logger) error {
	if len(m.CodeChallengeMethods) == 0 {
		orDiscard(logger).Warning("Issuer %s does not advertise PKCE support, trying S256 anyway", m.Issuer)
		return nil
	}
	if !slices.Contains(m.CodeChallengeMethods, pkceMethodS256) {
		return fmt.Errorf("issuer does not support S256 PKCE method (only: %v)", m.CodeChallengeMethods)
	}
	return nil
}

// requireSecureEndpoint allows plain HTTP only for loopback hosts
func requireSecureEndpoint(name string, u *url.URL) error {
	switch u.Scheme {
	case schemeHTTPS:
		return nil
	case schemeHTTP:
		switch u.Hostname() {
		case hostLocal, hostLoopback, hostIPv6:
			return nil
		}
		return fmt.Errorf("%s must use https (http only allowed for localhost): %s", name, u)
	default:
		return fmt.Errorf("%s must use http or https scheme: %s", name, u)
	}
}

// ResolveEndpoints fills in missing OAuth endpoints from the issuer's metadata.
// It does nothing for credential sources that do not talk to an issuer.
func (c *Config) ResolveEndpoints(ctx context.Context, logger *Logger) error {
	switch c.CredentialSource {
	case credentialClientCredentials:
		if c.TokenURL != "" {
			return nil
		}
	case credentialBrowser:
		if c.TokenURL != "" && c.AuthURL != "" {
			return nil
		}
	default:
		return nil
	}
	if c.IssuerURL == "" {
		return fmt.Errorf("credential source %q requires endpoint URLs or %s", c.CredentialSource, envIssuerURL)
	}

	metadata, err := DiscoverIssuer(ctx, c.IssuerURL, nil, logger)
	if err != nil {
		return err
	}

	if c.TokenURL == "" {
		c.TokenURL = metadata.TokenEndpoint
	}
	if c.CredentialSource == credentialBrowser {
		if c.AuthURL == "" {
			if metadata.AuthorizationEndpoint == "" {
				return fmt.Errorf("issuer %s has no authorization endpoint", metadata.Issuer)
			}
			c.AuthURL = metadata.AuthorizationEndpoint
		}
		if err := metadata.checkPKCE(logger); err != nil {
			return err
		}
	}
	return nil
}
