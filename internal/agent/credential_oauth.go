package agent

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// clientCredentials acquires app-only tokens from a token endpoint
type clientCredentials struct {
	config clientcredentials.Config
}

func newClientCredentials(clientID, clientSecret, tokenURL string) *clientCredentials {
	return &clientCredentials{
		config: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		},
	}
}

// GetToken implements CredentialSource
func (c *clientCredentials) GetToken(ctx context.Context, scopes []string) (AccessToken, error) {
	cfg := c.config
	cfg.Scopes = scopes

	tok, err := cfg.Token(ctx)
	if err != nil {
		return AccessToken{}, fmt.Errorf("client credentials: %w", err)
	}
	return fromOAuth2Token(tok, cfg.ClientID), nil
}

// browserOpener opens the authorization URL for the user
type browserOpener func(urlStr string) error

// browserCredential signs the user in with the authorization code flow and PKCE,
// receiving the code on a loopback callback server.
type browserCredential struct {
	config      oauth2.Config
	logger      *Logger
	open        browserOpener
	authTimeout time.Duration
}

func newBrowserCredential(cfg *Config, logger *Logger, open browserOpener) *browserCredential {
	if open == nil {
		open = openBrowser
	}
	return &browserCredential{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		logger:      orDiscard(logger),
		open:        open,
		authTimeout: 5 * time.Minute,
	}
}

// GetToken implements CredentialSource
func (c *browserCredential) GetToken(ctx context.Context, scopes []string) (AccessToken, error) {
	cfg := c.config
	cfg.Scopes = scopes

	parsedURL, err := url.Parse(cfg.RedirectURL)
	if err != nil {
		return AccessToken{}, fmt.Errorf("invalid redirect URI: %w", err)
	}

	listener, err := net.Listen("tcp", parsedURL.Host)
	if err != nil {
		return AccessToken{}, fmt.Errorf("failed to start callback listener: %w", err)
	}
	// A port of 0 picks a free one; the redirect must name the real port.
	// The hostname stays as configured since providers match redirect URIs exactly.
	if parsedURL.Port() == "0" {
		_, port, err := net.SplitHostPort(listener.Addr().String())
		if err != nil {
			_ = listener.Close()
			return AccessToken{}, fmt.Errorf("failed to read callback port: %w", err)
		}
		parsedURL.Host = net.JoinHostPort(parsedURL.Hostname(), port)
	}
	cfg.RedirectURL = parsedURL.String()

	state, err := generateState()
	if err != nil {
		_ = listener.Close()
		return AccessToken{}, fmt.Errorf("failed to generate state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	callbackChan := make(chan map[string]string, 1)
	errChan := make(chan error, 1)

	// Create isolated ServeMux to avoid conflicts with global http.DefaultServeMux
	mux := http.NewServeMux()
	mux.HandleFunc(parsedURL.Path, func(w http.ResponseWriter, r *http.Request) {
		// Security: Only accept GET requests (standard for OAuth callbacks)
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		params := make(map[string]string)
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}

		if params["error"] != "" {
			select {
			case errChan <- fmt.Errorf("authorization error: %s - %s", params["error"], params["error_description"]):
			default:
			}
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			return
		}

		select {
		case callbackChan <- params:
		default:
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1>✅ Authorization Successful!</h1><p>You can close this window.</p></body></html>`))
	})

	// Create server with security timeouts
	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errChan <- fmt.Errorf("callback server error: %w", err):
			default:
			}
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	c.logger.Info("Opening browser for authorization...")
	if err := c.open(authURL); err != nil {
		c.logger.Warning("Could not open browser automatically: %v", err)
		c.logger.Info("Please open this URL in your browser:")
		c.logger.Info("%s", authURL)
	}

	c.logger.Info("Waiting for authorization...")
	var params map[string]string
	select {
	case params = <-callbackChan:
	case err := <-errChan:
		return AccessToken{}, err
	case <-time.After(c.authTimeout):
		return AccessToken{}, fmt.Errorf("authorization timeout")
	case <-ctx.Done():
		return AccessToken{}, ctx.Err()
	}

	if params["state"] != state {
		return AccessToken{}, fmt.Errorf("state mismatch (CSRF protection)")
	}

	code := params["code"]
	if code == "" {
		return AccessToken{}, fmt.Errorf("no authorization code received")
	}

	c.logger.Success("Authorization code received")
	c.logger.Info("Exchanging code for access token...")

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return AccessToken{}, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	account := cfg.ClientID
	if idToken, ok := tok.Extra("id_token").(string); ok {
		account = accountFromToken(idToken, account)
	}
	return fromOAuth2Token(tok, account), nil
}

func generateState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// openBrowser opens the specified URL in the default browser
func openBrowser(urlStr string) error {
	// Security: Validate URL scheme before opening in browser
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsedURL.Scheme != schemeHTTP && parsedURL.Scheme != schemeHTTPS {
		return fmt.Errorf("invalid URL scheme for browser: %s (only http/https allowed)", parsedURL.Scheme)
	}

	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", urlStr)
	case "darwin":
		cmd = exec.Command("open", urlStr)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", urlStr)
	default:
		return fmt.Errorf("unsupported platform")
	}

	return cmd.Start()
}
