package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// AccessToken is a bearer token acquired once per run. It is never refreshed.
type AccessToken struct {
	Value     string
	ExpiresOn time.Time
	Account   string
}

// Redacted returns a short prefix of the token suitable for logs
func (t AccessToken) Redacted() string {
	const keep = 12
	if len(t.Value) <= keep {
		return "[REDACTED]"
	}
	return t.Value[:keep] + "…"
}

// CredentialSource supplies access tokens for a set of scopes
type CredentialSource interface {
	GetToken(ctx context.Context, scopes []string) (AccessToken, error)
}

// NewCredentialSource builds the credential source selected in cfg
func NewCredentialSource(cfg *Config, logger *Logger) (CredentialSource, error) {
	switch cfg.CredentialSource {
	case credentialAzureCLI:
		return newAzureCLICredential(nil), nil
	case credentialClientCredentials:
		return newClientCredentials(cfg.ClientID, cfg.ClientSecret, cfg.TokenURL), nil
	case credentialBrowser:
		return newBrowserCredential(cfg, logger, nil), nil
	case credentialStatic:
		return newStaticCredential(cfg.StaticToken), nil
	case credentialDev:
		return newDevCredential()
	default:
		return nil, fmt.Errorf("unknown credential source %q", cfg.CredentialSource)
	}
}

// AcquireToken fetches a token once and reports who it was issued for
func AcquireToken(ctx context.Context, source CredentialSource, scopes []string, logger *Logger) (AccessToken, error) {
	logger = orDiscard(logger)

	token, err := source.GetToken(ctx, scopes)
	if err != nil {
		return AccessToken{}, fmt.Errorf("failed to acquire token: %w", err)
	}
	if token.Value == "" {
		return AccessToken{}, fmt.Errorf("failed to acquire token: credential source returned an empty token")
	}

	logger.Success("Token acquired for: %s", token.Account)
	if token.ExpiresOn.IsZero() {
		logger.Info("Expires: unknown")
	} else {
		logger.Info("Expires: %s", token.ExpiresOn.Format(time.RFC3339))
	}
	logger.Debug("Token: %s", token.Redacted())

	return token, nil
}

func fromOAuth2Token(tok *oauth2.Token, fallbackAccount string) AccessToken {
	return AccessToken{
		Value:     tok.AccessToken,
		ExpiresOn: tok.Expiry,
		Account:   accountFromToken(tok.AccessToken, fallbackAccount),
	}
}

// Claims checked, in order, when naming the account a token belongs to
var accountClaims = []string{"upn", "preferred_username", "unique_name", "email", "appid", "azp", "sub"}

// accountFromToken reads a display name from an unverified token payload.
// The value is only printed; nothing is authorized with it.
func accountFromToken(raw, fallback string) string {
	claims := unverifiedClaims(raw)
	for _, name := range accountClaims {
		if v, ok := claims[name].(string); ok && v != "" {
			return v
		}
	}
	return fallback
}

func expiryFromToken(raw string) time.Time {
	exp, err := unverifiedClaims(raw).GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func unverifiedClaims(raw string) jwt.MapClaims {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return jwt.MapClaims{}
	}
	return claims
}

// credentialTokenSource adapts a CredentialSource to oauth2.TokenSource
type credentialTokenSource struct {
	ctx    context.Context
	source CredentialSource
	scopes []string
}

// NewTokenSource returns a caching oauth2.TokenSource backed by source.
// It is used for the model backend, where tokens may be refreshed.
func NewTokenSource(ctx context.Context, source CredentialSource, scopes []string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &credentialTokenSource{ctx: ctx, source: source, scopes: scopes})
}

// Token implements oauth2.TokenSource
func (s *credentialTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.source.GetToken(s.ctx, s.scopes)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: tok.Value,
		TokenType:   "Bearer",
		Expiry:      tok.ExpiresOn,
	}, nil
}
