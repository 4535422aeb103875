package agent

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	staticAccount = "Static token"
	devAccount    = "dev-user"
	devIssuer     = "mcp-token-debug"
	devLifetime   = time.Hour
)

// staticCredential hands out a pre-acquired token regardless of the requested scopes
type staticCredential struct {
	token string
}

func newStaticCredential(token string) *staticCredential {
	return &staticCredential{token: strings.TrimSpace(token)}
}

// GetToken implements CredentialSource
func (c *staticCredential) GetToken(_ context.Context, _ []string) (AccessToken, error) {
	if c.token == "" {
		return AccessToken{}, fmt.Errorf("static credential: no token configured")
	}
	return AccessToken{
		Value:     c.token,
		ExpiresOn: expiryFromToken(c.token),
		Account:   accountFromToken(c.token, staticAccount),
	}, nil
}

// devCredential mints HS256 tokens with a per-process random key.
// Nothing can verify them; they exist to exercise the pipeline without an identity provider.
type devCredential struct {
	key []byte
	now func() time.Time
}

func newDevCredential() (*devCredential, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("dev credential: failed to generate signing key: %w", err)
	}
	return &devCredential{key: key, now: time.Now}, nil
}

// GetToken implements CredentialSource
func (c *devCredential) GetToken(_ context.Context, scopes []string) (AccessToken, error) {
	now := c.now()
	expires := now.Add(devLifetime)

	claims := jwt.MapClaims{
		"iss": devIssuer,
		"sub": devAccount,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": expires.Unix(),
		"scp": strings.Join(scopes, " "),
	}
	if len(scopes) > 0 {
		claims["aud"] = scopes[0]
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return AccessToken{}, fmt.Errorf("dev credential: failed to sign token: %w", err)
	}

	return AccessToken{
		Value:     signed,
		ExpiresOn: time.Unix(expires.Unix(), 0),
		Account:   devAccount,
	}, nil
}
