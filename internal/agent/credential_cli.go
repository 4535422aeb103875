package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const azureCLIAccount = "Azure CLI User"

// commandRunner runs an external command and returns its stdout
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}

// azureCLICredential reuses the signed-in Azure CLI session
type azureCLICredential struct {
	run commandRunner
}

func newAzureCLICredential(run commandRunner) *azureCLICredential {
	if run == nil {
		run = execRunner
	}
	return &azureCLICredential{run: run}
}

// azureCLIToken is the output of `az account get-access-token`
type azureCLIToken struct {
	AccessToken string `json:"accessToken"`
	ExpiresOn   string `json:"expiresOn"`
	ExpiresOnTS int64  `json:"expires_on"`
}

// expiresOn layout used by older CLI versions, in local time
const azureCLIExpiresLayout = "2006-01-02 15:04:05.999999"

// GetToken implements CredentialSource
func (c *azureCLICredential) GetToken(ctx context.Context, scopes []string) (AccessToken, error) {
	if len(scopes) == 0 {
		return AccessToken{}, fmt.Errorf("azure cli: at least one scope is required")
	}

	args := []string{"account", "get-access-token", "--output", "json"}
	for _, scope := range scopes {
		args = append(args, "--scope", scope)
	}

	out, err := c.run(ctx, "az", args...)
	if err != nil {
		return AccessToken{}, fmt.Errorf("azure cli: %w (run 'az login' first)", err)
	}

	var tok azureCLIToken
	if err := json.Unmarshal(out, &tok); err != nil {
		return AccessToken{}, fmt.Errorf("azure cli: failed to parse token output: %w", err)
	}
	if tok.AccessToken == "" {
		return AccessToken{}, fmt.Errorf("azure cli: no access token in output")
	}

	var expires time.Time
	switch {
	case tok.ExpiresOnTS > 0:
		expires = time.Unix(tok.ExpiresOnTS, 0)
	case tok.ExpiresOn != "":
		expires, err = time.ParseInLocation(azureCLIExpiresLayout, tok.ExpiresOn, time.Local)
		if err != nil {
			return AccessToken{}, fmt.Errorf("azure cli: invalid expiresOn %q: %w", tok.ExpiresOn, err)
		}
	}

	return AccessToken{
		Value:     tok.AccessToken,
		ExpiresOn: expires,
		Account:   accountFromToken(tok.AccessToken, azureCLIAccount),
	}, nil
}
