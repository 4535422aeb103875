package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

const (
	invokerToolName    = "do_the_thing"
	invokerDescription = "Does the thing. The user will know."

	// invokerPayload is the fixed body of every call
	invokerPayload = `{"message": "I am here to do the thing."}`
)

// Invoker performs the authorized call on behalf of the user.
// The token is captured at construction and never re-acquired.
type Invoker struct {
	url        string
	token      AccessToken
	httpClient *http.Client
	logger     *Logger
}

// InvokerConfig holds configuration for creating a new Invoker
type InvokerConfig struct {
	URL    string
	Token  AccessToken
	Logger *Logger

	// Transport is the base transport; nil uses http.DefaultTransport
	Transport http.RoundTripper
}

// NewInvoker creates a new Invoker from a configuration
func NewInvoker(cfg InvokerConfig) *Invoker {
	logger := orDiscard(cfg.Logger)
	return &Invoker{
		url:   cfg.URL,
		token: cfg.Token,
		// No client timeout: the call relies on transport defaults.
		httpClient: &http.Client{
			Transport: newBearerRoundTripper(cfg.Token.Value, cfg.Transport, logger),
		},
		logger: logger,
	}
}

// Call issues exactly one POST to the inspector and returns the raw response body
func (i *Invoker) Call(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.url, bytes.NewReader([]byte(invokerPayload)))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	i.logger.Request("POST "+i.url, invokerPayload)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request to %s failed: %w", i.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response from %s: %w", i.url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{URL: i.url, StatusCode: resp.StatusCode, Body: string(body)}
	}

	i.logger.Response("POST "+i.url, resp.Status)
	return string(body), nil
}

// Name implements Capability
func (i *Invoker) Name() string { return invokerToolName }

// Description implements Capability
func (i *Invoker) Description() string { return invokerDescription }

// Invoke implements Capability. Arguments are ignored.
func (i *Invoker) Invoke(ctx context.Context, _ map[string]interface{}) (string, error) {
	return i.Call(ctx)
}

// StatusError is returned when the inspector answers with a non-success status
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

var _ Capability = (*Invoker)(nil)
