package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

const (
	defaultAzureAPIVersion = "2024-10-21"

	// Maximum size of a chat completion response (4MB)
	maxChatResponseSize = 4 * 1024 * 1024
)

// AzureOpenAIConfig holds configuration for an Azure OpenAI chat client
type AzureOpenAIConfig struct {
	Endpoint   string
	Deployment string
	APIVersion string

	// APIKey is sent in the api-key header when set
	APIKey string

	// TokenSource authorizes requests with a bearer token when no API key is set
	TokenSource oauth2.TokenSource

	Logger *Logger
}

// AzureOpenAIClient calls the chat completions API of an Azure OpenAI deployment
type AzureOpenAIClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
	logger     *Logger
}

// NewAzureOpenAIClient creates a chat client for one deployment
func NewAzureOpenAIClient(cfg AzureOpenAIConfig) (*AzureOpenAIClient, error) {
	if cfg.Endpoint == "" {
		return nil, ErrMissingModelEndpoint
	}
	if cfg.Deployment == "" {
		return nil, fmt.Errorf("deployment name is required")
	}
	if cfg.APIKey == "" && cfg.TokenSource == nil {
		return nil, fmt.Errorf("either an API key or a token source is required")
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAzureAPIVersion
	}

	httpClient := &http.Client{}
	if cfg.APIKey == "" {
		httpClient.Transport = &oauth2.Transport{Source: cfg.TokenSource}
	}

	return &AzureOpenAIClient{
		url: fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			strings.TrimRight(cfg.Endpoint, "/"), url.PathEscape(cfg.Deployment), url.QueryEscape(apiVersion)),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     orDiscard(cfg.Logger),
	}, nil
}

type chatCompletionRequest struct {
	Messages   []ChatMessage    `json:"messages"`
	Tools      []ToolDefinition `json:"tools,omitempty"`
	ToolChoice string           `json:"tool_choice,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements ChatClient
func (c *AzureOpenAIClient) Complete(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (ChatMessage, error) {
	body := chatCompletionRequest{Messages: messages, Tools: tools}
	if len(tools) > 0 {
		body.ToolChoice = "auto"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return ChatMessage{}, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxChatResponseSize))
	if err != nil {
		return ChatMessage{}, fmt.Errorf("failed to read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp chatErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error.Message != "" {
			return ChatMessage{}, fmt.Errorf("chat request failed (HTTP %d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return ChatMessage{}, fmt.Errorf("chat request failed (HTTP %d)", resp.StatusCode)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return ChatMessage{}, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return ChatMessage{}, fmt.Errorf("chat response has no choices")
	}

	choice := parsed.Choices[0]
	c.logger.Debug("Chat finish reason: %s", choice.FinishReason)
	return choice.Message, nil
}

var _ ChatClient = (*AzureOpenAIClient)(nil)
