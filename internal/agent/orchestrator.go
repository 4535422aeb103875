package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Chat roles
const (
	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"
	roleTool      = "tool"
)

// defaultMaxSteps bounds the number of model round trips per prompt
const defaultMaxSteps = 8

// ErrTooManySteps is returned when the model keeps requesting tools
var ErrTooManySteps = errors.New("model did not produce an answer")

// ChatMessage is one entry of a chat conversation
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a function call requested by the model
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction names the function and carries its JSON arguments
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition advertises a capability to the model
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ChatClient is the model backend. It decides whether to answer or call a tool.
type ChatClient interface {
	Complete(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (ChatMessage, error)
}

// Orchestrator owns the conversation loop and dispatches tool calls to the capability set
type Orchestrator struct {
	chat         ChatClient
	capabilities *CapabilitySet
	logger       *Logger
	instructions string
	maxSteps     int

	mu      sync.Mutex
	history []ChatMessage
}

// NewOrchestrator creates an orchestrator with the default agent instructions
func NewOrchestrator(chat ChatClient, capabilities *CapabilitySet, logger *Logger) *Orchestrator {
	o := &Orchestrator{
		chat:         chat,
		capabilities: capabilities,
		logger:       orDiscard(logger),
		instructions: agentInstructions,
		maxSteps:     defaultMaxSteps,
	}
	o.Reset()
	return o
}

// Name returns the agent name
func (o *Orchestrator) Name() string {
	return agentName
}

// Reset clears the conversation, keeping the instructions
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = []ChatMessage{{Role: roleSystem, Content: o.instructions}}
}

// Run sends prompt to the model, executing requested tools until it answers.
// A failed run leaves the history as it was before the prompt.
func (o *Orchestrator) Run(ctx context.Context, prompt string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	mark := len(o.history)
	o.history = append(o.history, ChatMessage{Role: roleUser, Content: prompt})
	tools := o.toolDefinitions()

	for step := 0; step < o.maxSteps; step++ {
		o.logger.Request("chat/completions", fmt.Sprintf("%d messages", len(o.history)))

		reply, err := o.chat.Complete(ctx, o.history, tools)
		if err != nil {
			o.history = o.history[:mark]
			return "", fmt.Errorf("chat completion failed: %w", err)
		}
		if reply.Role == "" {
			reply.Role = roleAssistant
		}
		o.history = append(o.history, reply)

		if len(reply.ToolCalls) == 0 {
			o.logger.Response("chat/completions", reply.Content)
			return reply.Content, nil
		}

		for _, call := range reply.ToolCalls {
			o.history = append(o.history, ChatMessage{
				Role:       roleTool,
				ToolCallID: call.ID,
				Content:    o.invoke(ctx, call),
			})
		}
	}

	o.history = o.history[:mark]
	return "", ErrTooManySteps
}

// invoke runs one tool call. Failures are reported back to the model as text.
func (o *Orchestrator) invoke(ctx context.Context, call ToolCall) string {
	o.logger.Info("Agent is calling tool %s", call.Function.Name)

	var args map[string]interface{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			o.logger.Warning("Ignoring malformed arguments for %s: %v", call.Function.Name, err)
			args = nil
		}
	}

	result, err := o.capabilities.Invoke(ctx, call.Function.Name, args)
	if err != nil {
		o.logger.Error("Tool %s failed: %v", call.Function.Name, err)
		return fmt.Sprintf("Error: %v", err)
	}

	o.logger.Success("Tool %s returned %d bytes", call.Function.Name, len(result))
	return result
}

func (o *Orchestrator) toolDefinitions() []ToolDefinition {
	caps := o.capabilities.List()
	defs := make([]ToolDefinition, 0, len(caps))
	for _, c := range caps {
		defs = append(defs, ToolDefinition{
			Type: "function",
			Function: FunctionDefinition{
				Name:        c.Name(),
				Description: c.Description(),
				Parameters: map[string]interface{}{
					"type":       "object",
					"properties": map[string]interface{}{},
				},
			},
		})
	}
	return defs
}
