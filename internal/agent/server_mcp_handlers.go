package agent

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// handleCapability adapts a capability to an MCP tool handler.
// Capability failures are tool results, not protocol errors.
func (m *MCPServer) handleCapability(c Capability) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		m.logger.Request("tools/call "+c.Name(), request.Params)

		text, err := c.Invoke(ctx, request.GetArguments())
		if err != nil {
			m.logger.Error("Tool %s failed: %v", c.Name(), err)
			return mcp.NewToolResultError(fmt.Sprintf("tool call failed: %v", err)), nil
		}

		m.logger.Response("tools/call "+c.Name(), fmt.Sprintf("%d bytes", len(text)))
		return mcp.NewToolResultText(text), nil
	}
}
