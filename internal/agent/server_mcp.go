package agent

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server transports supported by MCPServer
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"

	mcpEndpointPath = "/mcp"
)

// MCPServer exposes a capability set as MCP tools so an external agent
// runtime can decide when to call them
type MCPServer struct {
	capabilities    *CapabilitySet
	logger          *Logger
	mcpServer       *server.MCPServer
	serverTransport string
}

// NewMCPServer creates a new MCP server for the given capabilities
func NewMCPServer(capabilities *CapabilitySet, serverTransport, version string, logger *Logger) (*MCPServer, error) {
	switch serverTransport {
	case TransportStdio, TransportStreamableHTTP:
	default:
		return nil, fmt.Errorf("unsupported server transport: %s", serverTransport)
	}

	mcpServer := server.NewMCPServer(
		"mcp-token-debug",
		version,
		server.WithToolCapabilities(false),
	)

	ms := &MCPServer{
		capabilities:    capabilities,
		logger:          orDiscard(logger),
		mcpServer:       mcpServer,
		serverTransport: serverTransport,
	}

	ms.registerTools()

	return ms, nil
}

// Start serves MCP over stdio or streamable-http. It blocks until the transport stops.
func (m *MCPServer) Start(ctx context.Context, listenAddr string) error {
	switch m.serverTransport {
	case TransportStdio:
		return server.ServeStdio(m.mcpServer)
	case TransportStreamableHTTP:
		httpServer := server.NewStreamableHTTPServer(
			m.mcpServer,
			server.WithEndpointPath(mcpEndpointPath),
		)
		go func() {
			<-ctx.Done()
			_ = httpServer.Shutdown(context.Background())
		}()
		return httpServer.Start(listenAddr)
	default:
		return fmt.Errorf("unsupported server transport: %s", m.serverTransport)
	}
}

// registerTools registers one MCP tool per capability
func (m *MCPServer) registerTools() {
	for _, c := range m.capabilities.List() {
		tool := mcp.NewTool(c.Name(),
			mcp.WithDescription(c.Description()),
		)
		m.mcpServer.AddTool(tool, m.handleCapability(c))
	}
}
