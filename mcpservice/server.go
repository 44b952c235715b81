package mcpservice

import (
	"context"
	"slices"

	"github.com/ggoodman/cms-mcp-server/mcp"
)

// supportedProtocolVersions lists the revisions the server can answer, newest
// first.
var supportedProtocolVersions = []string{mcp.LatestProtocolVersion, "2025-03-26", "2024-11-05"}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerInfo sets the implementation info returned from initialize.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *Server) { s.info = info }
}

// WithInstructions sets the instructions returned from initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *Server) { s.instructions = instr }
}

// Server answers the initialize handshake and owns the tools capability.
type Server struct {
	info         mcp.ImplementationInfo
	instructions string
	tools        ToolsCapability
}

// NewServer builds a Server around tools.
func NewServer(tools ToolsCapability, opts ...ServerOption) *Server {
	s := &Server{
		info:  mcp.ImplementationInfo{Name: "cms-mcp-server", Version: "dev"},
		tools: tools,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tools returns the tools capability.
func (s *Server) Tools() ToolsCapability { return s.tools }

// Initialize answers an initialize request. A protocol version the server
// supports is echoed; anything else is answered with the latest version.
func (s *Server) Initialize(_ context.Context, req *mcp.InitializeRequest) *mcp.InitializeResult {
	version := mcp.LatestProtocolVersion
	if req != nil && slices.Contains(supportedProtocolVersions, req.ProtocolVersion) {
		version = req.ProtocolVersion
	}
	return &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities: mcp.ServerCapabilities{
			Tools: &mcp.ToolsCapability{ListChanged: true},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	}
}
