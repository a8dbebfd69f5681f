// Package mcp exposes the evaluator as Model Context Protocol tools over
// stdio.
package mcp

import (
	"context"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/sitaware/internal/protocol"
)

// Tool names.
const (
	ToolEvaluate = "sitaware_evaluate"
	ToolVerdict  = "sitaware_verdict"
	ToolSession  = "sitaware_session"
)

// Server wraps the MCP SDK server around one evaluator.
type Server struct {
	mcpServer *mcpsdk.Server
	evaluator *protocol.Evaluator
	logger    *zap.Logger
}

// New creates a server with every tool registered.
func New(e *protocol.Evaluator, version string, logger *zap.Logger) (*Server, error) {
	if e == nil {
		return nil, errors.New("mcp: evaluator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{evaluator: e, logger: logger}
	s.mcpServer = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "sitaware", Version: version}, nil)
	s.registerTools()
	return s, nil
}

// Run serves on stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        ToolEvaluate,
		Description: "Judge an IoT event in the session's environment. Returns whether the triggered actions are benign, with related actions to take, or anomalous, with the reasons.",
	}, s.handleEvaluate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        ToolVerdict,
		Description: "Return only the benign/anomalous verdict for an IoT event, without follow-up.",
	}, s.handleVerdict)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        ToolSession,
		Description: "Describe the current session: ID, start time and conversation length.",
	}, s.handleSession)
}
