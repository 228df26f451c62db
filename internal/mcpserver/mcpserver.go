package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	scoringsvc "github.com/panbanda/rehabscore/internal/service/scoring"
	"github.com/panbanda/rehabscore/pkg/scoring"
)

// Server wraps the MCP server and registers the scoring tools.
type Server struct {
	server  *mcp.Server
	engine  *scoring.Engine
	service *scoringsvc.Service
}

// Option configures a Server.
type Option func(*Server)

// WithService enables score_assessment against a store-backed scoring service.
func WithService(svc *scoringsvc.Service) Option {
	return func(s *Server) {
		s.service = svc
	}
}

// NewServer creates a new MCP server with all rehabscore tools registered.
func NewServer(version string, engine *scoring.Engine, opts ...Option) *Server {
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "rehabscore",
			Version: version,
		},
		nil,
	)

	s := &Server{server: server, engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerPrompts()
	return s
}

// Run starts the MCP server over stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_scales",
		Description: describeListScales(),
	}, s.handleListScales)

	// Stateless scoring of a response set supplied inline
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "compute_scores",
		Description: describeComputeScores(),
	}, s.handleComputeScores)

	// Scores a stored instance and persists the result
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "score_assessment",
		Description: describeScoreAssessment(),
	}, s.handleScoreAssessment)
}
