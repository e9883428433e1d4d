// Package mcp exposes the guideline question-answering operations to AI
// agents over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

// Version is the MCP server version.
const Version = "1.0.0"

// ErrMissingService is returned when no QA service is provided.
var ErrMissingService = errors.New("mcp: qa service is required")

// Auditor records tool calls.
type Auditor interface {
	WriteAudit(entry domain.AuditEntry) error
}

// Server is the MCP server.
type Server struct {
	qa         port.QAService
	auditor    Auditor
	uploadRoot string
	server     *mcp.Server
}

// Option configures a Server.
type Option func(*Server)

// WithUploadRoot allows add_document to read PDFs under root. Without it
// add_document is disabled, since the MCP transports carry no
// authentication.
func WithUploadRoot(root string) Option {
	return func(s *Server) {
		s.uploadRoot = root
	}
}

// NewServer creates an MCP server around qa. auditor may be nil.
func NewServer(qa port.QAService, auditor Auditor, opts ...Option) (*Server, error) {
	if qa == nil {
		return nil, ErrMissingService
	}

	impl := &mcp.Implementation{
		Name:    "medguide-qa",
		Version: Version,
	}

	s := &Server{
		qa:      qa,
		auditor: auditor,
		server:  mcp.NewServer(impl, nil),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run serves over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is
// cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background()) //nolint:errcheck
	}()

	slog.Info("MCP server starting", "addr", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) audit(tool string, details map[string]any) {
	if s.auditor == nil {
		return
	}
	entry := domain.AuditEntry{
		Action:    domain.AuditActionMCPCall,
		Resource:  tool,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if err := s.auditor.WriteAudit(entry); err != nil {
		slog.Warn("failed to write audit entry", "tool", tool, "error", err)
	}
}
