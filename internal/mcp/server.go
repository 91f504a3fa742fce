package mcp

import (
	"context"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/pipeline"
)

// Version is the MCP server version.
const Version = "0.1.0"

const serverInstructions = `Row enrichment tools. Call plan-enrichment to inspect the directive a field would receive for a row, and enrich-row to extract every requested field for one row in dependency order. Each cell comes back with a value, a confidence between 0 and 1, and its sources.`

// Config configures an enrichment tool server.
type Config struct {
	Name         string
	Version      string
	Orchestrator *pipeline.Orchestrator
	Context      model.ContextConfig
}

// ToolInfo names a registered tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Server is the MCP server for row enrichment.
type Server struct {
	orch   *pipeline.Orchestrator
	cfg    model.ContextConfig
	name   string
	ver    string
	server *mcp.Server
	tools  []ToolInfo
}

// NewServer creates an enrichment tool server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, ErrMissingOrchestrator
	}
	if cfg.Name == "" {
		cfg.Name = "enrich-cli"
	}
	if cfg.Version == "" {
		cfg.Version = Version
	}

	s := &Server{
		orch: cfg.Orchestrator,
		cfg:  cfg.Context,
		name: cfg.Name,
		ver:  cfg.Version,
		server: mcp.NewServer(
			&mcp.Implementation{Name: cfg.Name, Version: cfg.Version},
			&mcp.ServerOptions{Instructions: serverInstructions},
		),
	}
	s.registerTools()
	return s, nil
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server { return s.server }

// Tools lists the registered tools in registration order.
func (s *Server) Tools() []ToolInfo { return append([]ToolInfo(nil), s.tools...) }

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	return serveHTTP(ctx, addr, s.server)
}

func serveHTTP(ctx context.Context, addr string, server *mcp.Server) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	zap.L().Info("mcp server listening", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func addTool[In, Out any](s *Server, name, description string, h mcp.ToolHandlerFor[In, Out]) {
	mcp.AddTool(s.server, &mcp.Tool{Name: name, Description: description}, h)
	s.tools = append(s.tools, ToolInfo{Name: name, Description: description})
}
