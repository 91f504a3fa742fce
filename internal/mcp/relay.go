package mcp

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Relay tool names.
const (
	ToolProxyRemote = "proxy-remote-tool"
	ToolListRemote  = "list-remote-tools"
)

// Upstream is the remote tool provider a Relay forwards to.
type Upstream interface {
	ListTools(ctx context.Context) ([]*mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// RelayConfig configures a Relay.
type RelayConfig struct {
	Name    string
	Version string

	// AllowUnlisted forwards calls to tools the upstream does not list.
	AllowUnlisted bool

	// RegistryTTL is how long the cached tool list is trusted. Zero means
	// until a lookup misses.
	RegistryTTL time.Duration
}

// RemoteTool is one upstream tool as seen through the relay.
type RemoteTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ListRemoteInput is the input schema for list-remote-tools.
type ListRemoteInput struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"reload the tool list from the upstream server"`
}

// ListRemoteOutput is the output schema for list-remote-tools.
type ListRemoteOutput struct {
	Tools []RemoteTool `json:"tools"`
	Count int          `json:"count"`
}

// ProxyInput is the input schema for proxy-remote-tool.
type ProxyInput struct {
	Tool      string         `json:"tool" jsonschema:"name of the upstream tool to call"`
	Arguments map[string]any `json:"arguments,omitempty" jsonschema:"arguments passed to the upstream tool unchanged"`
}

// Relay is an MCP server that forwards tool calls to an upstream server.
// Tool names are checked against the upstream registry before forwarding.
type Relay struct {
	up     Upstream
	cfg    RelayConfig
	server *mcp.Server

	mu        sync.Mutex
	registry  map[string]RemoteTool
	fetchedAt time.Time
	now       func() time.Time
}

// NewRelay creates a relay server.
func NewRelay(up Upstream, cfg RelayConfig) (*Relay, error) {
	if up == nil {
		return nil, ErrMissingUpstream
	}
	if cfg.Name == "" {
		cfg.Name = "enrich-cli-relay"
	}
	if cfg.Version == "" {
		cfg.Version = Version
	}
	r := &Relay{
		up:     up,
		cfg:    cfg,
		server: mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		now:    time.Now,
	}
	mcp.AddTool(r.server, &mcp.Tool{
		Name:        ToolListRemote,
		Description: "List the tools available on the upstream server",
	}, r.handleList)
	mcp.AddTool(r.server, &mcp.Tool{
		Name:        ToolProxyRemote,
		Description: "Call a named tool on the upstream server with the given arguments",
	}, r.handleProxy)
	return r, nil
}

// MCP returns the underlying SDK server.
func (r *Relay) MCP() *mcp.Server { return r.server }

// Run serves over stdio.
func (r *Relay) Run(ctx context.Context) error {
	return r.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr.
func (r *Relay) RunHTTP(ctx context.Context, addr string) error {
	return serveHTTP(ctx, addr, r.server)
}

// Refresh reloads the upstream tool registry.
func (r *Relay) Refresh(ctx context.Context) ([]RemoteTool, error) {
	tools, err := r.up.ListTools(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "mcp: list upstream tools")
	}
	reg := make(map[string]RemoteTool, len(tools))
	for _, t := range tools {
		if t == nil {
			continue
		}
		reg[t.Name] = RemoteTool{Name: t.Name, Description: t.Description}
	}

	r.mu.Lock()
	r.registry = reg
	r.fetchedAt = r.now()
	r.mu.Unlock()

	zap.L().Debug("upstream registry refreshed", zap.Int("tools", len(reg)))
	return sortedTools(reg), nil
}

// Tools returns the cached registry, loading it on first use.
func (r *Relay) Tools(ctx context.Context) ([]RemoteTool, error) {
	r.mu.Lock()
	reg, stale := r.registry, r.staleLocked()
	r.mu.Unlock()
	if reg == nil || stale {
		return r.Refresh(ctx)
	}
	return sortedTools(reg), nil
}

func (r *Relay) staleLocked() bool {
	return r.cfg.RegistryTTL > 0 && r.now().Sub(r.fetchedAt) >= r.cfg.RegistryTTL
}

// lookup reports whether name is a known upstream tool, refreshing the
// registry once on a miss.
func (r *Relay) lookup(ctx context.Context, name string) (bool, error) {
	if _, err := r.Tools(ctx); err != nil {
		return false, err
	}
	r.mu.Lock()
	_, ok := r.registry[name]
	r.mu.Unlock()
	if ok {
		return true, nil
	}
	if _, err := r.Refresh(ctx); err != nil {
		return false, err
	}
	r.mu.Lock()
	_, ok = r.registry[name]
	r.mu.Unlock()
	return ok, nil
}

func (r *Relay) handleList(ctx context.Context, _ *mcp.CallToolRequest, in ListRemoteInput) (*mcp.CallToolResult, ListRemoteOutput, error) {
	var tools []RemoteTool
	var err error
	if in.Refresh {
		tools, err = r.Refresh(ctx)
	} else {
		tools, err = r.Tools(ctx)
	}
	if err != nil {
		return nil, ListRemoteOutput{}, err
	}
	return nil, ListRemoteOutput{Tools: tools, Count: len(tools)}, nil
}

func (r *Relay) handleProxy(ctx context.Context, _ *mcp.CallToolRequest, in ProxyInput) (*mcp.CallToolResult, any, error) {
	name := strings.TrimSpace(in.Tool)
	if name == "" {
		return nil, nil, eris.New("tool name is required")
	}
	known, err := r.lookup(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if !known && !r.cfg.AllowUnlisted {
		return nil, nil, eris.Wrapf(ErrUnknownTool, "%s", name)
	}

	log := zap.L().With(zap.String("remote_tool", name), zap.Bool("listed", known))
	log.Info("relaying tool call")
	res, err := r.up.CallTool(ctx, name, in.Arguments)
	if err != nil {
		log.Warn("relayed call failed", zap.Error(err))
		return nil, nil, eris.Wrapf(err, "mcp: call upstream %s", name)
	}
	return res, nil, nil
}

func sortedTools(reg map[string]RemoteTool) []RemoteTool {
	out := make([]RemoteTool, 0, len(reg))
	for _, t := range reg {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
