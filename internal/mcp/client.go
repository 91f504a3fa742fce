package mcp

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rotisserie/eris"
)

// RemoteClient is an Upstream backed by an MCP client session.
type RemoteClient struct {
	session *mcp.ClientSession
}

// NewRemoteClient wraps an established client session.
func NewRemoteClient(session *mcp.ClientSession) *RemoteClient {
	return &RemoteClient{session: session}
}

// Dial connects to an upstream server over the streamable HTTP transport.
func Dial(ctx context.Context, endpoint string, httpClient *http.Client) (*RemoteClient, error) {
	if endpoint == "" {
		return nil, eris.New("mcp: upstream endpoint is required")
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "enrich-cli-relay", Version: Version}, nil)
	transport := &mcp.StreamableClientTransport{Endpoint: endpoint, HTTPClient: httpClient}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "mcp: connect %s", endpoint)
	}
	return &RemoteClient{session: session}, nil
}

// ListTools returns every tool, following pagination cursors.
func (c *RemoteClient) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	var tools []*mcp.Tool
	params := &mcp.ListToolsParams{}
	for {
		res, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			return tools, nil
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
}

// CallTool invokes a tool on the upstream server.
func (c *RemoteClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	return c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
}

// Close ends the session.
func (c *RemoteClient) Close() error {
	return c.session.Close()
}
