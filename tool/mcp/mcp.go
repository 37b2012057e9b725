// Package mcp exposes tools of remote Model Context Protocol servers as
// integration tools. Connections have an explicit lifecycle: Init dials every
// configured server once and returns a Handle; Shutdown releases it.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/logging"
	"github.com/hupe1980/agentd/tool"
)

// ServerConfig describes one streamable HTTP MCP server.
type ServerConfig struct {
	Name    string            `yaml:"name" json:"name"`
	URL     string            `yaml:"url" json:"url"`
	Headers map[string]string `yaml:"headers" json:"headers,omitempty"`
}

// Options configures Init.
type Options struct {
	Logger        logging.Logger
	ClientName    string
	ClientVersion string
}

type connection struct {
	name   string
	client *mcpclient.Client
}

// Handle owns the open server connections and the tools discovered on them.
type Handle struct {
	mu     sync.Mutex
	conns  []*connection
	tools  []tool.Tool
	closed bool
	logger logging.Logger
}

// Init connects to every server, performs the MCP handshake and lists its
// tools. A server that cannot be reached is logged and skipped so one broken
// integration never takes the agent down; the error is only returned when
// ctx is done.
func Init(ctx context.Context, servers []ServerConfig, optFns ...func(o *Options)) (*Handle, error) {
	opts := Options{
		Logger:        logging.NoOpLogger{},
		ClientName:    "agentd",
		ClientVersion: "1.0",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	h := &Handle{logger: opts.Logger}

	for _, srv := range servers {
		if err := ctx.Err(); err != nil {
			_ = h.Shutdown()
			return nil, err
		}

		conn, tools, err := connect(ctx, srv, opts)
		if err != nil {
			opts.Logger.Warn("mcp.connect.error", "server", srv.Name, "error", err.Error())
			continue
		}

		h.conns = append(h.conns, conn)
		h.tools = append(h.tools, tools...)

		opts.Logger.Info("mcp.connect.ok", "server", srv.Name, "tools", len(tools))
	}

	return h, nil
}

func connect(ctx context.Context, srv ServerConfig, opts Options) (*connection, []tool.Tool, error) {
	if srv.URL == "" {
		return nil, nil, errors.New("missing url")
	}

	c, err := mcpclient.NewStreamableHttpClient(srv.URL, mcptransport.WithHTTPHeaders(srv.Headers))
	if err != nil {
		return nil, nil, fmt.Errorf("create client: %w", err)
	}

	if _, err := c.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ProtocolVersion: mcplib.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcplib.Implementation{Name: opts.ClientName, Version: opts.ClientVersion},
		},
	}); err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("initialize: %w", err)
	}

	list, err := c.ListTools(ctx, mcplib.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("list tools: %w", err)
	}

	conn := &connection{name: srv.Name, client: c}

	tools := make([]tool.Tool, 0, len(list.Tools))
	for _, t := range list.Tools {
		tools = append(tools, &remoteTool{
			conn:        conn,
			name:        t.Name,
			description: t.Description,
			parameters:  inputSchema(t),
		})
	}

	return conn, tools, nil
}

// inputSchema renders the tool's input schema as a plain map, honoring raw
// schemas as well as structured ones.
func inputSchema(t mcplib.Tool) map[string]any {
	schema := map[string]any{"type": "object", "properties": map[string]any{}}

	raw, err := json.Marshal(t)
	if err != nil {
		return schema
	}

	var decoded struct {
		InputSchema map[string]any `json:"inputSchema"`
	}

	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.InputSchema == nil {
		return schema
	}

	return decoded.InputSchema
}

// Tools returns the discovered tools. Register them with a tool.Registry;
// duplicates of built-in names are dropped there.
func (h *Handle) Tools() []tool.Tool {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]tool.Tool, len(h.tools))
	copy(out, h.tools)

	return out
}

// Servers returns the names of the connected servers.
func (h *Handle) Servers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, len(h.conns))
	for i, c := range h.conns {
		names[i] = c.name
	}

	return names
}

// Shutdown closes every connection. It is safe to call more than once.
func (h *Handle) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	h.closed = true

	var errs []error
	for _, c := range h.conns {
		if err := c.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}

	return errors.Join(errs...)
}

// remoteTool forwards calls to an MCP server.
type remoteTool struct {
	conn        *connection
	name        string
	description string
	parameters  map[string]any
}

func (t *remoteTool) Name() string               { return t.name }
func (t *remoteTool) Description() string        { return t.description }
func (t *remoteTool) Parameters() map[string]any { return t.parameters }
func (t *remoteTool) Kind() tool.Kind            { return tool.KindIntegration }

// Call invokes the remote tool and flattens its text content.
func (t *remoteTool) Call(toolCtx *core.ToolContext, args map[string]any) (string, error) {
	res, err := t.conn.client.CallTool(toolCtx.Context(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      t.name,
			Arguments: args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", t.conn.name, err)
	}

	text := contentText(res.Content)

	if res.IsError {
		if text == "" {
			text = "remote tool reported an error"
		}
		return "", &tool.ToolError{Tool: t.name, Message: text, Code: tool.CodeExecution, Details: t.conn.name}
	}

	return text, nil
}

func contentText(content []mcplib.Content) string {
	parts := make([]string, 0, len(content))

	for _, c := range content {
		switch v := c.(type) {
		case mcplib.TextContent:
			parts = append(parts, v.Text)
		case *mcplib.TextContent:
			parts = append(parts, v.Text)
		default:
			if b, err := json.Marshal(v); err == nil {
				parts = append(parts, string(b))
			}
		}
	}

	return strings.Join(parts, "\n")
}
