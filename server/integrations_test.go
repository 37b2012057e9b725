package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/tool"
	"github.com/hupe1980/agentd/tool/mcp"
)

func newIntegrationServer(t *testing.T) string {
	t.Helper()

	s := mcpserver.NewMCPServer("test-integrations", "0.1.0", mcpserver.WithToolCapabilities(true))
	s.AddTool(
		mcplib.NewTool("send_email",
			mcplib.WithDescription("Send an email"),
			mcplib.WithString("to", mcplib.Required()),
		),
		func(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			return mcplib.NewToolResultText("sent to " + req.GetString("to", "")), nil
		},
	)

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv.URL + "/mcp"
}

type integrationsResponse struct {
	Servers []mcp.ServerStatus `json:"servers"`
}

func TestIntegrations_Disabled(t *testing.T) {
	f := newFixture(t)

	list := decode[integrationsResponse](t, f.do(t, http.MethodGet, "/api/integrations", ""))
	assert.Empty(t, list.Servers)

	rec := f.do(t, http.MethodPut, "/api/integrations", `{"name":"zapier","url":"https://example.com/mcp"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestIntegrations_SetReconnectsAndSwapsTools(t *testing.T) {
	f := newFixture(t)

	mgr := mcp.NewManager(f.registry)
	t.Cleanup(func() { _ = mgr.Shutdown() })
	f.server = New(f.server.runner, f.store, func(o *Options) {
		o.Locker = f.locker
		o.Integrations = mgr
	})

	rec := f.do(t, http.MethodPut, "/api/integrations", `{"name":"zapier","url":"ftp://example.com/mcp"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "http or https")

	rec = f.do(t, http.MethodPut, "/api/integrations", `{"name":"","url":"https://example.com/mcp"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/integrations", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	url := newIntegrationServer(t)
	rec = f.do(t, http.MethodPut, "/api/integrations", `{"name":"zapier","url":"`+url+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decode[integrationsResponse](t, rec)
	assert.Equal(t, []mcp.ServerStatus{{Name: "zapier", URL: url, Connected: true, Tools: 1}}, updated.Servers)

	list := decode[integrationsResponse](t, f.do(t, http.MethodGet, "/api/integrations", ""))
	assert.Equal(t, updated.Servers, list.Servers)

	tools := decode[struct {
		Tools []tool.Descriptor `json:"tools"`
	}](t, f.do(t, http.MethodGet, "/api/tools", ""))
	require.Len(t, tools.Tools, 2)
	assert.Equal(t, "send_email", tools.Tools[1].Name)
	assert.Equal(t, tool.KindIntegration, tools.Tools[1].Kind)

	// A run picks up the new tool without a restart.
	f.model.ReplyToolCalls(core.ToolCall{ID: "c1", Name: "send_email", Arguments: `{"to":"ops@example.com"}`}).
		ReplyText("mail sent")

	rec = f.do(t, http.MethodPost, "/api/chat", `{"session_id":"s1","message":"email ops"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	msgs, err := f.store.LoadMessages(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "sent to ops@example.com", msgs[2].Content)
	assert.False(t, msgs[2].IsError)

	// Replacing the server drops the old tools.
	rec = f.do(t, http.MethodPut, "/api/integrations", `{"name":"zapier","url":"http://127.0.0.1:1/mcp"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.registry.HasKind(tool.KindIntegration))
	assert.Equal(t, 1, f.registry.Len())
}
