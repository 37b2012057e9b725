package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/tool"
)

func TestManager_Validate(t *testing.T) {
	m := NewManager(tool.NewRegistry(), func(o *ManagerOptions) {
		o.AllowedURLPrefixes = []string{"https://actions.zapier.com/mcp/"}
	})

	tests := []struct {
		name string
		srv  ServerConfig
		ok   bool
	}{
		{"allowed", ServerConfig{Name: "zapier", URL: "https://actions.zapier.com/mcp/sk-1/sse"}, true},
		{"missing name", ServerConfig{URL: "https://actions.zapier.com/mcp/x"}, false},
		{"relative url", ServerConfig{Name: "z", URL: "/mcp"}, false},
		{"ftp scheme", ServerConfig{Name: "z", URL: "ftp://actions.zapier.com/mcp/x"}, false},
		{"other host", ServerConfig{Name: "z", URL: "https://evil.example.com/mcp/"}, false},
		{"garbage", ServerConfig{Name: "z", URL: "http://[::1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Validate(tt.srv)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidServer)
		})
	}
}

func TestManager_SetSwapsIntegrationTools(t *testing.T) {
	reg := tool.NewRegistry()
	reg.RegisterFunc("echo", "Echo", map[string]any{"type": "object"},
		func(*core.ToolContext, map[string]any) (any, error) { return "echo", nil })

	m := NewManager(reg)
	t.Cleanup(func() { _ = m.Shutdown() })

	require.NoError(t, m.Apply(context.Background(), []ServerConfig{{Name: "zapier", URL: "http://127.0.0.1:1/mcp"}}))
	assert.False(t, reg.HasKind(tool.KindIntegration))
	assert.Equal(t, []ServerStatus{{Name: "zapier", URL: "http://127.0.0.1:1/mcp"}}, m.Servers())

	url := newTestServer(t)
	require.NoError(t, m.Set(context.Background(), ServerConfig{Name: "zapier", URL: url}))

	assert.Equal(t, []ServerStatus{{Name: "zapier", URL: url, Connected: true, Tools: 2}}, m.Servers())
	assert.True(t, reg.HasKind(tool.KindIntegration))
	assert.Equal(t, 3, reg.Len())

	_, ok := reg.Lookup("send_email")
	assert.True(t, ok)

	require.NoError(t, m.Shutdown())
	assert.False(t, reg.HasKind(tool.KindIntegration))
	assert.Equal(t, 1, reg.Len())
}

func TestManager_SetRejectsInvalidWithoutTouchingRegistry(t *testing.T) {
	url := newTestServer(t)
	reg := tool.NewRegistry()

	m := NewManager(reg)
	t.Cleanup(func() { _ = m.Shutdown() })
	require.NoError(t, m.Apply(context.Background(), []ServerConfig{{Name: "zapier", URL: url}}))

	err := m.Set(context.Background(), ServerConfig{Name: "zapier", URL: "notaurl"})
	assert.ErrorIs(t, err, ErrInvalidServer)
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, url, m.Servers()[0].URL)
}
