package agentd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentd/config"
	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/model"
	"github.com/hupe1980/agentd/progress"
	"github.com/hupe1980/agentd/runner"
	"github.com/hupe1980/agentd/tool"
	"github.com/hupe1980/agentd/tool/mcp"
)

func echoTool() tool.Tool {
	return tool.NewFunctionTool("echo", "Echo the text back", map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
		"required":   []string{"text"},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["text"], nil
	})
}

func TestAgent_RunSync(t *testing.T) {
	m := model.NewScriptedModel("scripted").
		ReplyToolCalls(core.ToolCall{ID: "c1", Name: "echo", Arguments: `{"text":"pong"}`}).
		ReplyText("pong")

	a := New(m, func(o *Options) {
		o.Tools = []tool.Tool{echoTool()}
		o.TextGenerator = progress.StaticGenerator{Text: "1. Echoing\n2. Done"}
		o.Runner = append(o.Runner, func(o *runner.Options) { o.ProgressInterval = 0 })
	})
	defer func() { require.NoError(t, a.Close()) }()

	res, err := a.RunSync(context.Background(), "s1", "ping")
	require.NoError(t, err)
	assert.Equal(t, runner.StateDone, res.State)
	assert.Equal(t, "pong", res.Content)

	last := res.Events[len(res.Events)-1]
	assert.Equal(t, core.EventResponse, last.Type)

	msgs, err := a.Store().LoadMessages(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "pong", msgs[2].Content)
}

func TestAgent_RunHoldsSessionLock(t *testing.T) {
	release := make(chan struct{})
	m := model.NewScriptedModel("scripted").Otherwise(func(model.Request) (core.Message, error) {
		<-release
		return core.NewAssistantMessage("done"), nil
	})

	a := New(m)

	_, events, err := a.Run(context.Background(), "s1", "first")
	require.NoError(t, err)

	_, _, err = a.Run(context.Background(), "s1", "second")
	assert.ErrorIs(t, err, core.ErrSessionBusy)

	_, err = a.RunSync(context.Background(), "s1", "third")
	assert.ErrorIs(t, err, core.ErrSessionBusy)

	close(release)
	for range events {
	}

	res, err := a.RunSync(context.Background(), "s1", "fourth")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Content)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Model.APIKey = "test-key"
	cfg.Narrator.Provider = "none"
	cfg.Store = config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "agentd.db")}
	cfg.Tools.Workdir = t.TempDir()

	return cfg
}

func TestFromConfig(t *testing.T) {
	a, err := FromConfig(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	names := make([]string, 0)
	for _, d := range a.Runner().Registry().List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"read_file", "write_file", "list_directory", "delete_file", "run_shell_command", "browse_web"}, names)
	assert.False(t, a.Runner().Registry().HasKind(tool.KindIntegration))

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFromConfig_UnreachableMCPServerIsSkipped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Tools.Shell = false
	cfg.Tools.Browse = false
	cfg.MCP.Servers = []mcp.ServerConfig{{Name: "broken", URL: srv.URL}}

	a, err := FromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	assert.Equal(t, 4, a.Runner().Registry().Len())
	require.NotNil(t, a.Integrations())
	assert.Equal(t, []mcp.ServerStatus{{Name: "broken", URL: srv.URL}}, a.Integrations().Servers())

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/integrations", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"broken"`)
}

func TestNewModel(t *testing.T) {
	for _, provider := range []string{"openai", "anthropic"} {
		m, err := NewModel(config.ModelConfig{Provider: provider, Name: "some-model", APIKey: "k", MaxTokens: 10})
		require.NoError(t, err, provider)
		assert.Equal(t, "some-model", m.Info().Name)
	}

	_, err := NewModel(config.ModelConfig{Provider: "llama"})
	assert.Error(t, err)
}

func TestNewTextGenerator(t *testing.T) {
	ctx := context.Background()

	gen, err := NewTextGenerator(ctx, config.NarratorConfig{Provider: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, gen)

	_, err = NewTextGenerator(ctx, config.NarratorConfig{Provider: "openai"}, nil)
	assert.Error(t, err)

	_, err = NewTextGenerator(ctx, config.NarratorConfig{Provider: "model"}, nil)
	assert.Error(t, err)

	m := model.NewScriptedModel("narrator").ReplyText("1. Look around\n2. Report")
	gen, err = NewTextGenerator(ctx, config.NarratorConfig{Provider: "model"}, m)
	require.NoError(t, err)

	text, err := gen.GenerateText(ctx, "narrate")
	require.NoError(t, err)
	assert.Equal(t, "1. Look around\n2. Report", text)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	for _, cfg := range []config.StoreConfig{
		{Driver: "memory"},
		{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "s.db")},
	} {
		store, closeFn, err := OpenStore(ctx, cfg, nil)
		require.NoError(t, err, cfg.Driver)

		_, err = store.Create(ctx, "s1", "")
		require.NoError(t, err)
		require.NoError(t, closeFn())
	}

	_, _, err := OpenStore(ctx, config.StoreConfig{Driver: "mysql"}, nil)
	assert.Error(t, err)
}
