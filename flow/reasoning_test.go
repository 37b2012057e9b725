package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/model"
	"github.com/hupe1980/agentd/tool"
)

func newReasoningFixture(t *testing.T) (*model.ScriptedModel, *tool.Registry, *core.RunState) {
	t.Helper()

	reg := tool.NewRegistry()
	reg.RegisterFunc("run_shell_command", "Run a command", map[string]any{
		"type":       "object",
		"properties": map[string]any{"command": map[string]any{"type": "string"}},
		"required":   []string{"command"},
	}, func(_ *core.ToolContext, _ map[string]any) (any, error) { return "", nil })

	rs := core.NewRunState(context.Background(), "s1", "r1", []core.Message{core.NewHumanMessage("create file X")}, 0, nil)

	return model.NewScriptedModel("scripted"), reg, rs
}

func TestReasoningStep_FinalAnswer(t *testing.T) {
	m, reg, rs := newReasoningFixture(t)
	m.ReplyText("File X created.")

	step := NewReasoningStep(m, reg, func(o *ReasoningOptions) { o.Workdir = "/tmp/ws" })

	msg, err := step.Next(rs)
	require.NoError(t, err)

	assert.True(t, msg.IsFinalAnswer())
	assert.Equal(t, "File X created.", msg.Content)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instructions, "/tmp/ws")
	assert.Contains(t, reqs[0].Instructions, "run_shell_command")
	assert.Contains(t, reqs[0].Instructions, "confirm before any destructive")
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "function", reqs[0].Tools[0].Type)
	assert.Equal(t, "run_shell_command", reqs[0].Tools[0].Function.Name)
	assert.Len(t, reqs[0].Messages, 1)
}

func TestReasoningStep_AssignsMissingAndDuplicateIDs(t *testing.T) {
	m, reg, rs := newReasoningFixture(t)
	m.ReplyToolCalls(
		core.ToolCall{Name: "run_shell_command", Arguments: `{"command":"touch X"}`},
		core.ToolCall{ID: "dup", Name: "run_shell_command"},
		core.ToolCall{ID: "dup", Name: "run_shell_command"},
	)

	msg, err := NewReasoningStep(m, reg).Next(rs)
	require.NoError(t, err)

	require.Len(t, msg.ToolCalls, 3)
	assert.NotEmpty(t, msg.ToolCalls[0].ID)
	assert.Equal(t, "dup", msg.ToolCalls[1].ID)
	assert.NotEqual(t, "dup", msg.ToolCalls[2].ID)
	assert.Equal(t, core.RoleAssistant, msg.Role)
}

func TestReasoningStep_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *model.ScriptedModel)
	}{
		{"model error", func(m *model.ScriptedModel) { m.Fail(errors.New("503 upstream")) }},
		{"empty reply", func(m *model.ScriptedModel) { m.ReplyText("  ") }},
		{"nameless call", func(m *model.ScriptedModel) { m.ReplyToolCalls(core.ToolCall{ID: "1"}) }},
		{"exhausted", func(*model.ScriptedModel) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, reg, rs := newReasoningFixture(t)
			tt.setup(m)

			_, err := NewReasoningStep(m, reg).Next(rs)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrReasoningUnavailable)
		})
	}
}

func TestReasoningStep_BadTemplate(t *testing.T) {
	m, reg, rs := newReasoningFixture(t)
	m.ReplyText("unused")

	_, err := NewReasoningStep(m, reg, func(o *ReasoningOptions) { o.Instructions = "{{.broken" }).Next(rs)
	assert.ErrorIs(t, err, core.ErrReasoningUnavailable)
	assert.Equal(t, 0, m.Calls())
}

func TestCatalog(t *testing.T) {
	assert.Nil(t, Catalog(nil))

	_, reg, _ := newReasoningFixture(t)
	defs := Catalog(reg)
	require.Len(t, defs, 1)
	assert.Equal(t, "Run a command", defs[0].Function.Description)
	assert.Equal(t, "object", defs[0].Function.Parameters["type"])
}
