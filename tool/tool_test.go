package tool

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/logging"
)

func dummyToolContext(callID string) *core.ToolContext {
	return core.NewToolContext(context.Background(), "sess-1", "run-1", callID, logging.NoOpLogger{})
}

func sumTool() *FunctionTool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	return NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	result, err := sumTool().Call(dummyToolContext("fc1"), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, "5", result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	_, err := sumTool().Call(dummyToolContext("fc2"), map[string]any{"a": 1.0})
	require.Error(t, err)

	toolErr, ok := err.(*ToolError)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.ErrorIs(t, err, core.ErrToolExecution)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	_, err := execTool.Call(dummyToolContext("fc3"), map[string]any{})
	require.Error(t, err)

	toolErr, ok := err.(*ToolError)
	require.True(t, ok)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

type renameArgs struct {
	From  string `json:"from" description:"Source path"`
	To    string `json:"to" description:"Destination path"`
	Force bool   `json:"force,omitempty"`
}

func TestNewTypedTool(t *testing.T) {
	rename := NewTypedTool("rename", "Rename a file", func(_ *core.ToolContext, in renameArgs) (any, error) {
		if in.Force {
			return in.From + " => " + in.To, nil
		}
		return in.From + " -> " + in.To, nil
	})

	params := rename.Parameters()
	assert.ElementsMatch(t, []string{"from", "to"}, params["required"])
	assert.Contains(t, params["properties"], "force")

	out, err := rename.Call(dummyToolContext("fc4"), map[string]any{"from": "a.txt", "to": "b.txt"})
	require.NoError(t, err)
	assert.Equal(t, "a.txt -> b.txt", out)

	out, err = rename.Call(dummyToolContext("fc5"), map[string]any{"from": "a", "to": "b", "force": true})
	require.NoError(t, err)
	assert.Equal(t, "a => b", out)

	_, err = rename.Call(dummyToolContext("fc6"), map[string]any{"from": "a"})
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeValidation, te.Code)
	assert.Contains(t, te.Message, "argument to")
}

func TestFunctionTool_Kind(t *testing.T) {
	assert.Equal(t, KindFunction, sumTool().Kind())
	assert.Equal(t, KindShell, sumTool().WithKind(KindShell).Kind())
}

func TestFormatResult(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "hello", "hello"},
		{"bytes", []byte("raw"), "raw"},
		{"map", map[string]any{"ok": true}, `{"ok":true}`},
		{"number", 42, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatResult(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// -------------------- ToolError --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
	assert.Equal(t, "error [E123] in demo: something failed", err.Content())
	assert.Equal(t, "error [EXECUTION_ERROR] in demo: x", (&ToolError{Tool: "demo", Message: "x"}).Content())
}

func TestToolErrorUnwrap(t *testing.T) {
	assert.ErrorIs(t, NewToolError("x", "missing", CodeNotFound), core.ErrToolNotFound)
	assert.ErrorIs(t, NewToolError("x", "slow", CodeTimeout), core.ErrToolExecution)
	assert.NotErrorIs(t, NewToolError("x", "slow", CodeTimeout), core.ErrToolNotFound)
}

func TestAsToolError(t *testing.T) {
	te := NewToolError("a", "m", CodeTimeout)
	assert.Same(t, te, AsToolError("b", te))

	wrapped := AsToolError("b", errors.New("plain"))
	assert.Equal(t, "b", wrapped.Tool)
	assert.Equal(t, CodeExecution, wrapped.Code)
}

// -------------------- Registry --------------------

func TestRegistry_FirstRegistrationWins(t *testing.T) {
	r := NewRegistry()

	first := NewFunctionTool("dup", "first", nil, func(*core.ToolContext, map[string]any) (any, error) { return "first", nil })
	second := NewFunctionTool("dup", "second", nil, func(*core.ToolContext, map[string]any) (any, error) { return "second", nil }).WithKind(KindShell)

	assert.True(t, r.Register(first))
	assert.False(t, r.Register(second))
	assert.Equal(t, 1, r.Len())

	got, ok := r.Lookup("dup")
	require.True(t, ok)
	assert.Equal(t, "first", got.Description())
	assert.Equal(t, KindFunction, got.Kind())
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.Register(nil))
	assert.False(t, r.Register(NewFunctionTool("", "no name", nil, nil)))
	assert.False(t, r.Register(NewFunctionTool("odd", "bad kind", nil, nil).WithKind(Kind("robot"))))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ListPreservesOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		r.RegisterFunc(name, name+" tool", map[string]any{"type": "object"}, func(*core.ToolContext, map[string]any) (any, error) { return nil, nil })
	}

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{list[0].Name, list[1].Name, list[2].Name})
	assert.Equal(t, "a tool", list[1].Description)
	assert.Equal(t, KindFunction, list[1].Kind)
}

func TestRegistry_HasKind(t *testing.T) {
	r := NewRegistry()
	r.Register(sumTool())
	assert.False(t, r.HasKind(KindIntegration))

	r.Register(NewFunctionTool("remote", "remote", nil, nil).WithKind(KindIntegration))
	assert.True(t, r.HasKind(KindIntegration))
}

func TestRegistry_Invoke(t *testing.T) {
	r := NewRegistry()
	r.Register(sumTool())
	tc := dummyToolContext("c1")

	out, err := r.Invoke(tc, core.ToolCall{ID: "c1", Name: "sum", Arguments: `{"a":1,"b":2}`})
	require.NoError(t, err)
	assert.Equal(t, "3", out)

	tests := []struct {
		name string
		call core.ToolCall
		code string
	}{
		{"unknown tool", core.ToolCall{Name: "nope"}, CodeNotFound},
		{"malformed json", core.ToolCall{Name: "sum", Arguments: `{"a":`}, CodeValidation},
		{"schema mismatch", core.ToolCall{Name: "sum", Arguments: `{"a":"x","b":2}`}, CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Invoke(tc, tt.call)
			var te *ToolError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.code, te.Code)
		})
	}

	_, err = r.Invoke(tc, core.ToolCall{Name: "nope"})
	assert.ErrorIs(t, err, core.ErrToolNotFound)
	assert.Contains(t, err.(*ToolError).Content(), "unknown tool")
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register(sumTool())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ReplaceKind(t *testing.T) {
	noop := func(*core.ToolContext, map[string]any) (any, error) { return nil, nil }
	integration := func(name string) Tool {
		return NewFunctionTool(name, name, map[string]any{"type": "object"}, noop).WithKind(KindIntegration)
	}

	r := NewRegistry()
	r.Register(sumTool())
	r.Register(integration("send_email"))
	r.RegisterFunc("echo", "echo", map[string]any{"type": "object"}, noop)

	accepted := r.ReplaceKind(KindIntegration, []Tool{integration("post_slack"), integration("sum")})
	assert.Equal(t, 1, accepted, "collision with a built-in is dropped")

	names := []string{}
	for _, d := range r.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"sum", "echo", "post_slack"}, names)

	_, ok := r.Lookup("send_email")
	assert.False(t, ok)

	assert.Equal(t, 0, r.ReplaceKind(KindIntegration, nil))
	assert.False(t, r.HasKind(KindIntegration))
	assert.Equal(t, 2, r.Len())
}
