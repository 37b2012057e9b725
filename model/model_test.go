package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentd/core"
)

func TestScriptedModel_ReplaysInOrder(t *testing.T) {
	m := NewScriptedModel("test").
		ReplyToolCalls(core.ToolCall{ID: "c1", Name: "shell", Arguments: `{"command":"ls"}`}).
		ReplyText("done")

	req := Request{Messages: []core.Message{core.NewHumanMessage("hi")}}

	first, err := Complete(context.Background(), m, req)
	require.NoError(t, err)
	assert.Equal(t, "tool_calls", first.FinishReason)
	require.Len(t, first.Message.ToolCalls, 1)
	assert.Equal(t, "shell", first.Message.ToolCalls[0].Name)

	second, err := Complete(context.Background(), m, req)
	require.NoError(t, err)
	assert.True(t, second.Message.IsFinalAnswer())
	assert.Equal(t, "done", second.Message.Content)

	_, err = Complete(context.Background(), m, req)
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Equal(t, 3, m.Calls())
}

func TestScriptedModel_Fail(t *testing.T) {
	boom := errors.New("boom")
	m := NewScriptedModel("test").Fail(boom)

	_, err := Complete(context.Background(), m, Request{})
	assert.ErrorIs(t, err, boom)
}

func TestScriptedModel_Otherwise(t *testing.T) {
	m := NewScriptedModel("test").Otherwise(func(req Request) (core.Message, error) {
		return core.NewAssistantMessage("echo " + req.Messages[0].Content), nil
	})

	resp, err := Complete(context.Background(), m, Request{Messages: []core.Message{core.NewHumanMessage("x")}})
	require.NoError(t, err)
	assert.Equal(t, "echo x", resp.Message.Content)
}

func TestScriptedModel_RecordsRequestsIndependently(t *testing.T) {
	m := NewScriptedModel("test").ReplyText("ok")
	msgs := []core.Message{core.NewHumanMessage("original")}

	_, err := Complete(context.Background(), m, Request{Messages: msgs})
	require.NoError(t, err)

	msgs[0].Content = "mutated"
	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "original", reqs[0].Messages[0].Content)
}

func TestComplete_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Complete(ctx, NewScriptedModel("test").ReplyText("late"), Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

type silentModel struct{}

func (silentModel) Generate(context.Context, Request) (<-chan Response, <-chan error) {
	r := make(chan Response)
	e := make(chan error)
	close(r)
	close(e)
	return r, e
}

func (silentModel) Info() Info { return Info{Name: "silent"} }

func TestComplete_NoResponse(t *testing.T) {
	_, err := Complete(context.Background(), silentModel{}, Request{})
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestAsTextGenerator(t *testing.T) {
	m := NewScriptedModel("test").ReplyText("Fix the build")

	text, err := AsTextGenerator(m).GenerateText(context.Background(), "summarize")
	require.NoError(t, err)
	assert.Equal(t, "Fix the build", text)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Tools)
	assert.Equal(t, core.RoleHuman, reqs[0].Messages[0].Role)
	assert.Equal(t, "summarize", reqs[0].Messages[0].Content)
}

func TestTextGeneratorFunc(t *testing.T) {
	var g TextGenerator = TextGeneratorFunc(func(_ context.Context, p string) (string, error) {
		return p + "!", nil
	})

	out, err := g.GenerateText(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi!", out)
}
