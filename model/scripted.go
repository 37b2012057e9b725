package model

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/agentd/core"
)

// ErrScriptExhausted is returned by ScriptedModel once all queued replies are
// consumed and no fallback is configured.
var ErrScriptExhausted = errors.New("scripted model: no replies left")

type scriptedReply struct {
	msg core.Message
	err error
}

// ScriptedModel is a deterministic in-memory Model for tests and examples.
// It replays queued assistant messages or errors in order and records every
// request it receives.
type ScriptedModel struct {
	info     Info
	mu       sync.Mutex
	replies  []scriptedReply
	requests []Request
	fallback func(req Request) (core.Message, error)
}

// NewScriptedModel constructs an empty ScriptedModel with tool support enabled.
func NewScriptedModel(name string) *ScriptedModel {
	return &ScriptedModel{info: Info{Name: name, Provider: "scripted", SupportsTools: true}}
}

// Reply queues an assistant message.
func (m *ScriptedModel) Reply(msg core.Message) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg.Role = core.RoleAssistant
	m.replies = append(m.replies, scriptedReply{msg: msg})

	return m
}

// ReplyText queues a final answer.
func (m *ScriptedModel) ReplyText(content string) *ScriptedModel {
	return m.Reply(core.NewAssistantMessage(content))
}

// ReplyToolCalls queues an assistant message requesting the given calls.
func (m *ScriptedModel) ReplyToolCalls(calls ...core.ToolCall) *ScriptedModel {
	return m.Reply(core.NewAssistantMessage("", calls...))
}

// Fail queues an error.
func (m *ScriptedModel) Fail(err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.replies = append(m.replies, scriptedReply{err: err})

	return m
}

// Otherwise sets the function answering requests once the queue is empty.
func (m *ScriptedModel) Otherwise(fn func(req Request) (core.Message, error)) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fallback = fn

	return m
}

// Requests returns a copy of the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)

	return out
}

// Calls returns how many times Generate was invoked.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}

func (m *ScriptedModel) next(req Request) (core.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req.Messages = core.CloneMessages(req.Messages)
	m.requests = append(m.requests, req)

	if len(m.replies) > 0 {
		r := m.replies[0]
		m.replies = m.replies[1:]
		return r.msg.Clone(), r.err
	}

	if m.fallback != nil {
		return m.fallback(req)
	}

	return core.Message{}, ErrScriptExhausted
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}

		msg, err := m.next(req)
		if err != nil {
			errCh <- err
			return
		}

		finish := "stop"
		if msg.HasToolCalls() {
			finish = "tool_calls"
		}

		respCh <- Response{Message: msg, FinishReason: finish}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }
