package testutil

import (
	"fmt"

	"github.com/hupe1980/agentd/core"
)

// HistoryBuilder provides a fluent helper for constructing message histories
// with consistent tool-call ids.
// Example:
//
//	msgs := NewHistoryBuilder().Human("list files").Calls("list_directory").Results("a.txt").Answer("a.txt").Build()
type HistoryBuilder struct {
	msgs    []core.Message
	pending []string
	seq     int
}

// NewHistoryBuilder creates an empty builder.
func NewHistoryBuilder() *HistoryBuilder { return &HistoryBuilder{} }

// Human appends a human message (chainable).
func (b *HistoryBuilder) Human(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.NewHumanMessage(text))
	return b
}

// Answer appends a final assistant message (chainable).
func (b *HistoryBuilder) Answer(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.NewAssistantMessage(text))
	return b
}

// Calls appends an assistant message requesting the named tools with empty
// arguments. Ids are generated as call-1, call-2, ... (chainable).
func (b *HistoryBuilder) Calls(names ...string) *HistoryBuilder {
	calls := make([]core.ToolCall, len(names))
	b.pending = b.pending[:0]

	for i, name := range names {
		b.seq++
		id := fmt.Sprintf("call-%d", b.seq)
		calls[i] = core.ToolCall{ID: id, Name: name, Arguments: "{}"}
		b.pending = append(b.pending, id)
	}

	b.msgs = append(b.msgs, core.NewAssistantMessage("", calls...))

	return b
}

// Results appends one tool-result per pending call, in call order. Missing
// contents default to "ok" (chainable).
func (b *HistoryBuilder) Results(contents ...string) *HistoryBuilder {
	for i, id := range b.pending {
		content := "ok"
		if i < len(contents) {
			content = contents[i]
		}
		b.msgs = append(b.msgs, core.NewToolResultMessage(id, content))
	}

	b.pending = b.pending[:0]

	return b
}

// Failed marks the most recent tool result as a failed call (chainable).
func (b *HistoryBuilder) Failed() *HistoryBuilder {
	if n := len(b.msgs); n > 0 && b.msgs[n-1].Role == core.RoleToolResult {
		b.msgs[n-1].IsError = true
	}
	return b
}

// Build returns a copy of the accumulated messages.
func (b *HistoryBuilder) Build() []core.Message { return core.CloneMessages(b.msgs) }
