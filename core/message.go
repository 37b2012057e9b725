package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role identifies the producer of a Message.
type Role string

const (
	// RoleHuman marks a message written by the client.
	RoleHuman Role = "human"
	// RoleAssistant marks a message produced by the reasoning model.
	RoleAssistant Role = "assistant"
	// RoleToolResult marks the outcome of a single tool call.
	RoleToolResult Role = "tool-result"
)

// ToolCall is a structured request, emitted by the reasoning model, to invoke
// a named tool. Arguments holds the serialized JSON object exactly as the
// model produced it; it is decoded and validated only at execution time so a
// malformed payload surfaces as a tool-level error instead of a run failure.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// Args decodes Arguments into a parameter map. An empty payload yields an
// empty map.
func (tc ToolCall) Args() (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(tc.Arguments) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}
	return args, nil
}

// Message is a unit of conversation history. Messages are immutable once
// appended to a RunState or persisted.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	IsError    bool       `json:"is_error,omitempty"` // failed tool call
	Timestamp  time.Time  `json:"timestamp"`
}

// NewHumanMessage creates a client-authored text message.
func NewHumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content, Timestamp: time.Now().UTC()}
}

// NewAssistantMessage creates a reasoning-model message. A message without
// tool calls is a final answer.
func NewAssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls, Timestamp: time.Now().UTC()}
}

// NewToolResultMessage creates the result message for the tool call callID.
func NewToolResultMessage(callID, content string) Message {
	return Message{Role: RoleToolResult, Content: content, ToolCallID: callID, Timestamp: time.Now().UTC()}
}

// NewToolErrorMessage creates the result message for a failed tool call.
func NewToolErrorMessage(callID, content string) Message {
	m := NewToolResultMessage(callID, content)
	m.IsError = true
	return m
}

// HasToolCalls reports whether the message requests tool execution.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// IsFinalAnswer reports whether the message is an assistant message that
// terminates a run.
func (m Message) IsFinalAnswer() bool { return m.Role == RoleAssistant && !m.HasToolCalls() }

// Clone returns a copy whose ToolCalls slice is not shared with m.
func (m Message) Clone() Message {
	if m.ToolCalls != nil {
		calls := make([]ToolCall, len(m.ToolCalls))
		copy(calls, m.ToolCalls)
		m.ToolCalls = calls
	}
	return m
}

// CloneMessages deep copies a message slice.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// ValidateHistory checks the referential integrity of a message sequence:
// every tool-result must answer a tool call of the most recent assistant
// message, and each call is answered at most once.
func ValidateHistory(msgs []Message) error {
	var pending map[string]bool
	for i, m := range msgs {
		switch m.Role {
		case RoleHuman:
			pending = nil
		case RoleAssistant:
			pending = make(map[string]bool, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				pending[tc.ID] = true
			}
		case RoleToolResult:
			if !pending[m.ToolCallID] {
				return fmt.Errorf("message %d: tool result %q does not match a pending tool call", i, m.ToolCallID)
			}
			delete(pending, m.ToolCallID)
		default:
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	return nil
}
