package core

import (
	"context"

	"github.com/hupe1980/agentd/logging"
)

// ToolContext provides a constrained surface for tool implementations invoked
// by the tool execution step: the call's deadline-bound context, correlation
// identifiers and a logger. It deliberately exposes no access to the run's
// history so concurrent calls in a batch cannot observe each other.
type ToolContext struct {
	ctx        context.Context
	sessionID  string
	runID      string
	toolCallID string
	logger     logging.Logger
}

// NewToolContext constructs a tool context for the call toolCallID. ctx
// normally carries the per-call timeout.
func NewToolContext(ctx context.Context, sessionID, runID, toolCallID string, logger logging.Logger) *ToolContext {
	return &ToolContext{
		ctx:        ctx,
		sessionID:  sessionID,
		runID:      runID,
		toolCallID: toolCallID,
		logger:     logging.With(logger, "tool_call_id", toolCallID),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// SessionID returns the session ID associated with the tool invocation.
func (tc *ToolContext) SessionID() string { return tc.sessionID }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runID }

// ToolCallID returns the identifier correlating model request and result.
func (tc *ToolContext) ToolCallID() string { return tc.toolCallID }

// Logger returns the logger associated with the tool invocation.
// It carries the tool call id and is never nil.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }
