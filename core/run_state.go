package core

import (
	"context"

	"github.com/hupe1980/agentd/logging"
)

// RunState carries the mutable, per-run execution scope threaded through the
// graph controller's iterations. It aggregates:
//   - The ambient cancellation Context
//   - Identifiers (SessionID, RunID)
//   - The ordered message history (loaded checkpoint + messages of this run)
//   - The iteration guard bounding reasoning/tool cycles
//
// Messages are only ever appended. A RunState belongs to a single run and is
// not shared across goroutines; concurrent tool calls receive a ToolContext
// instead.
type RunState struct {
	Context   context.Context
	SessionID string
	RunID     string
	Messages  []Message
	Guard     *IterationGuard

	loaded int
	logger logging.Logger
}

// NewRunState constructs a RunState from the previously persisted history.
// The loaded messages are copied so the caller's slice is never mutated.
func NewRunState(
	ctx context.Context,
	sessionID, runID string,
	history []Message,
	maxIterations int,
	logger logging.Logger,
) *RunState {
	return &RunState{
		Context:   ctx,
		SessionID: sessionID,
		RunID:     runID,
		Messages:  CloneMessages(history),
		Guard:     NewIterationGuard(maxIterations),
		loaded:    len(history),
		logger:    logging.With(logger),
	}
}

// Logger returns the run scoped logger; never nil.
func (rs *RunState) Logger() logging.Logger { return rs.logger }

// Done returns a channel closed when the underlying context is cancelled.
func (rs *RunState) Done() <-chan struct{} { return rs.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rs *RunState) Err() error { return rs.Context.Err() }

// WithContext returns a shallow copy bound to ctx. Messages appended to the
// copy are not visible in rs; it is meant for read-only use by a step.
func (rs *RunState) WithContext(ctx context.Context) *RunState {
	c := *rs
	c.Context = ctx
	return &c
}

// Append adds messages to the end of the history.
func (rs *RunState) Append(msgs ...Message) {
	rs.Messages = append(rs.Messages, msgs...)
}

// Last returns the most recent message and false when the history is empty.
func (rs *RunState) Last() (Message, bool) {
	if len(rs.Messages) == 0 {
		return Message{}, false
	}
	return rs.Messages[len(rs.Messages)-1], true
}

// IterationCount returns the number of reasoning iterations performed so far.
func (rs *RunState) IterationCount() int { return rs.Guard.Count() }

// NewMessages returns the messages appended during this run.
func (rs *RunState) NewMessages() []Message {
	return CloneMessages(rs.Messages[rs.loaded:])
}

// Snapshot returns a copy of the full history safe to hand to other
// goroutines or stores.
func (rs *RunState) Snapshot() []Message { return CloneMessages(rs.Messages) }
