package flow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/logging"
	"github.com/hupe1980/agentd/tool"
)

// DefaultToolTimeout bounds a single tool call when no timeout is configured.
const DefaultToolTimeout = 60 * time.Second

// ExecutorConfig configures the ToolExecutor.
type ExecutorConfig struct {
	MaxParallel int           // 0 or <1 => no explicit limit (len(calls))
	Timeout     time.Duration // per call wall-clock bound; 0 => DefaultToolTimeout
}

// ToolExecutor runs the tool calls of one assistant message against a
// registry. It guarantees:
//   - exactly one tool-result message per call, in request order
//   - each result carries the originating tool call id
//   - a failing, panicking or hanging call never affects its siblings
//
// Tool-level failures are rendered into the result content; Execute itself
// never fails.
type ToolExecutor struct {
	registry *tool.Registry
	cfg      ExecutorConfig
}

// NewToolExecutor constructs an executor over registry.
func NewToolExecutor(registry *tool.Registry, cfg ExecutorConfig) *ToolExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultToolTimeout
	}

	return &ToolExecutor{registry: registry, cfg: cfg}
}

// Execute runs calls concurrently and returns their results in request order.
func (e *ToolExecutor) Execute(rs *core.RunState, calls []core.ToolCall) []core.Message {
	n := len(calls)
	if n == 0 {
		return nil
	}

	results := make([]core.Message, n)

	// Fast path: single call, execute inline.
	if n == 1 {
		results[0] = e.executeOne(rs, calls[0])
		return results
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	// A plain group: one failing call must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(maxPar)

	batchStart := time.Now()

	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.executeOne(rs, call)
			return nil
		})
	}

	_ = g.Wait()

	rs.Logger().Debug("tool.batch.completed", "calls", n, "parallel", maxPar, "duration_ms", time.Since(batchStart).Milliseconds())

	return results
}

type callOutcome struct {
	out string
	err error
}

// executeOne runs a single call under its own deadline and converts every
// failure into tool-result content.
func (e *ToolExecutor) executeOne(rs *core.RunState, call core.ToolCall) core.Message {
	logger := rs.Logger()
	logger.Debug("tool.call.start", "tool", call.Name, "tool_call_id", call.ID)

	if err := rs.Err(); err != nil {
		te := tool.NewToolError(call.Name, fmt.Sprintf("cancelled before start: %v", err), tool.CodeExecution)
		return core.NewToolErrorMessage(call.ID, te.Content())
	}

	ctx, cancel := context.WithTimeout(rs.Context, e.cfg.Timeout)
	defer cancel()

	toolCtx := core.NewToolContext(ctx, rs.SessionID, rs.RunID, call.ID, logger)

	// Buffered so a tool that ignores its context can finish after we gave up.
	done := make(chan callOutcome, 1)
	start := time.Now()

	go func() {
		var o callOutcome
		defer func() {
			if r := recover(); r != nil {
				pe := panicError(r)
				logger.Error("tool.call.panic", "tool", call.Name, "tool_call_id", call.ID, "panic", fmt.Sprint(r), "stack", string(pe.stack))
				o = callOutcome{err: &tool.ToolError{Tool: call.Name, Message: pe.Error(), Code: tool.CodePanic}}
			}
			done <- o
		}()

		o.out, o.err = e.registry.Invoke(toolCtx, call)
	}()

	var o callOutcome
	select {
	case o = <-done:
	case <-ctx.Done():
		o = callOutcome{err: contextToolError(call.Name, ctx, e.cfg.Timeout)}
	}

	duration := time.Since(start)

	if o.err != nil {
		te := tool.AsToolError(call.Name, o.err)
		// A tool that returned ctx.Err() itself still reports a timeout.
		if errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() != nil && rs.Err() == nil {
			te = contextToolError(call.Name, ctx, e.cfg.Timeout)
		}

		logToolCall(logger, call, duration, te)

		return core.NewToolErrorMessage(call.ID, te.Content())
	}

	logToolCall(logger, call, duration, nil)

	return core.NewToolResultMessage(call.ID, o.out)
}

// contextToolError describes why ctx ended: its own deadline (TIMEOUT) or a
// cancelled run.
func contextToolError(name string, ctx context.Context, timeout time.Duration) *tool.ToolError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return tool.NewToolError(name, fmt.Sprintf("timed out after %s", timeout), tool.CodeTimeout)
	}
	return tool.NewToolError(name, fmt.Sprintf("cancelled: %v", ctx.Err()), tool.CodeExecution)
}

func logToolCall(logger logging.Logger, call core.ToolCall, d time.Duration, err error) {
	if sl, ok := logger.(*logging.StructuredLogger); ok {
		sl.WithContext("tool_call_id", call.ID).LogToolCall(call.Name, d, err == nil, err)
		return
	}

	if err != nil {
		logger.Warn("tool.call.failed", "tool", call.Name, "tool_call_id", call.ID, "duration_ms", d.Milliseconds(), "error", err.Error())
		return
	}

	logger.Debug("tool.call.completed", "tool", call.Name, "tool_call_id", call.ID, "duration_ms", d.Milliseconds())
}

// panicError converts a recovered panic value to an error carrying the stack.
func panicError(r any) *panicErr { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }
