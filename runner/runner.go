package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/flow"
	"github.com/hupe1980/agentd/logging"
	"github.com/hupe1980/agentd/model"
	"github.com/hupe1980/agentd/progress"
	"github.com/hupe1980/agentd/session"
	"github.com/hupe1980/agentd/tool"
)

// State is a node of the graph controller's state machine.
type State string

const (
	StateReasoning      State = "REASONING"
	StateExecutingTools State = "EXECUTING_TOOLS"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

// IsTerminal reports whether the graph stops in s.
func (s State) IsTerminal() bool { return s == StateDone || s == StateFailed }

const tracerName = "github.com/hupe1980/agentd/runner"

// persistTimeout bounds checkpoint writes, which outlive run cancellation.
const persistTimeout = 10 * time.Second

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxIterations bounds reasoning steps per run; 0 means unlimited.
	MaxIterations int
	// ToolTimeout bounds every single tool call.
	ToolTimeout time.Duration
	// MaxParallelTools limits concurrent calls of one batch; 0 means no limit.
	MaxParallelTools int
	// ProgressSteps is the base narration length (biased up for integrations).
	ProgressSteps int
	// ProgressInterval paces narrated progress events.
	ProgressInterval time.Duration
	// NarrationTimeout bounds the narration request.
	NarrationTimeout time.Duration
	// NarrationGrace is how long a finished run waits for narration that
	// has not arrived yet before it is dropped.
	NarrationGrace time.Duration
	// EventBufferSize sets channel buffering for events.
	EventBufferSize int
	// Instructions overrides the reasoning system instruction.
	Instructions string
	// Workdir is announced to the reasoning model.
	Workdir string
	// SessionStore persists checkpoints.
	SessionStore core.SessionStore
	// Narrator produces progress events; nil disables narration.
	Narrator *progress.Narrator
	// OnTransition observes every state change of every run.
	OnTransition func(runID string, from, to State)
	// Logging services.
	Logger logging.Logger
	// Tracer records run, reasoning and tool batch spans.
	Tracer trace.Tracer
}

// Runner is the graph controller. It drives the alternation between the
// reasoning step and the tool execution step, persists checkpoints and
// streams progress plus exactly one terminal event per run. Public methods
// are safe for concurrent use; serializing runs of the same session is the
// caller's job (see session.Locker).
type Runner struct {
	registry  *tool.Registry
	reasoning *flow.ReasoningStep
	executor  *flow.ToolExecutor
	opts      Options

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// New constructs a Runner over the reasoning model m and the tools of
// registry.
func New(m model.Model, registry *tool.Registry, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxIterations:    25,
		ToolTimeout:      flow.DefaultToolTimeout,
		ProgressSteps:    progress.DefaultSteps,
		ProgressInterval: time.Second,
		NarrationTimeout: 15 * time.Second,
		NarrationGrace:   250 * time.Millisecond,
		EventBufferSize:  100,
		SessionStore:     session.NewInMemoryStore(),
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if registry == nil {
		registry = tool.NewRegistry(func(o *tool.RegistryOptions) { o.Logger = opts.Logger })
	}

	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	return &Runner{
		registry: registry,
		reasoning: flow.NewReasoningStep(m, registry, func(o *flow.ReasoningOptions) {
			if opts.Instructions != "" {
				o.Instructions = opts.Instructions
			}
			o.Workdir = opts.Workdir
			o.Logger = opts.Logger
		}),
		executor: flow.NewToolExecutor(registry, flow.ExecutorConfig{
			MaxParallel: opts.MaxParallelTools,
			Timeout:     opts.ToolTimeout,
		}),
		opts:       opts,
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Registry returns the tool registry the runner executes against.
func (r *Runner) Registry() *tool.Registry { return r.registry }

// SessionStore returns the checkpoint store.
func (r *Runner) SessionStore() core.SessionStore { return r.opts.SessionStore }

// Result summarizes a finished run.
type Result struct {
	RunID      string
	SessionID  string
	State      State
	Content    string
	Iterations int
	Events     []core.Event
}

// run is the per-invocation bookkeeping shared by Run and RunSync.
type run struct {
	id        string
	sessionID string
	events    chan core.Event
	done      chan struct{}

	state      State
	content    string
	err        error
	iterations int
}

// Run starts an asynchronous run of text in sessionID (a new id is generated
// when empty). The returned channel carries progress events followed by
// exactly one terminal event and is closed afterwards. An error is returned
// only when the run could not be started.
func (r *Runner) Run(ctx context.Context, sessionID, text string) (string, <-chan core.Event, error) {
	rn, err := r.start(ctx, sessionID, text)
	if err != nil {
		return "", nil, err
	}

	return rn.id, rn.events, nil
}

// RunSync runs text to completion and collects its events. The returned
// error is the run-level failure, if any; Result is non-nil whenever the run
// started.
func (r *Runner) RunSync(ctx context.Context, sessionID, text string) (*Result, error) {
	rn, err := r.start(ctx, sessionID, text)
	if err != nil {
		return nil, err
	}

	var events []core.Event
	for ev := range rn.events {
		events = append(events, ev)
	}

	<-rn.done

	return &Result{
		RunID:      rn.id,
		SessionID:  rn.sessionID,
		State:      rn.state,
		Content:    rn.content,
		Iterations: rn.iterations,
		Events:     events,
	}, rn.err
}

// Cancel cancels a running run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.RLock()
	cancel, exists := r.activeRuns[runID]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

// ActiveRuns returns the number of runs in flight.
func (r *Runner) ActiveRuns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.activeRuns)
}

func (r *Runner) start(ctx context.Context, sessionID, text string) (*run, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	history, err := r.opts.SessionStore.LoadMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	if err := r.ensureSession(ctx, sessionID, text, len(history) == 0); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := r.runLogger(sessionID, runID)

	external := r.registry.HasKind(tool.KindIntegration)
	steps := progress.StepCount(r.opts.ProgressSteps, external)

	rn := &run{
		id:        runID,
		sessionID: sessionID,
		// Room for every progress event plus the terminal one, so emission
		// never blocks on a slow or vanished consumer.
		events: make(chan core.Event, max(r.opts.EventBufferSize, steps+1)),
		done:   make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	ctx, span := r.opts.Tracer.Start(ctx, "agentd.run", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("run.id", runID),
		attribute.Int("history.length", len(history)),
	))

	rs := core.NewRunState(ctx, sessionID, runID, history, r.opts.MaxIterations, logger)
	rs.Append(core.NewHumanMessage(text))

	logger.Info("runner.run.start", "history", len(history), "tools", r.registry.Len(), "external_integration", external)

	narration := r.narrate(ctx, text, steps, external)
	outcome := make(chan struct{})

	go func() {
		defer close(outcome)
		r.execute(rs, rn)
		r.persist(rs, rn)
	}()

	go func() {
		defer func() {
			span.End()
			cancel()
			r.mu.Lock()
			delete(r.activeRuns, runID)
			r.mu.Unlock()
			close(rn.done)
		}()
		defer close(rn.events)

		r.emit(rn, narration, outcome)

		if rn.err != nil {
			span.RecordError(rn.err)
			span.SetStatus(codes.Error, rn.err.Error())
		}
		span.SetAttributes(attribute.String("run.state", string(rn.state)), attribute.Int("run.iterations", rn.iterations))
	}()

	return rn, nil
}

// ensureSession creates the session on first use. On the first turn of an
// existing session with a placeholder title the title is derived from text.
func (r *Runner) ensureSession(ctx context.Context, sessionID, text string, firstTurn bool) error {
	store := r.opts.SessionStore

	sess, err := store.Get(ctx, sessionID)
	if errors.Is(err, core.ErrSessionNotFound) {
		if _, err := store.Create(ctx, sessionID, core.DeriveTitle(text)); err != nil {
			return fmt.Errorf("failed to create session %s: %w", sessionID, err)
		}
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}

	if firstTurn && sess.HasDefaultTitle() {
		if err := store.Rename(ctx, sessionID, core.DeriveTitle(text)); err != nil {
			r.opts.Logger.Warn("runner.session.rename_failed", "session_id", sessionID, "error", err.Error())
		}
	}

	return nil
}

// narrate requests the narration in the background. The channel receives
// exactly one (possibly empty) sequence.
func (r *Runner) narrate(ctx context.Context, text string, steps int, external bool) <-chan []string {
	ch := make(chan []string, 1)

	if r.opts.Narrator == nil {
		ch <- nil
		return ch
	}

	go func() {
		nctx, cancel := context.WithTimeout(ctx, r.opts.NarrationTimeout)
		defer cancel()

		ch <- r.opts.Narrator.Narrate(nctx, text, steps, external)
	}()

	return ch
}

// emit merges the paced narration with the graph outcome. Progress events
// leave in index order; once the graph has finished the remaining steps are
// flushed and the single terminal event is sent last.
func (r *Runner) emit(rn *run, narration <-chan []string, outcome <-chan struct{}) {
	var (
		steps []string
		next  int
		tick  <-chan time.Time
	)

	sendStep := func() {
		rn.events <- core.NewProgressEvent(rn.id, next+1, len(steps), steps[next])
		next++
	}

	interval := r.opts.ProgressInterval
	if interval <= 0 {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

loop:
	for {
		select {
		case s := <-narration:
			narration = nil
			steps = s
			if len(steps) > 0 {
				sendStep()
				tick = ticker.C
				ticker.Reset(interval)
			}
		case <-tick:
			if next < len(steps) {
				sendStep()
			}
			if next >= len(steps) {
				tick = nil
			}
		case <-outcome:
			break loop
		}
	}

	// Progress is advisory: late narration gets a short grace period and is
	// dropped afterwards so the terminal event is not held back.
	if narration != nil {
		grace := time.NewTimer(r.opts.NarrationGrace)
		select {
		case steps = <-narration:
		case <-grace.C:
			r.opts.Logger.Debug("runner.narration.dropped", "run_id", rn.id, "grace", r.opts.NarrationGrace)
		}
		grace.Stop()
	}

	for next < len(steps) {
		sendStep()
	}

	if rn.err != nil {
		rn.events <- core.NewErrorEvent(rn.id, rn.err)
		return
	}

	rn.events <- core.NewResponseEvent(rn.id, rn.content)
}

// execute traverses the state machine until DONE or FAILED.
func (r *Runner) execute(rs *core.RunState, rn *run) {
	start := time.Now()
	state := StateReasoning

	r.transition(rn.id, "", state)

	for !state.IsTerminal() {
		var next State

		switch state {
		case StateReasoning:
			next = r.reason(rs, rn)
		case StateExecutingTools:
			next = r.executeTools(rs)
		}

		r.transition(rn.id, state, next)
		state = next
	}

	rn.state = state
	rn.iterations = rs.IterationCount()

	if sl, ok := rs.Logger().(*logging.StructuredLogger); ok {
		sl.LogRun(string(state), rn.iterations, time.Since(start), rn.err)
		return
	}

	if rn.err != nil {
		rs.Logger().Warn("runner.run.failed", "iterations", rn.iterations, "error", rn.err.Error())
		return
	}

	rs.Logger().Info("runner.run.completed", "iterations", rn.iterations)
}

func (r *Runner) reason(rs *core.RunState, rn *run) State {
	if err := rs.Guard.Increment(); err != nil {
		rn.err = err
		return StateFailed
	}

	if err := rs.Err(); err != nil {
		rn.err = fmt.Errorf("run cancelled: %w", err)
		return StateFailed
	}

	ctx, span := r.opts.Tracer.Start(rs.Context, "agentd.reasoning", trace.WithAttributes(
		attribute.Int("iteration", rs.IterationCount()),
		attribute.Int("iterations.remaining", rs.Guard.Remaining()),
		attribute.Int("messages", len(rs.Messages)),
	))
	defer span.End()

	msg, err := r.reasoning.Next(rs.WithContext(ctx))
	if err != nil {
		if ctxErr := rs.Err(); ctxErr != nil {
			err = fmt.Errorf("run cancelled: %w", ctxErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		rn.err = err
		return StateFailed
	}

	rs.Append(msg)
	span.SetAttributes(attribute.Int("tool_calls", len(msg.ToolCalls)))

	if msg.HasToolCalls() {
		return StateExecutingTools
	}

	rn.content = msg.Content

	return StateDone
}

func (r *Runner) executeTools(rs *core.RunState) State {
	last, _ := rs.Last()

	names := make([]string, len(last.ToolCalls))
	for i, tc := range last.ToolCalls {
		names[i] = tc.Name
	}

	ctx, span := r.opts.Tracer.Start(rs.Context, "agentd.tools", trace.WithAttributes(
		attribute.StringSlice("tool.names", names),
	))
	defer span.End()

	rs.Append(r.executor.Execute(rs.WithContext(ctx), last.ToolCalls)...)

	// Tool output never ends a run on its own.
	return StateReasoning
}

// persist writes the checkpoint after DONE and FAILED alike, so partial
// progress survives failures and cancellation.
func (r *Runner) persist(rs *core.RunState, rn *run) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(rs.Context), persistTimeout)
	defer cancel()

	if err := r.opts.SessionStore.SaveMessages(ctx, rs.SessionID, rs.Snapshot()); err != nil {
		rs.Logger().Error("runner.persist.failed", "state", string(rn.state), "error", err.Error())
		return
	}

	rs.Logger().Debug("runner.persist.completed", "messages", len(rs.Messages), "new", len(rs.NewMessages()))
}

func (r *Runner) transition(runID string, from, to State) {
	r.opts.Logger.Debug("runner.state", "run_id", runID, "from", string(from), "to", string(to))

	if r.opts.OnTransition != nil && from != "" {
		r.opts.OnTransition(runID, from, to)
	}
}

func (r *Runner) runLogger(sessionID, runID string) logging.Logger {
	if sl, ok := r.opts.Logger.(*logging.StructuredLogger); ok {
		return sl.WithComponent("runner").WithSession(sessionID, runID)
	}
	return logging.With(r.opts.Logger, "session_id", sessionID, "run_id", runID)
}
