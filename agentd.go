// Package agentd provides a high-level façade over the graph controller and
// its services (session store, per-session locking, title summarization,
// built-in and integration tools). Most applications interact with this
// package by:
//  1. Creating an Agent via New() with a reasoning model, or via FromConfig()
//  2. Running tasks (Run / RunSync) or serving them over HTTP (Handler)
//  3. Releasing stores and integration connections with Close()
//
// All defaults are safe for local development and testing; production
// deployments supply a durable store and a structured logger.
package agentd

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/logging"
	"github.com/hupe1980/agentd/model"
	"github.com/hupe1980/agentd/progress"
	"github.com/hupe1980/agentd/runner"
	"github.com/hupe1980/agentd/server"
	"github.com/hupe1980/agentd/session"
	"github.com/hupe1980/agentd/tool"
	"github.com/hupe1980/agentd/tool/mcp"
)

// Store persists sessions, checkpoints and saved tasks.
type Store = server.Store

// Options configures the Agent instance.
type Options struct {
	// Store defaults to an in-memory implementation.
	Store Store
	// Tools are registered in order; the first tool of a name wins.
	Tools []tool.Tool
	// TextGenerator powers progress narration and session titles. Nil
	// disables narration and titles fall back to the first message.
	TextGenerator model.TextGenerator
	// Runner overrides graph controller settings.
	Runner []func(o *runner.Options)
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Agent is the high-level façade aggregating the runner and its services.
type Agent struct {
	runner  *runner.Runner
	store   Store
	locker  *session.Locker
	titler  *session.Titler
	logger  logging.Logger
	closers []func() error

	// integrations is set by FromConfig.
	integrations *mcp.Manager
}

// New creates an Agent reasoning with m.
func New(m model.Model, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Store:  session.NewInMemoryStore(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	registry := tool.NewRegistry(func(o *tool.RegistryOptions) { o.Logger = opts.Logger })
	registry.RegisterAll(opts.Tools...)

	var narrator *progress.Narrator
	if opts.TextGenerator != nil {
		narrator = progress.NewNarrator(opts.TextGenerator, func(o *progress.Options) { o.Logger = opts.Logger })
	}

	runnerOpts := append([]func(o *runner.Options){func(o *runner.Options) {
		o.SessionStore = opts.Store
		o.Narrator = narrator
		o.Logger = opts.Logger
	}}, opts.Runner...)

	return &Agent{
		runner: runner.New(m, registry, runnerOpts...),
		store:  opts.Store,
		locker: session.NewLocker(),
		titler: session.NewTitler(opts.TextGenerator, func(o *session.TitlerOptions) { o.Logger = opts.Logger }),
		logger: opts.Logger,
	}
}

// Runner returns the underlying graph controller.
func (a *Agent) Runner() *runner.Runner { return a.runner }

// Integrations returns the MCP server manager, or nil for an Agent not
// built by FromConfig.
func (a *Agent) Integrations() *mcp.Manager { return a.integrations }

// Store returns the session and task store.
func (a *Agent) Store() Store { return a.store }

// Run starts a run of text in sessionID (generated when empty). It fails
// with core.ErrSessionBusy while another run of the session is in flight.
// The returned channel carries progress events followed by exactly one
// terminal event.
func (a *Agent) Run(ctx context.Context, sessionID, text string) (string, <-chan core.Event, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	release, err := a.locker.TryLock(sessionID)
	if err != nil {
		return "", nil, err
	}

	runID, events, err := a.runner.Run(ctx, sessionID, text)
	if err != nil {
		release()
		return "", nil, err
	}

	out := make(chan core.Event, cap(events))

	go func() {
		defer close(out)
		defer release()

		for ev := range events {
			out <- ev
		}
	}()

	return runID, out, nil
}

// RunSync runs text to completion under the session lock.
func (a *Agent) RunSync(ctx context.Context, sessionID, text string) (*runner.Result, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	release, err := a.locker.TryLock(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	return a.runner.RunSync(ctx, sessionID, text)
}

// Handler returns the HTTP API sharing this agent's session lock.
func (a *Agent) Handler() http.Handler {
	return server.New(a.runner, a.store, func(o *server.Options) {
		o.Locker = a.locker
		o.Titler = a.titler
		o.Logger = a.logger

		if a.integrations != nil {
			o.Integrations = a.integrations
		}
	})
}

// Close releases integration connections and the store, in reverse order
// of acquisition.
func (a *Agent) Close() error {
	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	a.closers = nil

	return errors.Join(errs...)
}
