package tool

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/internal/util"
	"github.com/hupe1980/agentd/logging"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// Registry maps tool names to implementations. The first registration of a
// name wins; later duplicates are discarded and logged. Safe for concurrent
// use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		tools:  make(map[string]Tool),
		logger: opts.Logger,
	}
}

// Register adds t to the registry. It returns false when t was rejected,
// either because the name is taken or because the descriptor is invalid.
func (r *Registry) Register(t Tool) bool {
	if t == nil || t.Name() == "" {
		r.logger.Warn("registry.invalid", "reason", "empty name")
		return false
	}

	if !t.Kind().Valid() {
		r.logger.Warn("registry.invalid", "tool", t.Name(), "kind", string(t.Kind()))
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tools[t.Name()]; ok {
		r.logger.Warn("registry.duplicate", "tool", t.Name(), "kept_kind", string(existing.Kind()), "dropped_kind", string(t.Kind()))
		return false
	}

	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())

	return true
}

// RegisterAll registers every tool and returns how many were accepted.
func (r *Registry) RegisterAll(tools ...Tool) int {
	n := 0
	for _, t := range tools {
		if r.Register(t) {
			n++
		}
	}
	return n
}

// ReplaceKind removes every tool of kind k and registers tools in their
// place. Tools of other kinds keep their names, so a replacement that
// collides with one is dropped. It returns how many were accepted.
func (r *Registry) ReplaceKind(k Kind, tools []Tool) int {
	r.mu.Lock()
	order := r.order[:0:0]
	for _, name := range r.order {
		if r.tools[name].Kind() == k {
			delete(r.tools, name)
			continue
		}
		order = append(order, name)
	}
	r.order = order
	r.mu.Unlock()

	return r.RegisterAll(tools...)
}

// RegisterFunc wraps fn in a FunctionTool and registers it.
func (r *Registry) RegisterFunc(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
) bool {
	return r.Register(NewFunctionTool(name, description, parameters, fn))
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]

	return t, ok
}

// List returns the catalog in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Descriptor{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
			Kind:        t.Kind(),
		})
	}

	return out
}

// HasKind reports whether any registered tool has kind k.
func (r *Registry) HasKind(k Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tools {
		if t.Kind() == k {
			return true
		}
	}

	return false
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// Invoke resolves call, decodes and validates its arguments against the
// tool's schema and runs it. Every failure is returned as *ToolError.
func (r *Registry) Invoke(toolCtx *core.ToolContext, call core.ToolCall) (string, error) {
	t, ok := r.Lookup(call.Name)
	if !ok {
		return "", &ToolError{
			Tool:    call.Name,
			Message: fmt.Sprintf("unknown tool %q", call.Name),
			Code:    CodeNotFound,
		}
	}

	args, err := call.Args()
	if err != nil {
		return "", &ToolError{
			Tool:    call.Name,
			Message: fmt.Sprintf("invalid arguments: %v", err),
			Code:    CodeValidation,
			Details: call.Arguments,
		}
	}

	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		return "", &ToolError{
			Tool:    call.Name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	out, err := t.Call(toolCtx, args)
	if err != nil {
		return "", AsToolError(call.Name, err)
	}

	return out, nil
}
