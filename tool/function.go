package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/internal/util"
)

// FunctionTool exposes a Go function as a tool. Arguments are checked
// against the declared parameter schema before fn runs, and failures come
// back as *ToolError: VALIDATION_ERROR for bad arguments, EXECUTION_ERROR for
// plain errors from fn. A *ToolError returned by fn is passed through.
//
// A FunctionTool is immutable after construction apart from WithKind and is
// safe for concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	kind        Kind
	fn          func(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// NewFunctionTool builds a tool from an explicit parameter schema.
//
//	echo := tool.NewFunctionTool("echo", "Echo the given text",
//		map[string]any{
//			"type":       "object",
//			"properties": map[string]any{"text": map[string]any{"type": "string"}},
//			"required":   []string{"text"},
//		},
//		func(_ *core.ToolContext, args map[string]any) (any, error) {
//			return args["text"], nil
//		},
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		kind:        KindFunction,
		fn:          fn,
	}
}

// NewTypedTool derives the parameter schema from the struct type A and
// decodes validated arguments into an A before calling fn.
//
//	type SumArgs struct {
//		A float64 `json:"a" description:"First addend"`
//		B float64 `json:"b" description:"Second addend"`
//	}
//
//	sum := tool.NewTypedTool("sum", "Add two numbers",
//		func(_ *core.ToolContext, in SumArgs) (any, error) { return in.A + in.B, nil })
func NewTypedTool[A any](
	name, description string,
	fn func(toolCtx *core.ToolContext, args A) (any, error),
) *FunctionTool {
	var zero A

	return NewFunctionTool(name, description, util.CreateSchema(zero), func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
		in, err := decodeArgs[A](args)
		if err != nil {
			return nil, &ToolError{Tool: name, Message: err.Error(), Code: CodeValidation, Details: err}
		}
		return fn(toolCtx, in)
	})
}

func decodeArgs[A any](args map[string]any) (A, error) {
	var in A

	raw, err := json.Marshal(args)
	if err != nil {
		return in, fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("decode arguments: %w", err)
	}

	return in, nil
}

// WithKind re-tags the tool. Built-in tools use it to expose their family
// to the catalog.
func (t *FunctionTool) WithKind(kind Kind) *FunctionTool {
	t.kind = kind
	return t
}

// Name implements Tool.
func (t *FunctionTool) Name() string { return t.name }

// Description implements Tool.
func (t *FunctionTool) Description() string { return t.description }

// Parameters implements Tool.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Kind implements Tool.
func (t *FunctionTool) Kind() Kind { return t.kind }

// Call validates args and invokes the wrapped function.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (string, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.invalid_args", "tool", t.name, "error", err)

		return "", &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		var toolErr *ToolError
		if !errors.As(err, &toolErr) {
			toolErr = &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution}
		}

		logger.Warn("tool.call.error", "tool", t.name, "code", toolErr.Code, "error", toolErr.Message)

		return "", toolErr
	}

	logger.Debug("tool.call.done", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return FormatResult(result)
}

// FormatResult renders a function result as tool-result text. Strings and
// byte slices pass through verbatim, everything else is JSON encoded.
func FormatResult(v any) (string, error) {
	switch r := v.(type) {
	case nil:
		return "", nil
	case string:
		return r, nil
	case []byte:
		return string(r), nil
	case fmt.Stringer:
		return r.String(), nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}

	return string(b), nil
}
