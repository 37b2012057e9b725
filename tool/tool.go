// Package tool implements the tool subsystem that lets the reasoning model
// invoke structured capabilities (file operations, shell commands, web
// browsing, third-party integrations) with schema validated arguments,
// consistent error handling and metadata for model guidance.
package tool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/internal/util"
)

// Kind tags a tool with the family it belongs to. The set is closed; the
// registry rejects tools with any other kind.
type Kind string

const (
	// KindFile marks workspace file operations.
	KindFile Kind = "file"
	// KindShell marks terminal command execution.
	KindShell Kind = "shell"
	// KindBrowse marks web retrieval.
	KindBrowse Kind = "browse"
	// KindIntegration marks actions dispatched to an external service.
	KindIntegration Kind = "integration"
	// KindFunction marks in-process Go functions.
	KindFunction Kind = "function"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFile, KindShell, KindBrowse, KindIntegration, KindFunction:
		return true
	default:
		return false
	}
}

// Tool defines the interface for extending the agent with external capabilities.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Return failures as errors, never panic on bad input
//   - Be safe for concurrent use; calls of one batch run in parallel
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// It is provided to the model to help it understand when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// Arguments are validated against it before Call is invoked.
	Parameters() map[string]any

	// Kind returns the tool family.
	Kind() Kind

	// Call executes the tool with validated arguments. The returned text
	// becomes the tool-result content seen by the model.
	Call(toolCtx *core.ToolContext, args map[string]any) (string, error)
}

// Descriptor is the catalog entry for a registered tool.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Kind        Kind           `json:"kind"`
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeNotFound   = "NOT_FOUND"
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeTimeout    = "TIMEOUT"
	CodePanic      = "PANIC"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap maps the code onto the core sentinels so callers can use errors.Is.
func (e *ToolError) Unwrap() error {
	if e.Code == CodeNotFound {
		return core.ErrToolNotFound
	}
	return core.ErrToolExecution
}

// Content renders the error as tool-result text for the model.
func (e *ToolError) Content() string {
	code := e.Code
	if code == "" {
		code = CodeExecution
	}
	return fmt.Sprintf("error [%s] in %s: %s", code, e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// AsToolError returns err as *ToolError, wrapping foreign errors with
// CodeExecution.
func AsToolError(tool string, err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Tool: tool, Message: err.Error(), Code: CodeExecution}
}
