package core

import "errors"

// Tool-level errors are recovered into tool-result messages; run-level errors
// stop the graph and surface as a single error event.
var (
	// ErrToolNotFound: the requested tool name is absent from the registry.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolExecution: a tool failed, timed out or received malformed arguments.
	ErrToolExecution = errors.New("tool execution failed")
	// ErrReasoningUnavailable: the reasoning model failed or replied with garbage.
	ErrReasoningUnavailable = errors.New("reasoning unavailable")
	// ErrIterationLimitExceeded: the runaway loop guard tripped.
	ErrIterationLimitExceeded = errors.New("iteration limit exceeded")
	// ErrNarrationUnavailable: progress narration could not be produced.
	ErrNarrationUnavailable = errors.New("narration unavailable")
	// ErrSessionNotFound is returned by stores for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionBusy is returned when a run is already in flight for a session.
	ErrSessionBusy = errors.New("session busy")
	// ErrTaskNotFound is returned by task stores for unknown task ids.
	ErrTaskNotFound = errors.New("task not found")
)
