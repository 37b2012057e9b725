// Package runner implements the graph controller: the state machine that
// alternates between asking the reasoning model what to do next and
// executing the tools it asked for.
//
// # States
//
//	REASONING        -> EXECUTING_TOOLS  reply carries tool calls
//	REASONING        -> DONE             reply is a final answer
//	REASONING        -> FAILED           reasoning failed, iteration limit hit or run cancelled
//	EXECUTING_TOOLS  -> REASONING        always, after appending one result per call
//
// # Event stream
//
// Every run emits narrated progress events (paced, advisory, generated by a
// separate text model) followed by exactly one terminal response or error
// event. Narration and the graph are independent producers; the Runner
// merges them so that all progress events precede the terminal event no
// matter which one finishes first.
//
// # Persistence
//
// The full message sequence is saved to the SessionStore when the graph
// stops, on failure as well as on success.
package runner
