// Package flow holds the two steps the graph controller alternates between.
//
// ReasoningStep frames the message history, a fixed system instruction and
// the tool catalog for the reasoning model and parses the reply into exactly
// one assistant message. ToolExecutor runs the tool calls of that message
// concurrently, each under its own deadline, and returns one tool-result
// message per call in request order. Tool failures become result content;
// only the reasoning step can fail a run.
package flow
