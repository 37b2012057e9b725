// Package core provides the foundational domain types and interfaces used by
// agentd. It defines the core abstractions for:
//
//   - Messages (append-only conversation history with tool calls / results)
//   - RunState (the mutable unit threaded through one graph traversal)
//   - Events (the ordered progress / response / error stream sent to clients)
//   - Sessions and Tasks (persisted conversations and saved task definitions)
//   - ToolContext (scoped execution surface handed to tool implementations)
//   - The sentinel error taxonomy shared by every layer
//
// The package intentionally keeps implementation concerns (persistence, model
// providers, graph orchestration) out of scope, exposing small interfaces to
// enable custom backends.
package core
