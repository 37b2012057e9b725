// Package progress generates the synthetic narration streamed to clients
// while a run is in flight.
//
// A Narrator asks a text model (never the reasoning model) for a numbered
// list of short phrases that plausibly describe the task. The phrases are
// advisory: they are not correlated with tool calls, not persisted and a
// failure to produce them only results in an empty narration.
package progress
