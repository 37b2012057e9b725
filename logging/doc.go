// Package logging provides a minimal logging interface and adapters for agentd.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the runner, tools and server use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - StructuredLogger with component/session scoping and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	r := runner.New(reasoner, registry, runner.WithLogger(logger.WithComponent("runner")))
//
// Event messages are dotted keys (tool.call.completed, runner.run.failed) so
// log pipelines can filter on them.
package logging
