// Package builtin provides the local tools every agentd instance ships with:
// workspace file operations, shell command execution and web page retrieval.
//
// All paths are resolved inside a single workspace directory; attempts to
// escape it fail with a validation error before touching the filesystem.
package builtin
