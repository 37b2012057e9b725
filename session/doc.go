// Package session houses implementations of core.SessionStore and
// core.TaskStore plus the helpers the transport needs around them.
//
// InMemoryStore keeps everything in process memory. Durable backends live in
// sub-packages (sqlite, postgres) and only the wiring layer decides which one
// to instantiate. Locker serializes runs per session and Titler turns a
// conversation into a short title.
package session
