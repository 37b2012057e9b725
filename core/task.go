package core

import (
	"context"
	"strings"
	"time"
)

// Task is a saved, re-runnable task definition. LastResult holds the final
// answer (or error text) of the most recent run.
type Task struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Task        string    `json:"task"`
	CreatedAt   time.Time `json:"created_at"`
	LastResult  string    `json:"last_result,omitempty"`
}

// TaskSessionPrefix starts the title of sessions created for task runs, so
// session listings can separate chats from task runs.
const TaskSessionPrefix = "Agent Task: "

// IsTaskSession reports whether the session title marks a task run.
func IsTaskSession(title string) bool { return strings.HasPrefix(title, TaskSessionPrefix) }

// TaskStore persists saved tasks. List returns newest first. UpdateTask
// replaces name, description and task text; it never touches LastResult.
// Lookups of unknown ids fail with ErrTaskNotFound.
type TaskStore interface {
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context) ([]*Task, error)
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id string) error
	SetTaskResult(ctx context.Context, id, result string) error
}
