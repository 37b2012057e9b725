package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentd/core"
)

// InMemoryStore is a volatile SessionStore and TaskStore storing sessions
// and tasks in process local maps. It is safe for concurrent access and best
// suited for tests or ephemeral demo servers. Returned values are cloned to
// prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	tasks    map[string]*core.Task
}

// NewInMemoryStore constructs an empty in‑memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*core.Session),
		tasks:    make(map[string]*core.Task),
	}
}

// LoadMessages returns the checkpoint of sessionID; empty for unknown ids.
func (s *InMemoryStore) LoadMessages(_ context.Context, sessionID string) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.sessions[sessionID]; ok {
		return core.CloneMessages(sess.Messages), nil
	}

	return []core.Message{}, nil
}

// SaveMessages replaces the checkpoint of sessionID, creating the session
// lazily.
func (s *InMemoryStore) SaveMessages(_ context.Context, sessionID string, msgs []core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = s.createSessionLocked(sessionID, "")
	}

	sess.Messages = core.CloneMessages(msgs)
	sess.UpdatedAt = now(sess.UpdatedAt)

	return nil
}

// Create stores a new session. Creating an existing id returns the stored
// session unchanged.
func (s *InMemoryStore) Create(_ context.Context, id, title string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return sess.Clone(), nil
	}

	return s.createSessionLocked(id, title).Clone(), nil
}

// Get returns a session including its messages.
func (s *InMemoryStore) Get(_ context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}

	return sess.Clone(), nil
}

// List returns all sessions without messages, most recently updated first.
func (s *InMemoryStore) List(_ context.Context) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		c := *sess
		c.Messages = nil
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

// Rename sets the title of a session.
func (s *InMemoryStore) Rename(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return core.ErrSessionNotFound
	}

	sess.Title = title
	sess.UpdatedAt = now(sess.UpdatedAt)

	return nil
}

// Delete removes a session and its messages.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return core.ErrSessionNotFound
	}

	delete(s.sessions, id)

	return nil
}

// createSessionLocked allocates and stores a new session; caller must already
// hold the write lock.
func (s *InMemoryStore) createSessionLocked(id, title string) *core.Session {
	sess := core.NewSession(id, title)
	s.sessions[id] = sess
	return sess
}

// CreateTask stores t. A zero CreatedAt is set to now.
func (s *InMemoryStore) CreateTask(_ context.Context, t *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *t
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
		t.CreatedAt = c.CreatedAt
	}
	s.tasks[c.ID] = &c

	return nil
}

// GetTask returns the task with id.
func (s *InMemoryStore) GetTask(_ context.Context, id string) (*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, core.ErrTaskNotFound
	}

	c := *t

	return &c, nil
}

// ListTasks returns all tasks, newest first.
func (s *InMemoryStore) ListTasks(_ context.Context) ([]*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		c := *t
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	return out, nil
}

// UpdateTask replaces name, description and task text of an existing task.
func (s *InMemoryStore) UpdateTask(_ context.Context, t *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tasks[t.ID]
	if !ok {
		return core.ErrTaskNotFound
	}

	stored.Name = t.Name
	stored.Description = t.Description
	stored.Task = t.Task

	return nil
}

// DeleteTask removes a task.
func (s *InMemoryStore) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return core.ErrTaskNotFound
	}

	delete(s.tasks, id)

	return nil
}

// SetTaskResult records the outcome of the latest run of a task.
func (s *InMemoryStore) SetTaskResult(_ context.Context, id, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return core.ErrTaskNotFound
	}

	t.LastResult = result

	return nil
}

// now returns the current time, strictly after prev so ordering by update
// time stays stable on coarse clocks.
func now(prev time.Time) time.Time {
	t := time.Now().UTC()
	if !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}
