package core

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultSessionTitle is assigned to sessions created without a title. A
// session still carrying it gets its title derived from the first human
// message.
const DefaultSessionTitle = "New Chat"

// untitled lists placeholder titles that may be replaced automatically.
var untitled = map[string]bool{DefaultSessionTitle: true, "Untitled Chat": true, "": true}

// maxTitleRunes bounds titles derived from message text.
const maxTitleRunes = 60

// Session is a persisted, resumable conversation.
//
// Contract:
//   - Messages are ordered chronologically and only ever appended
//   - UpdatedAt moves on every new message
//   - Deleting a session deletes its messages
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages,omitempty"`
}

// NewSession creates a new session with the given ID. An empty title falls
// back to DefaultSessionTitle.
func NewSession(id, title string) *Session {
	if title == "" {
		title = DefaultSessionTitle
	}
	now := time.Now().UTC()
	return &Session{ID: id, Title: title, CreatedAt: now, UpdatedAt: now, Messages: []Message{}}
}

// HasDefaultTitle reports whether the title is a placeholder that may be
// replaced by a derived one.
func (s *Session) HasDefaultTitle() bool { return untitled[s.Title] }

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Messages = CloneMessages(s.Messages)
	return &clone
}

// DeriveTitle turns the first line of a human message into a session title.
func DeriveTitle(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	if text == "" {
		return DefaultSessionTitle
	}
	if utf8.RuneCountInString(text) <= maxTitleRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxTitleRunes-3])) + "..."
}

// SessionStore persists sessions and their message history (checkpoints).
//
// SaveMessages replaces the stored sequence for the session with msgs,
// creating the session if needed, and bumps UpdatedAt. The graph controller
// only ever passes a sequence whose prefix is the previously loaded one.
// LoadMessages returns an empty slice for unknown sessions.
type SessionStore interface {
	LoadMessages(ctx context.Context, sessionID string) ([]Message, error)
	SaveMessages(ctx context.Context, sessionID string, msgs []Message) error

	Create(ctx context.Context, id, title string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
	Rename(ctx context.Context, id, title string) error
	Delete(ctx context.Context, id string) error
}
