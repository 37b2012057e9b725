package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hupe1980/agentd/core"
)

// handleListSessions lists sessions, most recently updated first. The
// optional type query selects chats ("chat") or task runs ("agent").
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("type")
	if kind != "" && kind != "chat" && kind != "agent" {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown session type %q", kind))
		return
	}

	list, err := s.store.List(r.Context())
	if err != nil {
		s.writeStoreError(w, "list sessions", err)
		return
	}

	out := make([]*core.Session, 0, len(list))
	for _, sess := range list {
		isTask := core.IsTaskSession(sess.Title)
		if (kind == "chat" && isTask) || (kind == "agent" && !isTask) {
			continue
		}
		out = append(out, sess)
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

type createSessionRequest struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	FirstMessage string `json:"first_message"`
	Message      string `json:"message"`
}

// title picks the explicit title, then one derived from the supplied
// message, and leaves the placeholder to the store otherwise.
func (c createSessionRequest) title() string {
	if t := strings.TrimSpace(c.Title); t != "" {
		return t
	}

	for _, m := range []string{c.FirstMessage, c.Message} {
		if strings.TrimSpace(m) != "" {
			return core.DeriveTitle(m)
		}
	}

	return ""
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	sess, err := s.store.Create(r.Context(), req.ID, req.title())
	if err != nil {
		s.writeStoreError(w, "create session", err)
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, "get session", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session":  sess,
		"messages": sess.Messages,
	})
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeJSONError(w, http.StatusBadRequest, "title is required")
		return
	}

	id := r.PathValue("id")
	if err := s.store.Rename(r.Context(), id, title); err != nil {
		s.writeStoreError(w, "rename session", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "title": title})
}

// handleDeleteSession removes a session and its messages. Sessions with a
// run in flight cannot be deleted.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	release, err := s.locker.TryLock(id)
	if err != nil {
		writeJSONError(w, http.StatusConflict, err.Error())
		return
	}
	defer release()

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeStoreError(w, "delete session", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Session %s deleted", id),
	})
}

// handleSummarizeSession retitles a stored session from its history.
func (s *Server) handleSummarizeSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "get session", err)
		return
	}

	title := s.titler.Summarize(r.Context(), sess.Messages)
	if err := s.store.Rename(r.Context(), id, title); err != nil {
		s.writeStoreError(w, "rename session", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "title": title})
}
