package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hupe1980/agentd/core"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// handleChat streams one run. The response is NDJSON unless the client
// accepts text/event-stream.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeJSONError(w, http.StatusBadRequest, "message is required")
		return
	}

	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	s.streamRun(w, r, req.SessionID, req.Message, nil)
}

// streamRun claims the session, starts the run and relays its events.
// onTerminal, when set, observes the terminal event after it was written.
// Validation failures are reported as JSON before any stream header is sent.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, sessionID, text string, onTerminal func(core.Event)) {
	if _, ok := w.(http.Flusher); !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	release, err := s.locker.TryLock(sessionID)
	if err != nil {
		writeJSONError(w, http.StatusConflict, err.Error())
		return
	}
	defer release()

	runID, events, err := s.runner.Run(r.Context(), sessionID, text)
	if err != nil {
		s.logger.Error("server.run.start_failed", "session_id", sessionID, "error", err.Error())
		writeJSONError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	w.Header().Set("X-Session-ID", sessionID)
	w.Header().Set("X-Run-ID", runID)

	ew := newEventWriter(w, r)

	var writeErr error

	// Drain until the runner closes the channel so the lock is only released
	// after the run persisted its checkpoint.
	for ev := range events {
		if writeErr == nil {
			if writeErr = ew.Write(ev); writeErr != nil {
				s.logger.Warn("server.stream.write_failed", "run_id", runID, "error", writeErr.Error())
			}
		}

		if ev.IsTerminal() && onTerminal != nil {
			onTerminal(ev)
		}
	}
}

// handleChatWS serves runs over a WebSocket. Each client frame is a chat
// request; runs on one connection execute one after another and every event
// is written as a JSON text frame. Closing the connection cancels the
// current run.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.logger.Warn("server.ws.upgrade_failed", "error", err.Error())
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	requests := make(chan chatRequest)

	go func() {
		defer cancel()
		defer close(requests)

		for {
			var req chatRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}

			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	for req := range requests {
		if err := s.serveWSRun(ctx, conn, req); err != nil {
			s.logger.Warn("server.ws.write_failed", "session_id", req.SessionID, "error", err.Error())
			return
		}
	}
}

type jsonWriter interface {
	WriteJSON(v any) error
}

func (s *Server) serveWSRun(ctx context.Context, conn jsonWriter, req chatRequest) error {
	req.Message = strings.TrimSpace(req.Message)

	switch {
	case req.SessionID == "":
		return conn.WriteJSON(core.NewErrorEvent("", errors.New("session_id is required")))
	case req.Message == "":
		return conn.WriteJSON(core.NewErrorEvent("", errors.New("message is required")))
	}

	release, err := s.locker.TryLock(req.SessionID)
	if err != nil {
		return conn.WriteJSON(core.NewErrorEvent("", err))
	}
	defer release()

	_, events, err := s.runner.Run(ctx, req.SessionID, req.Message)
	if err != nil {
		return conn.WriteJSON(core.NewErrorEvent("", fmt.Errorf("failed to start run: %w", err)))
	}

	var writeErr error
	for ev := range events {
		if writeErr == nil {
			writeErr = conn.WriteJSON(ev)
		}
	}

	return writeErr
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.Cancel(r.PathValue("id")); err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

type summarizeRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// handleSummarize titles an ad hoc conversation supplied by the client.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	msgs := make([]core.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, core.Message{Role: clientRole(m.Role), Content: m.Content})
	}

	writeJSON(w, http.StatusOK, map[string]string{"summary": s.titler.Summarize(r.Context(), msgs)})
}

// clientRole maps the role names browsers commonly send onto message roles.
func clientRole(role string) core.Role {
	switch strings.ToLower(role) {
	case "user", "human":
		return core.RoleHuman
	case "assistant", "ai", "bot":
		return core.RoleAssistant
	default:
		return core.Role(role)
	}
}
