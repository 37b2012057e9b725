package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hupe1980/agentd/tool/mcp"
)

// Integrations manages the MCP servers behind the integration tools.
type Integrations interface {
	Servers() []mcp.ServerStatus
	Set(ctx context.Context, srv mcp.ServerConfig) error
}

func (s *Server) handleListIntegrations(w http.ResponseWriter, _ *http.Request) {
	servers := []mcp.ServerStatus{}
	if s.integrations != nil {
		servers = append(servers, s.integrations.Servers()...)
	}

	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}

func (s *Server) handleSetIntegration(w http.ResponseWriter, r *http.Request) {
	if s.integrations == nil {
		writeJSONError(w, http.StatusNotImplemented, "integrations are not enabled")
		return
	}

	var req mcp.ServerConfig
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.URL = strings.TrimSpace(req.URL)

	if err := s.integrations.Set(r.Context(), req); err != nil {
		if errors.Is(err, mcp.ErrInvalidServer) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.logger.Error("server.integrations.failed", "server", req.Name, "error", err.Error())
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.logger.Info("server.integrations.updated", "server", req.Name)

	writeJSON(w, http.StatusOK, map[string]any{"servers": s.integrations.Servers()})
}
