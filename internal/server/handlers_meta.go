package server

import (
	"net/http"

	"github.com/cadenza-ai/cadenza/internal/session"
	"github.com/cadenza-ai/cadenza/pkg/types"
)

// getConfig returns the effective configuration with credentials removed.
func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	if s.appConfig == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, s.appConfig.Redacted())
}

// providerInfo is one provider with its model catalog.
type providerInfo struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Models []types.Model `json:"models"`
}

func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	providers := s.providers.List()
	out := make([]providerInfo, 0, len(providers))
	for _, p := range providers {
		out = append(out, providerInfo{ID: p.ID(), Name: p.Name(), Models: p.Models()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents := session.Agents(s.appConfig)
	out := make([]*session.Agent, 0, len(agents))
	for _, a := range agents {
		out = append(out, a)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tools.IDs())
}
