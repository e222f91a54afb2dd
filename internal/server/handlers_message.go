package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cadenza-ai/cadenza/pkg/types"
)

// MessageWithParts is the wire shape for message listings.
type MessageWithParts struct {
	Info  *types.Message `json:"info"`
	Parts []types.Part   `json:"parts"`
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := s.sessions.Get(r.Context(), sessionID); err != nil {
		writeSessionError(w, err)
		return
	}

	var (
		msgs []*types.Message
		err  error
	)
	if r.URL.Query().Get("all") == "true" {
		msgs, err = s.messages.ListAll(r.Context(), sessionID)
	} else {
		msgs, err = s.messages.List(r.Context(), sessionID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	out := make([]MessageWithParts, 0, len(msgs))
	for _, msg := range msgs {
		parts, err := s.messages.Parts(r.Context(), msg.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
		if parts == nil {
			parts = []types.Part{}
		}
		out = append(out, MessageWithParts{Info: msg, Parts: parts})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	messageID := chi.URLParam(r, "messageID")

	msg, err := s.messages.Get(r.Context(), sessionID, messageID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "message not found")
		return
	}

	parts, err := s.messages.Parts(r.Context(), messageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if parts == nil {
		parts = []types.Part{}
	}
	writeJSON(w, http.StatusOK, MessageWithParts{Info: msg, Parts: parts})
}
