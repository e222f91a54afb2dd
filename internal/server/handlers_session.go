package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cadenza-ai/cadenza/internal/permission"
	"github.com/cadenza-ai/cadenza/internal/session"
	"github.com/cadenza-ai/cadenza/internal/storage"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context(), s.directoryFor(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

type createSessionRequest struct {
	Title     string `json:"title,omitempty"`
	Directory string `json:"directory,omitempty"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	dir := req.Directory
	if dir == "" {
		dir = s.directoryFor(r)
	}

	sess, err := s.sessions.Create(r.Context(), dir, req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

func (s *Server) renameSession(w http.ResponseWriter, r *http.Request) {
	var req renameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "title is required")
		return
	}

	sess, err := s.sessions.Rename(r.Context(), chi.URLParam(r, "sessionID"), req.Title)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s.runner.Abort(sessionID)

	if err := s.sessions.Delete(r.Context(), sessionID); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) abortSession(w http.ResponseWriter, r *http.Request) {
	aborted := s.runner.Abort(chi.URLParam(r, "sessionID"))
	writeJSON(w, http.StatusOK, map[string]bool{"aborted": aborted})
}

type forkSessionRequest struct {
	MessageID string `json:"messageID,omitempty"`
}

func (s *Server) forkSession(w http.ResponseWriter, r *http.Request) {
	var req forkSessionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	child, err := s.sessions.Fork(r.Context(), chi.URLParam(r, "sessionID"), req.MessageID)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, child)
}

func (s *Server) compactSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := s.sessions.Get(r.Context(), sessionID); err != nil {
		writeSessionError(w, err)
		return
	}

	summaryID, compacted, err := s.runner.Compactor().Compact(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summaryID": summaryID,
		"compacted": compacted,
	})
}

type respondPermissionRequest struct {
	Reply string `json:"reply"`
}

func (s *Server) respondPermission(w http.ResponseWriter, r *http.Request) {
	var req respondPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid body")
		return
	}

	reply := permission.Reply(req.Reply)
	switch reply {
	case permission.ReplyOnce, permission.ReplyAlways, permission.ReplyDeny:
	default:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "reply must be once, always or deny")
		return
	}

	s.responder.Respond(chi.URLParam(r, "permissionID"), reply)
	writeJSON(w, http.StatusOK, map[string]bool{"responded": true})
}

// postMessage appends a user turn and runs the loop to completion. The
// incremental stream is on /event; this response is the final message.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var in session.PromptInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid body")
		return
	}
	in.SessionID = chi.URLParam(r, "sessionID")

	msg, err := s.runner.Prompt(r.Context(), in)
	if err != nil {
		if msg != nil {
			// The loop recorded the failure on the message; surface both.
			writeJSON(w, http.StatusOK, msg)
			return
		}
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}
	writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
}
