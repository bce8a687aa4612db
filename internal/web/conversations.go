// ABOUTME: Conversation REST handlers - create, list, get, chat (SSE), reset
// ABOUTME: Every handler resolves the owner from the request context first

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/2389/ember-chat/internal/auth"
	"github.com/2389/ember-chat/internal/chat"
	"github.com/2389/ember-chat/internal/store"
)

// ChatRequest is the JSON request body for POST /conversations/{id}/chat.
// Temperature is decoded loosely: anything non-numeric falls back to the default.
type ChatRequest struct {
	Message     string `json:"message"`
	Temperature any    `json:"temperature,omitempty"`
}

// temperaturePtr coerces the loosely-typed temperature field
func (r *ChatRequest) temperaturePtr() *float64 {
	if f, ok := r.Temperature.(float64); ok {
		return &f
	}
	return nil
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	owner := auth.MustFromContext(r.Context())

	conv, err := s.store.CreateConversation(r.Context(), owner.UserID)
	if err != nil {
		s.logger.Error("failed to create conversation", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info("conversation created", "conversation_id", conv.ID, "user_id", owner.UserID)
	s.sendJSON(w, http.StatusCreated, store.Summary{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	owner := auth.MustFromContext(r.Context())

	summaries, err := s.store.ListConversations(r.Context(), owner.UserID)
	if err != nil {
		s.logger.Error("failed to list conversations", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	owner := auth.MustFromContext(r.Context())
	id := r.PathValue("id")

	conv, err := s.store.GetConversation(r.Context(), id, owner.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("failed to get conversation", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, conv)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	owner := auth.MustFromContext(r.Context())
	id := r.PathValue("id")

	ok, err := s.store.ResetConversation(r.Context(), id, owner.UserID)
	if err != nil {
		s.logger.Error("failed to reset conversation", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}

	s.logger.Info("conversation reset", "conversation_id", id, "user_id", owner.UserID)
	s.sendJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleChat runs one chat turn and streams the frames back as SSE.
//
// Ownership is gated here with a store lookup before the turn starts; the
// chat service itself does not check it. The request context carries client
// disconnects into the turn as cancellation.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	owner := auth.MustFromContext(r.Context())
	id := r.PathValue("id")

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if _, err := s.store.GetConversation(r.Context(), id, owner.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("failed to get conversation", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Check streaming support before mutating anything (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	frames, err := s.chat.Send(r.Context(), id, req.Message, req.temperaturePtr())
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			s.sendJSONError(w, http.StatusBadRequest, "message must not be empty")
		case errors.Is(err, store.ErrNotFound):
			s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		default:
			s.logger.Error("failed to start chat turn", "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for frame := range frames {
		s.writeFrame(w, flusher, frame)
	}
}

// writeFrame writes a single SSE data frame and flushes it immediately
func (s *Server) writeFrame(w http.ResponseWriter, flusher http.Flusher, frame chat.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("failed to marshal frame", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
