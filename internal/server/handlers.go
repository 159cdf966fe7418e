package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hupe1980/swarmchat/core"
)

// Defaults applied when the request does not identify the conversation.
const (
	UserIDHeader          = "X-User-ID"
	DefaultUserID         = "default_user"
	DefaultConversationID = "default_thread"
)

const maxBodyBytes = 1 << 20

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
}

type chatResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

type resetRequest struct {
	ThreadID string `json:"thread_id"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, chatResponse{
			Error:    err.Error(),
			Response: "An error occurred while processing your request: " + err.Error(),
		})
		return
	}

	key := conversationKey(r, req.ThreadID)
	s.logger.Info("received chat request", "user_id", key.UserID, "thread_id", key.ConversationID, "request_id", RequestIDFromContext(r.Context()))

	res, err := s.chat.Chat(r.Context(), key, req.Message)
	if err != nil {
		s.logger.Error("chat request failed", "user_id", key.UserID, "thread_id", key.ConversationID, "kind", core.Kind(err), "error", err)
		writeJSON(w, statusFor(err), chatResponse{
			Error:    err.Error(),
			Response: "An error occurred while processing your request: " + err.Error(),
		})
		return
	}

	if res.RunID != "" {
		w.Header().Set("X-Run-ID", res.RunID)
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: res.Response})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{
			Status:  "error",
			Message: "Error resetting chat: " + err.Error(),
		})
		return
	}

	key := conversationKey(r, req.ThreadID)
	s.logger.Info("resetting conversation", "user_id", key.UserID, "thread_id", key.ConversationID)
	s.chat.Reset(key)

	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "Chat history reset"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "healthy", Message: "Backend service is running"})
}

func conversationKey(r *http.Request, threadID string) core.ConversationKey {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		userID = DefaultUserID
	}
	if threadID == "" {
		threadID = DefaultConversationID
	}
	return core.NewConversationKey(userID, threadID)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch core.Kind(err) {
	case core.KindTimeout:
		return http.StatusGatewayTimeout
	case core.KindInstanceCreation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
