// Package web is the HTTP and WebSocket boundary. Handlers translate
// requests into service calls and domain errors into status codes; no
// business rule lives here.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"loft-messaging/domain"
	"loft-messaging/errors"
	"loft-messaging/repositories"
	"loft-messaging/runtime"
	"loft-messaging/services"
)

type Server struct {
	sessions      services.IAuthService
	conversations services.IConversationService
	messages      services.IMessageService
	notifications services.INotificationService
	counter       *services.UnreadCounter
	convs         repositories.IConversationRepository
	orchestrator  *runtime.Orchestrator
	log           *slog.Logger

	sessionBufferSize int
	deliveryTimeout   time.Duration
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	token, err := s.sessions.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		s.renderError(w, err)
		return
	}
	s.renderJSON(w, http.StatusCreated, struct {
		Token string `json:"token"`
	}{Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	token, err := s.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.renderError(w, err)
		return
	}
	s.renderJSON(w, http.StatusOK, struct {
		Token string `json:"token"`
	}{Token: token})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	var req struct {
		PeerID    string   `json:"peer_id"`
		MemberIDs []string `json:"member_ids"`
		Name      string   `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	var conversation domain.Conversation
	var err error
	if req.PeerID != "" {
		conversation, err = s.conversations.FindOrCreateDirect(r.Context(), userID, req.PeerID)
	} else {
		conversation, err = s.conversations.CreateGroup(r.Context(), userID, req.MemberIDs, req.Name)
	}
	if err != nil {
		s.renderError(w, err)
		return
	}
	s.renderJSON(w, http.StatusCreated, conversation)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.conversations.ListForUser(r.Context(), UserID(r.Context()))
	if err != nil {
		s.renderError(w, err)
		return
	}
	s.renderJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	summary, err := s.conversations.Get(r.Context(), UserID(r.Context()), conversationID)
	if err != nil {
		s.renderError(w, err)
		return
	}
	s.renderJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := s.conversations.AddParticipant(r.Context(), UserID(r.Context()), conversationID, req.UserID); err != nil {
		s.renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	userID := mux.Vars(r)["userID"]
	if err := s.conversations.RemoveParticipant(r.Context(), UserID(r.Context()), conversationID, userID); err != nil {
		s.renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Content     string `json:"content"`
		MessageType string `json:"message_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	message, err := s.messages.Append(r.Context(), conversationID, UserID(r.Context()),
		req.Content, domain.MessageType(req.MessageType))
	if err != nil {
		s.renderError(w, err)
		return
	}
	s.renderJSON(w, http.StatusCreated, message)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	query := r.URL.Query()
	var cursor *string
	if raw := query.Get("cursor"); raw != "" {
		cursor = &raw
	}
	limit := intQuery(query.Get("limit"), 50)
	direction := repositories.NewestFirst
	if query.Get("direction") == string(repositories.OldestFirst) {
		direction = repositories.OldestFirst
	}

	messages, next, err := s.messages.List(r.Context(), conversationID, UserID(r.Context()), cursor, limit, direction)
	if err != nil {
		s.renderError(w, err)
		return
	}
	s.renderJSON(w, http.StatusOK, struct {
		Messages   []domain.Message `json:"messages"`
		NextCursor *string          `json:"next_cursor"`
	}{Messages: messages, NextCursor: next})
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	notificationID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	notification, err := s.notifications.MarkRead(r.Context(), UserID(r.Context()), notificationID)
	if err != nil {
		s.renderError(w, err)
		return
	}
	s.renderJSON(w, http.StatusOK, notification)
}

func (s *Server) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	count, err := s.notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		s.renderError(w, err)
		return
	}
	s.counter.Reset(userID)
	s.renderJSON(w, http.StatusOK, struct {
		Updated int `json:"updated"`
	}{Updated: count})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	unreadOnly := query.Get("unread") == "true"
	limit := intQuery(query.Get("limit"), 100)
	notifications, err := s.notifications.List(r.Context(), UserID(r.Context()), unreadOnly, limit)
	if err != nil {
		s.renderError(w, err)
		return
	}
	s.renderJSON(w, http.StatusOK, notifications)
}

// handleUnreadCount serves the cached badge figure by default. With
// ?refresh=true the counter is rebuilt from storage first, the escape
// hatch for a client whose badge drifted.
func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	count := s.counter.Count(userID)
	if r.URL.Query().Get("refresh") == "true" {
		refreshed, err := s.counter.Refresh(r.Context(), userID)
		if err != nil {
			s.renderError(w, err)
			return
		}
		count = refreshed
	}
	s.renderJSON(w, http.StatusOK, struct {
		Unread int `json:"unread"`
	}{Unread: count})
}

func (s *Server) renderJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("Failed to encode response", "error", err)
	}
}

func (s *Server) renderError(w http.ResponseWriter, err error) {
	status := errors.MapToHTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "error", err)
		http.Error(w, "internal error", status)
		return
	}
	s.renderJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}

func (s *Server) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
