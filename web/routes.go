package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"loft-messaging/auth"
	"loft-messaging/repositories"
	"loft-messaging/runtime"
	"loft-messaging/services"
)

func NewServer(
	sessions services.IAuthService,
	conversations services.IConversationService,
	messages services.IMessageService,
	notifications services.INotificationService,
	counter *services.UnreadCounter,
	convs repositories.IConversationRepository,
	orchestrator *runtime.Orchestrator,
	log *slog.Logger,
	sessionBufferSize int,
	deliveryTimeout time.Duration,
) *Server {
	return &Server{
		sessions:          sessions,
		conversations:     conversations,
		messages:          messages,
		notifications:     notifications,
		counter:           counter,
		convs:             convs,
		orchestrator:      orchestrator,
		log:               log,
		sessionBufferSize: sessionBufferSize,
		deliveryTimeout:   deliveryTimeout,
	}
}

// Router wires the API behind the JWT middleware. The /auth routes are the
// only public ones: they mint the tokens everything else demands.
// WebSocket routes skip the logging middleware: wrapping the response
// writer would hide the http.Hijacker the upgrade needs.
func (s *Server) Router(tokens *auth.TokenManager) *mux.Router {
	root := mux.NewRouter()

	public := root.PathPrefix("/auth").Subrouter()
	public.Use(LogRequests(s.log))
	public.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	public.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	ws := root.PathPrefix("/ws").Subrouter()
	ws.Use(Authenticate(tokens))
	ws.HandleFunc("/conversations/{id}", s.handleConversationSocket).Methods(http.MethodGet)
	ws.HandleFunc("/notifications", s.handleNotificationSocket).Methods(http.MethodGet)

	api := root.PathPrefix("/").Subrouter()
	api.Use(Authenticate(tokens), LogRequests(s.log))

	api.HandleFunc("/conversations", s.handleCreateConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations", s.handleListConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}", s.handleGetConversation).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", s.handleAppendMessage).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/messages", s.handleListMessages).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/participants", s.handleAddParticipant).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/participants/{userID}", s.handleRemoveParticipant).Methods(http.MethodDelete)

	api.HandleFunc("/notifications", s.handleListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/unread-count", s.handleUnreadCount).Methods(http.MethodGet)
	api.HandleFunc("/notifications/read-all", s.handleMarkAllNotificationsRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}/read", s.handleMarkNotificationRead).Methods(http.MethodPost)

	return root
}
