package web

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"loft-messaging/domain/event"
	"loft-messaging/errors"
	"loft-messaging/sink"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// frame is the wire envelope for streamed events. Type names the payload
// shape so clients can dispatch without reflection.
type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// handleConversationSocket streams conversation-topic events to a
// participant. A non-participant is rejected before the upgrade, so the
// topic can never leak through a subscription.
func (s *Server) handleConversationSocket(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	userID := UserID(r.Context())
	isParticipant, err := s.convs.IsParticipant(conversationID, userID)
	if err != nil {
		s.renderError(w, err)
		return
	}
	if !isParticipant {
		s.renderError(w, errors.ErrNotAParticipant)
		return
	}
	s.serveSocket(w, r, event.ConversationTopic(conversationID))
}

// handleNotificationSocket streams the session user's own notification
// topic. The topic is derived from the token, never from the request, so
// a user cannot subscribe to someone else's notifications.
func (s *Server) handleNotificationSocket(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	s.serveSocket(w, r, event.UserNotificationsTopic(userID))
}

func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request, topic event.Topic) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	session := sink.NewSessionSink(s.log, s.sessionBufferSize, s.deliveryTimeout)
	subscriberID := uuid.New().String()
	s.orchestrator.Subscribe(subscriberID, topic, session)
	defer s.orchestrator.Unsubscribe(subscriberID, topic)

	// Read pump: the client sends nothing meaningful, but reading is the
	// only way to observe the close handshake.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case e := <-session.Events:
			if err := conn.WriteJSON(toFrame(e)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func toFrame(e event.DomainEvent) frame {
	switch ev := e.(type) {
	case event.MessageInserted:
		return frame{Type: "message_inserted", Payload: ev.Message}
	case event.ParticipantAdded:
		return frame{Type: "participant_added", Payload: ev}
	case event.ParticipantRemoved:
		return frame{Type: "participant_removed", Payload: ev}
	case event.NotificationInserted:
		return frame{Type: "notification_inserted", Payload: ev.Notification}
	case event.NotificationUpdated:
		return frame{Type: "notification_updated", Payload: ev.Notification}
	default:
		return frame{Type: "unknown", Payload: e}
	}
}
