package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/realtime"
	"github.com/mcdev12/livepoll/go/internal/realtime/events"
	"github.com/mcdev12/livepoll/go/internal/realtime/presence"
)

// forwardedEvents is every broadcast type mirrored to browser clients.
var forwardedEvents = []events.EventType{
	events.EventTypeSessionLobby,
	events.EventTypeSessionActive,
	events.EventTypeSessionEnded,
	events.EventTypeQuestionActivated,
	events.EventTypeVotingClosed,
	events.EventTypeResultsRevealed,
	events.EventTypeBatchActivated,
	events.EventTypeBatchClosed,
	events.EventTypeSlideActivated,
}

// SessionReader looks up sessions for connection admission. Satisfied by
// *repository.Repository.
type SessionReader interface {
	GetSessionByPublicID(ctx context.Context, publicID string) (*models.Session, error)
}

// WebSocketHandler handles WebSocket upgrade requests for session connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	transport         realtime.Transport
	sessions          SessionReader
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(cm *ConnectionManager, transport realtime.Transport, sessions SessionReader) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		transport:         transport,
		sessions:          sessions,
	}
}

// HandleSessionConnection admits a browser client into a session. Each
// connection gets its own channel manager so presence and reconnect recovery
// work per participant, not per gateway.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	participantID := r.URL.Query().Get("participant_id")
	if participantID == "" {
		http.Error(w, "participant_id is required", http.StatusBadRequest)
		return
	}

	role := r.URL.Query().Get("role")
	if role == "" {
		role = "participant"
	}
	if role != "participant" && role != "admin" && role != "presentation" {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	sess, err := h.sessions.GetSessionByPublicID(ctx, sessionID)
	cancel()
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	// Participants can only join once the admin opens the lobby.
	if role == "participant" && !sess.Status.IsLive() && sess.Status != models.SessionStatusEnded {
		http.Error(w, "session is not open", http.StatusConflict)
		return
	}

	conn, err := h.connectionManager.UpgradeConnection(w, r, sessionID, participantID, role)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("participant_id", participantID).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	rt := realtime.NewManager(h.transport, realtime.Config{
		SessionID: sessionID,
		Presence: &presence.Meta{
			Key:  participantID,
			Role: presenceRole(role),
		},
		Setup: func(ch realtime.Channel) {
			registerForwarders(ch, conn)
		},
	})

	rt.OnStatusChange(func(_, next realtime.Status) {
		data, err := json.Marshal(ServerMessage{Type: ServerMessageTypeStatus, Status: string(next)})
		if err != nil {
			return
		}
		conn.Enqueue(data)
	})

	conn.SetRealtime(rt)

	// The request context dies with this handler; the channel outlives it.
	if err := rt.Open(context.Background()); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("participant_id", participantID).
			Msg("failed to open session channel")
		return
	}

	if tracker := rt.Tracker(); tracker != nil {
		tracker.OnCountChange(func(participants int) {
			data, err := json.Marshal(ServerMessage{Type: ServerMessageTypePresence, Participants: participants})
			if err != nil {
				return
			}
			conn.Enqueue(data)
		})
	}
}

// registerForwarders mirrors every broadcast envelope verbatim onto the
// client socket. Registered via Setup, before the subscribe handshake.
func registerForwarders(ch realtime.Channel, conn *Connection) {
	for _, eventType := range forwardedEvents {
		ch.OnBroadcast(eventType, func(env *events.Envelope) {
			data, err := json.Marshal(env)
			if err != nil {
				log.Error().Err(err).Str("event_type", string(env.Type)).Msg("failed to marshal envelope")
				return
			}
			conn.Enqueue(data)
		})
	}
}

// presenceRole maps connection roles onto presence roles. Only true
// participants count toward the participant total; admin and presentation
// screens are excluded.
func presenceRole(role string) presence.Role {
	if role == "participant" {
		return presence.RoleParticipant
	}
	return presence.RoleAdmin
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, perSession := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total_connections":   total,
		"active_sessions":     len(perSession),
		"session_connections": perSession,
	})
}

// HandleHealth reports liveness.
func (h *WebSocketHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// RegisterRoutes registers gateway routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleSessionConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
	mux.HandleFunc("/health", h.HandleHealth)
}
