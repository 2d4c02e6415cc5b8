// Package gateway bridges browser WebSocket clients onto session channels.
// Each browser connection gets its own channel manager, so presence join,
// grace-window leave, and reconnect reconciliation behave exactly as they do
// for a native client.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/realtime"
	"github.com/mcdev12/livepoll/go/internal/repository"
)

// VoteSink persists inbound participant votes. Satisfied by
// *repository.Repository.
type VoteSink interface {
	UpsertVote(ctx context.Context, req repository.UpsertVoteRequest) (*models.Vote, error)
}

// ConnectionManager manages WebSocket connections grouped by session.
type ConnectionManager struct {
	sessionConnections map[string]map[*Connection]bool
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	votes    VoteSink
}

// Connection represents one browser client attached to a session.
type Connection struct {
	ID            string
	SessionID     string
	ParticipantID string
	Role          string
	Conn          *websocket.Conn
	Send          chan []byte
	Manager       *ConnectionManager

	mu sync.Mutex
	rt *realtime.Manager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig, votes VoteSink) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		votes:  votes,
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection and
// starts its pumps. The caller attaches the channel manager afterwards.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, sessionID, participantID, role string) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		ParticipantID: participantID,
		Role:          role,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		Manager:       cm,
		ConnectedAt:   time.Now(),
		LastPing:      time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("participant_id", participantID).
		Str("session_id", sessionID).
		Str("role", role).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConnections[conn.SessionID] == nil {
		cm.sessionConnections[conn.SessionID] = make(map[*Connection]bool)
	}
	cm.sessionConnections[conn.SessionID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Int("total_connections", len(cm.sessionConnections[conn.SessionID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.sessionConnections[conn.SessionID]
	if !exists {
		cm.mu.Unlock()
		return
	}
	if _, exists := connections[conn]; !exists {
		cm.mu.Unlock()
		return
	}
	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.sessionConnections, conn.SessionID)
	}
	cm.mu.Unlock()

	// Closing the channel manager fires the presence leave, which starts the
	// grace window on every other client.
	conn.closeRealtime()

	log.Info().
		Str("connection_id", conn.ID).
		Str("participant_id", conn.ParticipantID).
		Str("session_id", conn.SessionID).
		Msg("connection unregistered")
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() (total int, perSession map[string]int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	perSession = make(map[string]int)
	for sessionID, connections := range cm.sessionConnections {
		perSession[sessionID] = len(connections)
		total += len(connections)
	}
	return total, perSession
}

// SetRealtime attaches the connection's channel manager so teardown can
// close it.
func (c *Connection) SetRealtime(rt *realtime.Manager) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rt = rt
}

func (c *Connection) closeRealtime() {
	c.mu.Lock()
	rt := c.rt
	c.rt = nil
	c.mu.Unlock()
	if rt != nil {
		rt.Close()
	}
}

// Enqueue queues a message for the client, dropping it when the send buffer
// is full. A full buffer means a slow or dead client; the write pump's
// deadline will reap it.
func (c *Connection) Enqueue(data []byte) {
	defer func() {
		// Send may already be closed by unregisterConnection.
		_ = recover()
	}()
	select {
	case c.Send <- data:
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Str("participant_id", c.ParticipantID).
			Msg("send buffer full, dropping message")
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("malformed message")
		return
	}

	switch msg.Type {
	case ClientMessageTypeVote:
		c.handleVote(msg.Vote)
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", msg.Type).
			Msg("ignoring unknown client message type")
	}
}

func (c *Connection) handleVote(vote *VoteMessage) {
	if vote == nil {
		c.sendError("vote payload missing")
		return
	}
	questionID, err := uuid.Parse(vote.QuestionID)
	if err != nil {
		c.sendError("invalid question_id")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = c.Manager.votes.UpsertVote(ctx, repository.UpsertVoteRequest{
		QuestionID:    questionID,
		ParticipantID: c.ParticipantID,
		Value:         vote.Value,
		Reason:        vote.Reason,
		DisplayName:   vote.DisplayName,
		LockedIn:      vote.LockedIn,
	})
	if err != nil {
		if errors.Is(err, repository.ErrVoteLockedIn) {
			c.sendError("vote is locked in")
			return
		}
		log.Error().
			Err(err).
			Str("connection_id", c.ID).
			Str("question_id", vote.QuestionID).
			Msg("failed to persist vote")
		c.sendError("vote not saved")
		return
	}

	c.sendAck(vote.QuestionID)
}

func (c *Connection) sendError(message string) {
	data, err := json.Marshal(ServerMessage{Type: ServerMessageTypeError, Message: message})
	if err != nil {
		return
	}
	c.Enqueue(data)
}

func (c *Connection) sendAck(questionID string) {
	data, err := json.Marshal(ServerMessage{Type: ServerMessageTypeVoteAck, QuestionID: questionID})
	if err != nil {
		return
	}
	c.Enqueue(data)
}
