package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus defines the lifecycle status of a polling session.
type SessionStatus string

const (
	SessionStatusDraft  SessionStatus = "draft"
	SessionStatusLobby  SessionStatus = "lobby"
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

// sessionOrder encodes the strictly-forward lifecycle: draft -> lobby -> active -> ended.
var sessionOrder = map[SessionStatus]int{
	SessionStatusDraft:  0,
	SessionStatusLobby:  1,
	SessionStatusActive: 2,
	SessionStatusEnded:  3,
}

// CanTransition reports whether a session may move from its current status to next.
// Transitions never regress; ended is terminal.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	from, ok := sessionOrder[s]
	if !ok {
		return false
	}
	to, ok := sessionOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// IsLive reports whether the session is visible to participants (lobby or active).
func (s SessionStatus) IsLive() bool {
	return s == SessionStatusLobby || s == SessionStatusActive
}

// Session represents one live polling event.
type Session struct {
	ID             uuid.UUID     `json:"id"`
	PublicID       string        `json:"public_id"`
	AdminSecret    string        `json:"-"`
	Title          string        `json:"title"`
	Status         SessionStatus `json:"status"`
	ReasonsEnabled bool          `json:"reasons_enabled"`
	TimerExpiresAt *time.Time    `json:"timer_expires_at,omitempty"`
	ActiveItemID   *uuid.UUID    `json:"active_item_id,omitempty"`
	CreatedBy      string        `json:"created_by"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
