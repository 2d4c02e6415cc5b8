package models

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus defines the lifecycle status of a batch.
type BatchStatus string

const (
	BatchStatusPending BatchStatus = "pending"
	BatchStatusActive  BatchStatus = "active"
	BatchStatusClosed  BatchStatus = "closed"
)

// CanTransition reports whether a batch may move from its current status to next.
func (s BatchStatus) CanTransition(next BatchStatus) bool {
	switch s {
	case BatchStatusPending:
		return next == BatchStatusActive || next == BatchStatusClosed
	case BatchStatusActive:
		return next == BatchStatusClosed
	default:
		return false
	}
}

// Batch is an ordered group of questions activated and closed as a unit.
type Batch struct {
	ID        uuid.UUID   `json:"id"`
	SessionID uuid.UUID   `json:"session_id"`
	Title     string      `json:"title"`
	Position  int         `json:"position"`
	Status    BatchStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
