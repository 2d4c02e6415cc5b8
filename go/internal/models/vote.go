package models

import (
	"time"

	"github.com/google/uuid"
)

// Vote is one participant's answer to a question. At most one vote exists
// per (question, participant) pair; later votes update the existing row.
type Vote struct {
	ID            uuid.UUID `json:"id"`
	QuestionID    uuid.UUID `json:"question_id"`
	ParticipantID string    `json:"participant_id"`
	Value         string    `json:"value"`
	Reason        *string   `json:"reason,omitempty"`
	DisplayName   *string   `json:"display_name,omitempty"`
	LockedIn      bool      `json:"locked_in"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
