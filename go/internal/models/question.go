package models

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType defines how a question is answered.
type QuestionType string

const (
	QuestionTypeAgreeDisagree  QuestionType = "agree_disagree"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
)

// QuestionStatus defines the lifecycle status of a question.
type QuestionStatus string

const (
	QuestionStatusPending  QuestionStatus = "pending"
	QuestionStatusActive   QuestionStatus = "active"
	QuestionStatusClosed   QuestionStatus = "closed"
	QuestionStatusRevealed QuestionStatus = "revealed"
)

// CanTransition reports whether a question may move from its current status to next.
// Revealed is terminal and reachable only from closed.
func (s QuestionStatus) CanTransition(next QuestionStatus) bool {
	switch s {
	case QuestionStatusPending:
		return next == QuestionStatusActive || next == QuestionStatusClosed
	case QuestionStatusActive:
		return next == QuestionStatusClosed
	case QuestionStatusClosed:
		return next == QuestionStatusRevealed
	default:
		return false
	}
}

// Question represents a single votable question within a session.
// Options is only meaningful for multiple_choice questions (at least two required).
type Question struct {
	ID        uuid.UUID      `json:"id"`
	SessionID uuid.UUID      `json:"session_id"`
	BatchID   *uuid.UUID     `json:"batch_id,omitempty"`
	Type      QuestionType   `json:"type"`
	Prompt    string         `json:"prompt"`
	Options   []string       `json:"options,omitempty"`
	Position  int            `json:"position"`
	Anonymous bool           `json:"anonymous"`
	Status    QuestionStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
