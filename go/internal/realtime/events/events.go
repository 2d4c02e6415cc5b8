// Package events defines the broadcast protocol shared by the admin,
// participant, and presentation surfaces. Payloads are flat and fully
// self-contained: every field needed to act on an event rides inline, so a
// handler never has to dereference mutable external state.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names one broadcast event on a session topic.
type EventType string

const (
	EventTypeSessionLobby      EventType = "session_lobby"
	EventTypeSessionActive     EventType = "session_active"
	EventTypeSessionEnded      EventType = "session_ended"
	EventTypeQuestionActivated EventType = "question_activated"
	EventTypeVotingClosed      EventType = "voting_closed"
	EventTypeResultsRevealed   EventType = "results_revealed"
	EventTypeBatchActivated    EventType = "batch_activated"
	EventTypeBatchClosed       EventType = "batch_closed"
	EventTypeSlideActivated    EventType = "slide_activated"
)

// Envelope wraps every payload sent on a session topic.
type Envelope struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SessionLobbyPayload carries no fields; the event itself is the signal.
type SessionLobbyPayload struct{}

// SessionActivePayload carries no fields.
type SessionActivePayload struct{}

// SessionEndedPayload carries no fields.
type SessionEndedPayload struct{}

// QuestionActivatedPayload announces that voting opened on a question.
// TimerSeconds is nil or zero when no countdown accompanies the question.
type QuestionActivatedPayload struct {
	QuestionID   string `json:"question_id"`
	TimerSeconds *int   `json:"timer_seconds"`
}

// VotingClosedPayload announces that voting closed on a question.
type VotingClosedPayload struct {
	QuestionID string `json:"question_id"`
}

// ResultsRevealedPayload announces that results are showing on the main
// screen. Distinct from VotingClosed: participants never see charts, this
// only changes their waiting-state message.
type ResultsRevealedPayload struct {
	QuestionID string `json:"question_id"`
}

// BatchActivatedPayload announces that voting opened on a batch of questions.
type BatchActivatedPayload struct {
	BatchID      string   `json:"batch_id"`
	QuestionIDs  []string `json:"question_ids"`
	TimerSeconds *int     `json:"timer_seconds"`
}

// BatchClosedPayload announces that voting closed on a batch.
type BatchClosedPayload struct {
	BatchID string `json:"batch_id"`
}

// SlideActivatedPayload announces a presentation slide change.
type SlideActivatedPayload struct {
	ItemID    string `json:"item_id"`
	Direction string `json:"direction"`
}

// ParsePayload decodes an envelope's payload into the struct for its type.
func ParsePayload(env *Envelope) (interface{}, error) {
	switch env.Type {
	case EventTypeSessionLobby:
		return SessionLobbyPayload{}, nil

	case EventTypeSessionActive:
		return SessionActivePayload{}, nil

	case EventTypeSessionEnded:
		return SessionEndedPayload{}, nil

	case EventTypeQuestionActivated:
		var payload QuestionActivatedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeVotingClosed:
		var payload VotingClosedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeResultsRevealed:
		var payload ResultsRevealedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeBatchActivated:
		var payload BatchActivatedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeBatchClosed:
		var payload BatchClosedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeSlideActivated:
		var payload SlideActivatedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", env.Type)
	}
}

// TimerSecondsFromDuration converts an optional countdown duration into the
// wire representation. Nil means no timer.
func TimerSecondsFromDuration(d *time.Duration) *int {
	if d == nil {
		return nil
	}
	sec := int(d.Seconds())
	return &sec
}
