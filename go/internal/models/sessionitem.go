package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionItemKind distinguishes what a sequence item points at.
type SessionItemKind string

const (
	SessionItemKindBatch SessionItemKind = "batch"
	SessionItemKindSlide SessionItemKind = "slide"
)

// SessionItem is a position-ordered envelope unifying batches and slides
// for presentation ordering. RefID points at the batch or slide row.
type SessionItem struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Kind      SessionItemKind `json:"kind"`
	RefID     uuid.UUID       `json:"ref_id"`
	Position  int             `json:"position"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Slide is a static presentation page referenced by a session item.
type Slide struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Title     string    `json:"title"`
	ImagePath string    `json:"image_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
