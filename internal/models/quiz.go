package models

import (
	"time"

	"github.com/google/uuid"
)

// Question is a single question inside a quiz snapshot.
type Question struct {
	Title              string   `json:"title"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_option_index"`
	TimeLimitSec       int      `json:"time_limit_sec"`
}

// QuizSnapshot is an immutable copy of a quiz taken at session creation.
// Later edits to the source quiz never affect a running session.
type QuizSnapshot struct {
	QuizID    uuid.UUID  `json:"quiz_id"`
	Title     string     `json:"title"`
	OwnerID   string     `json:"owner_id"`
	Questions []Question `json:"questions"`
	FetchedAt time.Time  `json:"fetched_at"`
}
