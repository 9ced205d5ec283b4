package models

import (
	"time"

	"github.com/google/uuid"
)

// PlayerResult is one row of the final score table handed to the
// persistence gateway.
type PlayerResult struct {
	Name     string   `json:"name"`
	Score    int      `json:"score"`
	Identity Identity `json:"identity"`
}

// GameResult is the durable record of a finished session.
type GameResult struct {
	QuizID     uuid.UUID      `json:"quiz_id"`
	HostID     string         `json:"host_id"`
	JoinCode   string         `json:"join_code"`
	Results    []PlayerResult `json:"results"`
	FinishedAt time.Time      `json:"finished_at"`
}
