package results

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/quizlive/quizlive/internal/models"
)

// Repository persists finished games. Implements game.ResultSink.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertResultQuery = `
INSERT INTO game_results (id, quiz_id, host_id, join_code, final_scores, finished_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

// SaveResult writes one row per finished game, with the ranked roster as a
// JSONB document. The session is already gone from memory by the time this
// runs, so the row is the only surviving record.
func (r *Repository) SaveResult(ctx context.Context, result models.GameResult) error {
	scores, err := json.Marshal(result.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal final scores: %w", err)
	}

	_, err = r.pool.Exec(ctx, insertResultQuery,
		uuid.New(),
		result.QuizID,
		result.HostID,
		result.JoinCode,
		scores,
		result.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert game result: %w", err)
	}

	log.Info().
		Str("quiz_id", result.QuizID.String()).
		Str("join_code", result.JoinCode).
		Int("players", len(result.Results)).
		Msg("game result persisted")
	return nil
}
