package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/quizlive/quizlive/internal/models"
)

// ErrQuizNotFound is returned when the requested quiz does not exist.
var ErrQuizNotFound = errors.New("quiz not found")

// Repository reads quiz definitions from Postgres. Sessions only ever take an
// immutable snapshot at creation, so this is a read-only collaborator.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const getQuizQuery = `
SELECT id, title, owner_id
FROM quizzes
WHERE id = $1
`

const listQuestionsQuery = `
SELECT title, options, correct_option_index, time_limit_sec
FROM quiz_questions
WHERE quiz_id = $1
ORDER BY position
`

// FetchSnapshot loads a quiz and its ordered questions as one immutable
// snapshot. Implements game.SnapshotSource.
func (r *Repository) FetchSnapshot(ctx context.Context, quizID uuid.UUID) (*models.QuizSnapshot, error) {
	snap := &models.QuizSnapshot{QuizID: quizID, FetchedAt: time.Now()}

	err := r.db.QueryRowContext(ctx, getQuizQuery, quizID).Scan(&snap.QuizID, &snap.Title, &snap.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, listQuestionsQuery, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quiz questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			title        string
			options      pqtype.NullRawMessage
			correctIndex int
			timeLimit    sql.NullInt32
		)
		if err := rows.Scan(&title, &options, &correctIndex, &timeLimit); err != nil {
			return nil, fmt.Errorf("failed to scan quiz question: %w", err)
		}

		q := models.Question{
			Title:              title,
			CorrectOptionIndex: correctIndex,
		}
		if options.Valid {
			if err := json.Unmarshal(options.RawMessage, &q.Options); err != nil {
				return nil, fmt.Errorf("failed to decode question options: %w", err)
			}
		}
		if timeLimit.Valid {
			q.TimeLimitSec = int(timeLimit.Int32)
		}
		snap.Questions = append(snap.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quiz questions: %w", err)
	}

	return snap, nil
}
