package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/studyhall/internal/model"
)

// CreateSession stores a new quiz session. The question list is frozen at
// this point; later edits of the question bank do not affect it.
func (s *Store) CreateSession(ctx context.Context, sess model.QuizSession) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	questions, err := json.Marshal(nonNil(sess.Questions))
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO quiz_sessions (id, title, questions, completed, score, started_at, finished_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, sess.Title, string(questions), sess.Completed, sess.Score, sess.StartedAt.UTC(), utcPtr(sess.FinishedAt),
		)
		if err != nil {
			return err
		}
		for _, a := range sess.Answers {
			if err := saveAnswer(ctx, tx, sess.ID, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSession returns a session with all recorded answers.
func (s *Store) GetSession(ctx context.Context, id string) (model.QuizSession, error) {
	var (
		sess      model.QuizSession
		questions string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, questions, completed, score, started_at, finished_at FROM quiz_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Title, &questions, &sess.Completed, &sess.Score, &sess.StartedAt, &sess.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sess, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return sess, err
	}
	if err := json.Unmarshal([]byte(questions), &sess.Questions); err != nil {
		return sess, fmt.Errorf("decode questions of session %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id, response, is_correct, feedback, score FROM session_answers WHERE session_id = ?`, id)
	if err != nil {
		return sess, err
	}
	defer rows.Close()
	sess.Answers = make(map[string]model.UserAnswer)
	for rows.Next() {
		var (
			a         model.UserAnswer
			response  string
			isCorrect sql.NullBool
			score     sql.NullFloat64
		)
		if err := rows.Scan(&a.QuestionID, &response, &isCorrect, &a.Feedback, &score); err != nil {
			return sess, err
		}
		if err := json.Unmarshal([]byte(response), &a.Response); err != nil {
			return sess, fmt.Errorf("decode response for %s: %w", a.QuestionID, err)
		}
		if isCorrect.Valid {
			a.IsCorrect = &isCorrect.Bool
		}
		if score.Valid {
			a.Score = &score.Float64
		}
		sess.Answers[a.QuestionID] = a
	}
	return sess, rows.Err()
}

// SaveAnswer records (or replaces) the answer for one question of a session.
func (s *Store) SaveAnswer(ctx context.Context, sessionID string, a model.UserAnswer) error {
	return saveAnswer(ctx, s.db, sessionID, a)
}

func saveAnswer(ctx context.Context, ex execer, sessionID string, a model.UserAnswer) error {
	response, err := json.Marshal(a.Response)
	if err != nil {
		return err
	}
	var isCorrect, score any
	if a.IsCorrect != nil {
		isCorrect = *a.IsCorrect
	}
	if a.Score != nil {
		score = *a.Score
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO session_answers (session_id, question_id, response, is_correct, feedback, score)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, question_id) DO UPDATE SET
		   response = excluded.response, is_correct = excluded.is_correct,
		   feedback = excluded.feedback, score = excluded.score`,
		sessionID, a.QuestionID, string(response), isCorrect, a.Feedback, score,
	)
	return err
}

// FinalizeSession marks a session complete with its aggregate score.
func (s *Store) FinalizeSession(ctx context.Context, id string, score float64, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quiz_sessions SET completed = 1, score = ?, finished_at = ? WHERE id = ?`,
		score, finishedAt.UTC(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// SessionSummary is a session without its questions and answers.
type SessionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	Score     float64   `json:"score"`
	StartedAt time.Time `json:"startedAt"`
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, completed, score, started_at FROM quiz_sessions ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionSummary
	for rows.Next() {
		var ss SessionSummary
		if err := rows.Scan(&ss.ID, &ss.Title, &ss.Completed, &ss.Score, &ss.StartedAt); err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
