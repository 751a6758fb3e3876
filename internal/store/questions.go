package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/studyhall/internal/model"
)

const questionColumns = `id, type, prompt, options, answer, explanation, tags, hint, code, difficulty, source`

// PutQuestion inserts a question or overwrites the one with the same id.
func (s *Store) PutQuestion(ctx context.Context, q model.Question) error {
	return s.PutQuestions(ctx, []model.Question{q})
}

// PutQuestions upserts a batch in one transaction: either every question
// becomes visible or none does. Within the batch the last question with a
// given id wins.
func (s *Store) PutQuestions(ctx context.Context, qs []model.Question) error {
	for _, q := range qs {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range qs {
			if err := putQuestion(ctx, tx, q); err != nil {
				return fmt.Errorf("put question %s: %w", q.ID, err)
			}
		}
		return nil
	})
}

func putQuestion(ctx context.Context, tx execer, q model.Question) error {
	options, err := json.Marshal(nonNil(q.Options))
	if err != nil {
		return err
	}
	answer, err := json.Marshal(q.Answer)
	if err != nil {
		return err
	}
	tags, err := json.Marshal(nonNil(q.Tags))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO questions (`+questionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   type = excluded.type, prompt = excluded.prompt, options = excluded.options,
		   answer = excluded.answer, explanation = excluded.explanation, tags = excluded.tags,
		   hint = excluded.hint, code = excluded.code, difficulty = excluded.difficulty,
		   source = excluded.source`,
		q.ID, q.Type, q.Prompt, string(options), string(answer), q.Explanation, string(tags),
		q.Hint, q.Code, q.Difficulty, q.Source,
	)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM question_tags WHERE question_id = ?`, q.ID); err != nil {
		return err
	}
	for _, tag := range q.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO question_tags (question_id, tag) VALUES (?, ?)`, q.ID, tag,
		); err != nil {
			return err
		}
	}
	return nil
}

// ListQuestions returns every question in insertion order.
func (s *Store) ListQuestions(ctx context.Context) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

// QuestionsByTag returns the questions carrying exactly the given tag.
func (s *Store) QuestionsByTag(ctx context.Context, tag string) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.id, q.type, q.prompt, q.options, q.answer, q.explanation, q.tags, q.hint, q.code, q.difficulty, q.source
		 FROM questions q JOIN question_tags t ON t.question_id = q.id
		 WHERE t.tag = ? ORDER BY q.rowid`, tag,
	)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

// GetQuestion returns a question by id.
func (s *Store) GetQuestion(ctx context.Context, id string) (model.Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return q, fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	return q, err
}

// DeleteQuestion removes a question and its tag index entries.
func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	return nil
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(sc scanner) (model.Question, error) {
	var (
		q                     model.Question
		options, answer, tags string
	)
	if err := sc.Scan(&q.ID, &q.Type, &q.Prompt, &options, &answer, &q.Explanation, &tags,
		&q.Hint, &q.Code, &q.Difficulty, &q.Source); err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return q, fmt.Errorf("decode options of %s: %w", q.ID, err)
	}
	if len(q.Options) == 0 {
		q.Options = nil
	}
	if err := json.Unmarshal([]byte(answer), &q.Answer); err != nil {
		return q, fmt.Errorf("decode answer of %s: %w", q.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &q.Tags); err != nil {
		return q, fmt.Errorf("decode tags of %s: %w", q.ID, err)
	}
	return q, nil
}

func collectQuestions(rows *sql.Rows) ([]model.Question, error) {
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
