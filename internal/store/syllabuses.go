package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/studyhall/internal/model"
)

// PutSyllabus inserts a syllabus or overwrites the one with the same id.
func (s *Store) PutSyllabus(ctx context.Context, sy model.Syllabus) error {
	return s.PutSyllabuses(ctx, []model.Syllabus{sy})
}

// PutSyllabuses upserts a batch in one transaction.
func (s *Store) PutSyllabuses(ctx context.Context, ss []model.Syllabus) error {
	return s.PutKnowledge(ctx, nil, ss)
}

// PutKnowledge writes questions and syllabuses in a single transaction, so a
// backup import is either fully visible or not at all.
func (s *Store) PutKnowledge(ctx context.Context, qs []model.Question, ss []model.Syllabus) error {
	for _, q := range qs {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	for _, sy := range ss {
		if err := sy.Validate(); err != nil {
			return err
		}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range qs {
			if err := putQuestion(ctx, tx, q); err != nil {
				return fmt.Errorf("put question %s: %w", q.ID, err)
			}
		}
		for _, sy := range ss {
			if err := putSyllabus(ctx, tx, sy); err != nil {
				return fmt.Errorf("put syllabus %s: %w", sy.ID, err)
			}
		}
		return nil
	})
}

func putSyllabus(ctx context.Context, tx execer, sy model.Syllabus) error {
	sy.Normalize()
	modules, err := json.Marshal(sy.Modules)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO syllabuses (id, course_name, description, term, modules, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   course_name = excluded.course_name, description = excluded.description,
		   term = excluded.term, modules = excluded.modules, created_at = excluded.created_at`,
		sy.ID, sy.CourseName, sy.Description, sy.Term, string(modules), sy.CreatedAt.UTC(),
	)
	return err
}

// ListSyllabuses returns every syllabus in insertion order.
func (s *Store) ListSyllabuses(ctx context.Context) ([]model.Syllabus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_name, description, term, modules, created_at FROM syllabuses ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Syllabus
	for rows.Next() {
		sy, err := scanSyllabus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sy)
	}
	return out, rows.Err()
}

// GetSyllabus returns a syllabus by id.
func (s *Store) GetSyllabus(ctx context.Context, id string) (model.Syllabus, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, course_name, description, term, modules, created_at FROM syllabuses WHERE id = ?`, id)
	sy, err := scanSyllabus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return sy, fmt.Errorf("syllabus %s: %w", id, ErrNotFound)
	}
	return sy, err
}

// DeleteSyllabus removes a syllabus.
func (s *Store) DeleteSyllabus(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM syllabuses WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("syllabus %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanSyllabus(sc scanner) (model.Syllabus, error) {
	var (
		sy      model.Syllabus
		modules string
	)
	if err := sc.Scan(&sy.ID, &sy.CourseName, &sy.Description, &sy.Term, &modules, &sy.CreatedAt); err != nil {
		return sy, err
	}
	if err := json.Unmarshal([]byte(modules), &sy.Modules); err != nil {
		return sy, fmt.Errorf("decode modules of %s: %w", sy.ID, err)
	}
	sy.Normalize()
	return sy, nil
}
