package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Store is the durable knowledge base: questions, syllabuses, quiz sessions
// and import metadata in a single SQLite file.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath and applies pending
// schema migrations. Use ":memory:" for a throwaway store.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if dbPath != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations are applied in order; the index+1 is the schema version. Never
// edit an applied entry, append a new one instead.
var migrations = []string{
	// 1: knowledge base collections with the tag index.
	`
	CREATE TABLE questions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		prompt TEXT NOT NULL,
		options TEXT NOT NULL DEFAULT '[]',
		answer TEXT NOT NULL DEFAULT '""',
		explanation TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		hint TEXT NOT NULL DEFAULT '',
		code TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE question_tags (
		question_id TEXT NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (question_id, tag),
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
	);
	CREATE INDEX idx_question_tags_tag ON question_tags(tag);

	CREATE TABLE syllabuses (
		id TEXT PRIMARY KEY,
		course_name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		term TEXT NOT NULL DEFAULT '',
		modules TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`,
	// 2: quiz sessions and their answers.
	`
	CREATE TABLE quiz_sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		questions TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		score REAL NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE session_answers (
		session_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		response TEXT NOT NULL,
		is_correct INTEGER,
		feedback TEXT NOT NULL DEFAULT '',
		score REAL,
		PRIMARY KEY (session_id, question_id),
		FOREIGN KEY (session_id) REFERENCES quiz_sessions(id) ON DELETE CASCADE
	);
	`,
}

// SchemaVersion is the version the code expects after migration.
func SchemaVersion() int { return len(migrations) }

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP)`,
	); err != nil {
		return err
	}
	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than supported %d", current, len(migrations))
	}
	for v := current + 1; v <= len(migrations); v++ {
		if err := s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migrations[v-1]); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, v)
			return err
		}); err != nil {
			return fmt.Errorf("apply migration %d: %w", v, err)
		}
		slog.Debug("applied schema migration", "version", v)
	}
	return nil
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v)
	if err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
