package store

import (
	"context"
	"database/sql"
	"errors"
)

const importedPrefix = "imported:"

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// ImportedFingerprint returns the content fingerprint recorded the last time
// the named file was imported, or "" if it never was.
func (s *Store) ImportedFingerprint(ctx context.Context, name string) (string, error) {
	return s.GetMetadata(ctx, importedPrefix+name)
}

// SetImportedFingerprint records a successful import of the named file.
func (s *Store) SetImportedFingerprint(ctx context.Context, name, fingerprint string) error {
	return s.SetMetadata(ctx, importedPrefix+name, fingerprint)
}
