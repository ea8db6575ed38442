package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Named keys persisted between sessions. These identify the cached passkey
// credential and its derived smart wallet; they are cleared only on explicit
// new-wallet creation so a fresh ceremony cannot collide with stale state.
const (
	KeyCredentialID        = "credential_id"
	KeySmartWallet         = "smart_wallet"
	KeyCredentialPublicKey = "credential_public_key"
)

// CredentialKeys lists every key cleared by ClearCredentials.
var CredentialKeys = []string{
	KeyCredentialID,
	KeySmartWallet,
	KeyCredentialPublicKey,
}

// Store persists small named values in a local sqlite file.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS wallet_keys (
	name       TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Open opens (creating if necessary) the keystore at the given path.
// Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keystore: %w", err)
	}

	// The keystore is tiny and single-user; one connection avoids
	// sqlite write contention entirely.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize keystore schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the value for a named key, or "" if the key is not set.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM wallet_keys WHERE name = ?`, name,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key %q: %w", name, err)
	}
	return value, nil
}

// Set stores the value for a named key, replacing any existing value.
func (s *Store) Set(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wallet_keys (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", name, err)
	}
	return nil
}

// Delete removes a named key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wallet_keys WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete key %q: %w", name, err)
	}
	return nil
}

// ClearCredentials removes all cached credential identifiers. Called before
// a fresh wallet creation so a prior device/session cannot interfere with
// the new credential ceremony.
func (s *Store) ClearCredentials(ctx context.Context) error {
	for _, name := range CredentialKeys {
		if err := s.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
