package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_signal_trader/internal/domain"
)

// SQLiteStore persists exchange API credentials. Key material is
// encrypted before it touches the database file.
type SQLiteStore struct {
	db     *sql.DB
	cipher *SecretCipher
}

func NewSQLiteStore(dbPath string, cipher *SecretCipher) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db, cipher: cipher}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `CREATE TABLE IF NOT EXISTS credentials (
		exchange TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to exec query %s: %w", query, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, exchange string, creds domain.Credentials) error {
	plain, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	payload, err := s.cipher.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("encrypt credentials: %w", err)
	}

	query := `INSERT INTO credentials (exchange, payload, updated_at)
			  VALUES (?, ?, ?)
			  ON CONFLICT(exchange) DO UPDATE SET
			  payload=excluded.payload,
			  updated_at=excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query, exchange, payload, time.Now().UTC())
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, exchange string) (*domain.Credentials, error) {
	row := s.db.QueryRowContext(ctx, "SELECT payload FROM credentials WHERE exchange = ?", exchange)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	plain, err := s.cipher.Decrypt(payload)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials for %s: %w", exchange, err)
	}

	var creds domain.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, exchange string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE exchange = ?", exchange)
	return err
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT exchange FROM credentials ORDER BY exchange")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
