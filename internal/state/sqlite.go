package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chrissnell/homewx/internal/types"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

const createStatesTableSQL = `CREATE TABLE IF NOT EXISTS states (
	id      TEXT PRIMARY KEY,
	payload BLOB NOT NULL
)`

// SQLiteBackend persists states in a SQLite file so that tracker baselines
// and daily totals survive a restart. Each row holds the msgpack-encoded state.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (and if needed creates) the database at path.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	// modernc's driver serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to state database: %w", err)
	}

	if _, err := db.ExecContext(ctx, createStatesTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create states table: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Get(ctx context.Context, id string) (*types.State, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM states WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state %s: %w", id, err)
	}

	var st types.State
	if err := msgpack.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("failed to decode state %s: %w", id, err)
	}
	return &st, nil
}

func (s *SQLiteBackend) Put(ctx context.Context, st types.State) error {
	payload, err := msgpack.Marshal(&st)
	if err != nil {
		return fmt.Errorf("failed to encode state %s: %w", st.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO states (id, payload) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`,
		st.ID, payload)
	if err != nil {
		return fmt.Errorf("failed to write state %s: %w", st.ID, err)
	}
	return nil
}

func (s *SQLiteBackend) List(ctx context.Context) ([]types.State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM states ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	defer rows.Close()

	var out []types.State
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		var st types.State
		if err := msgpack.Unmarshal(payload, &st); err != nil {
			return nil, fmt.Errorf("failed to decode state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
