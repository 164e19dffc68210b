package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps every collection in one records table. seq preserves
// append order so lookups resolve to the first match.
type SQLiteStore struct {
	conn   *sql.DB
	logger *slog.Logger
	dbPath string
}

func OpenSQLite(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if parent := filepath.Dir(dbPath); parent != "." && parent != "" {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return nil, ioFailure(err, "create store directory")
		}
	}
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ioFailure(err, "open sqlite store")
	}
	// Pragmas apply per connection.
	conn.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, ioFailure(err, "set sqlite pragma")
		}
	}
	store := &SQLiteStore{conn: conn, logger: logger, dbPath: dbPath}
	if err := store.initializeSchema(); err != nil {
		_ = conn.Close()
		return nil, ioFailure(err, "initialize sqlite schema")
	}
	logger.Debug("sqlite store opened", "path", dbPath)
	return store, nil
}

func (s *SQLiteStore) initializeSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			plan_id TEXT NOT NULL DEFAULT '',
			recipe_id TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_records_collection_id ON records(collection, id);
		CREATE INDEX IF NOT EXISTS idx_records_collection_plan ON records(collection, plan_id);
		CREATE INDEX IF NOT EXISTS idx_records_collection_recipe ON records(collection, recipe_id);
	`
	_, err := s.conn.Exec(schema)
	return err
}

func (s *SQLiteStore) FindByID(ctx context.Context, collection Collection, id string) (json.RawMessage, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkID(collection, id); err != nil {
		return nil, err
	}
	query := `
		SELECT body FROM records
		WHERE collection = ? AND (id = ? OR plan_id = ? OR recipe_id = ?)
		ORDER BY seq ASC
		LIMIT 1
	`
	var body string
	err := s.conn.QueryRowContext(ctx, query, string(collection), id, id, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(collection, id)
	}
	if err != nil {
		return nil, ioFailure(err, "query record")
	}
	return json.RawMessage(body), nil
}

func (s *SQLiteStore) Append(ctx context.Context, collection Collection, record any) (json.RawMessage, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	encoded, keys, err := normalizeRecord(record)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO records (collection, id, plan_id, recipe_id, body)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.conn.ExecContext(ctx, query, string(collection), keys.ID, keys.PlanID, keys.RecipeID, string(encoded)); err != nil {
		return nil, ioFailure(err, "insert record")
	}
	s.logger.Debug("record appended", "collection", collection, "id", keys.ID)
	return encoded, nil
}

func (s *SQLiteStore) List(ctx context.Context, collection Collection) ([]json.RawMessage, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT body FROM records WHERE collection = ? ORDER BY seq ASC`, string(collection))
	if err != nil {
		return nil, ioFailure(err, "list records")
	}
	defer func() {
		_ = rows.Close()
	}()
	records := make([]json.RawMessage, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, ioFailure(err, "scan record")
		}
		records = append(records, json.RawMessage(body))
	}
	if err := rows.Err(); err != nil {
		return nil, ioFailure(err, "iterate records")
	}
	return records, nil
}

func (s *SQLiteStore) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close sqlite store %s: %w", s.dbPath, err)
	}
	return nil
}
