package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	coreerrors "github.com/davidahmann/contextos/core/errors"
	"github.com/davidahmann/contextos/core/fsx"
)

// FileStore keeps one JSONL file per collection under dir.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileStore{dir: dir, logger: logger}
}

func (s *FileStore) path(collection Collection) string {
	return filepath.Join(s.dir, string(collection)+".jsonl")
}

func (s *FileStore) FindByID(ctx context.Context, collection Collection, id string) (json.RawMessage, error) {
	if err := checkID(collection, id); err != nil {
		return nil, err
	}
	records, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		keys, err := readKeys(record)
		if err != nil {
			return nil, corrupt(collection, err)
		}
		if keys.matches(id) {
			return record, nil
		}
	}
	return nil, notFound(collection, id)
}

func (s *FileStore) Append(ctx context.Context, collection Collection, record any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	encoded, keys, err := normalizeRecord(record)
	if err != nil {
		return nil, err
	}
	if err := fsx.AppendLineLocked(s.path(collection), encoded, 0o600); err != nil {
		return nil, ioFailure(err, "append record")
	}
	s.logger.Debug("record appended", "collection", collection, "id", keys.ID)
	return encoded, nil
}

func (s *FileStore) List(ctx context.Context, collection Collection) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	lines, err := fsx.ReadLines(s.path(collection))
	if err != nil {
		return nil, ioFailure(err, "read collection")
	}
	records := make([]json.RawMessage, 0, len(lines))
	for _, line := range lines {
		records = append(records, json.RawMessage(line))
	}
	return records, nil
}

func (s *FileStore) Close() error {
	return nil
}

func corrupt(collection Collection, err error) error {
	return coreerrors.Wrap(fmt.Errorf("%s: decode stored record: %w", collection, err), coreerrors.CategoryIOFailure, codeStoreCorrupt, "inspect the collection file for a malformed line", false)
}
