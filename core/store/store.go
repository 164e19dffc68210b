// Package store persists contextos records (recipes, plans, reports) as JSON
// documents grouped into named collections.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	coreerrors "github.com/davidahmann/contextos/core/errors"
	"github.com/davidahmann/contextos/core/fsx"
	"github.com/google/uuid"
)

type Collection string

const (
	Recipes                Collection = "recipes"
	ContextPlans           Collection = "context_plans"
	RecipeDiffs            Collection = "recipe_diffs"
	DriftReports           Collection = "drift_reports"
	InvariantReports       Collection = "invariant_reports"
	RegressionReports      Collection = "regression_reports"
	ComparisonReports      Collection = "comparison_reports"
	CandidatePoolSnapshots Collection = "candidate_pool_snapshots"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"

	DefaultDir        = ".contextos/data"
	DefaultSQLiteFile = "contextos.db"

	codeInvalidCollection = "invalid_collection"
	codeInvalidRecord     = "invalid_record"
	codeInvalidRecordID   = "invalid_record_id"
	codeStoreIO           = "store_io"
	codeStoreCorrupt      = "store_corrupt"
	codeStoreLocked       = "store_locked"
)

var knownCollections = map[Collection]struct{}{
	Recipes:                {},
	ContextPlans:           {},
	RecipeDiffs:            {},
	DriftReports:           {},
	InvariantReports:       {},
	RegressionReports:      {},
	ComparisonReports:      {},
	CandidatePoolSnapshots: {},
}

// Store is the record store contract. FindByID returns the first record in
// append order whose id, plan_id or recipe_id equals id.
type Store interface {
	FindByID(ctx context.Context, collection Collection, id string) (json.RawMessage, error)
	Append(ctx context.Context, collection Collection, record any) (json.RawMessage, error)
	List(ctx context.Context, collection Collection) ([]json.RawMessage, error)
	Close() error
}

type Options struct {
	Backend    string
	Dir        string
	SQLitePath string
	Logger     *slog.Logger
}

// Open returns the backend named by opts.Backend; empty means file.
func Open(opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		dir = DefaultDir
	}
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendFile:
		return &FileStore{dir: dir, logger: logger}, nil
	case BackendSQLite:
		path := strings.TrimSpace(opts.SQLitePath)
		if path == "" {
			path = filepath.Join(dir, DefaultSQLiteFile)
		}
		return OpenSQLite(path, logger)
	default:
		return nil, coreerrors.Wrap(
			fmt.Errorf("unsupported store backend %q", opts.Backend),
			coreerrors.CategoryInvalidInput,
			"invalid_store_backend",
			"use store.backend file or sqlite",
			false,
		)
	}
}

type recordKeys struct {
	ID       string `json:"id"`
	PlanID   string `json:"plan_id"`
	RecipeID string `json:"recipe_id"`
}

// matches ignores blank keys so a record without a plan_id or recipe_id is
// never found by an empty lookup.
func (k recordKeys) matches(id string) bool {
	if id == "" {
		return false
	}
	return k.ID == id || k.PlanID == id || k.RecipeID == id
}

func checkID(collection Collection, id string) error {
	if strings.TrimSpace(id) != "" {
		return nil
	}
	return coreerrors.Wrap(
		fmt.Errorf("%s: record id is required", collection),
		coreerrors.CategoryInvalidInput,
		codeInvalidRecordID,
		"pass a non-empty record id",
		false,
	)
}

func readKeys(raw []byte) (recordKeys, error) {
	var keys recordKeys
	if err := json.Unmarshal(raw, &keys); err != nil {
		return recordKeys{}, err
	}
	return keys, nil
}

// normalizeRecord encodes record as a JSON object and assigns a uuid id when
// the object has none.
func normalizeRecord(record any) (json.RawMessage, recordKeys, error) {
	encoded, err := json.Marshal(record)
	if err != nil {
		return nil, recordKeys{}, coreerrors.InvalidInput(fmt.Errorf("encode record: %w", err), codeInvalidRecord)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &fields); err != nil || fields == nil {
		return nil, recordKeys{}, coreerrors.InvalidInput(errors.New("record must be a JSON object"), codeInvalidRecord)
	}
	keys, err := readKeys(encoded)
	if err != nil {
		return nil, recordKeys{}, coreerrors.InvalidInput(fmt.Errorf("decode record keys: %w", err), codeInvalidRecord)
	}
	if strings.TrimSpace(keys.ID) == "" {
		keys.ID = uuid.NewString()
		idJSON, _ := json.Marshal(keys.ID)
		fields["id"] = idJSON
		encoded, err = json.Marshal(fields)
		if err != nil {
			return nil, recordKeys{}, coreerrors.InvalidInput(fmt.Errorf("encode record: %w", err), codeInvalidRecord)
		}
	}
	return encoded, keys, nil
}

func checkCollection(collection Collection) error {
	if _, ok := knownCollections[collection]; ok {
		return nil
	}
	return coreerrors.Wrap(
		fmt.Errorf("unknown collection %q", collection),
		coreerrors.CategoryInvalidInput,
		codeInvalidCollection,
		"use one of the contextos record collections",
		false,
	)
}

func notFound(collection Collection, id string) error {
	return coreerrors.NotFound(fmt.Errorf("%s: no record with id %q", collection, id))
}

func ioFailure(err error, action string) error {
	if errors.Is(err, fsx.ErrLockTimeout) {
		return coreerrors.Wrap(fmt.Errorf("%s: %w", action, err), coreerrors.CategoryStateContention, codeStoreLocked, "retry after the concurrent writer finishes", true)
	}
	return coreerrors.Wrap(fmt.Errorf("%s: %w", action, err), coreerrors.CategoryIOFailure, codeStoreIO, "check the store location and permissions", false)
}
