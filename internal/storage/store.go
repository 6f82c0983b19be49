// Package storage persists runs and their edit versions. The in-memory
// backend serves tests and local renders; SQLite and PostgreSQL back the
// server.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ivlev/democlip/internal/director"
	"github.com/ivlev/democlip/internal/model"
)

// Store is implemented by every backend.
type Store interface {
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	// UpdateRun applies fn to the current record and saves the result
	// atomically. An error from fn aborts the update.
	UpdateRun(ctx context.Context, id string, fn func(*model.Run) error) (*model.Run, error)

	InsertVersion(ctx context.Context, v *model.Version) error
	GetVersion(ctx context.Context, id string) (*model.Version, error)
	ListVersions(ctx context.Context, runID string) ([]*model.Version, error)
	UpdateVersion(ctx context.Context, v *model.Version, expect model.VersionStatus) error

	Ping(ctx context.Context) error
	Close() error
}

// Open selects a backend by driver name.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "memory", "":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(ctx, dsn)
	case "postgres":
		return NewPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

func encodeSections(sections []director.Section) ([]byte, error) {
	if sections == nil {
		sections = []director.Section{}
	}
	return json.Marshal(sections)
}

func decodeSections(data []byte) ([]director.Section, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var sections []director.Section
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	if len(sections) == 0 {
		return nil, nil
	}
	return sections, nil
}

func encodeOperations(ops []model.Operation) ([]byte, error) {
	if ops == nil {
		ops = []model.Operation{}
	}
	return json.Marshal(ops)
}

func decodeOperations(data []byte) ([]model.Operation, error) {
	ops := []model.Operation{}
	if len(data) == 0 {
		return ops, nil
	}
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("decode operations: %w", err)
	}
	return ops, nil
}
