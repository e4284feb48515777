// Package storage persists session snapshots.
package storage

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/projectcards/project-game-server/internal/errors"
	"github.com/projectcards/project-game-server/internal/game"
	"go.uber.org/zap"
)

// Store saves and loads session snapshots by session id. Save overwrites.
type Store interface {
	Save(ctx context.Context, snap *game.Snapshot) error
	Load(ctx context.Context, id string) (*game.Snapshot, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Drivers lists the supported drivers.
var Drivers = []string{DriverMemory, DriverFile, DriverSQLite, DriverPostgres}

// Options select and configure a store.
type Options struct {
	Driver string
	// Path is the directory for the file driver and the database file for
	// sqlite.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string
}

// Open builds the store named by opts.Driver.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))

	var (
		store Store
		err   error
	)
	switch driver {
	case "", DriverMemory:
		store = NewMemoryStore()
	case DriverFile:
		store, err = NewFileStore(opts.Path)
	case DriverSQLite:
		store, err = OpenSQLite(opts.Path)
	case DriverPostgres:
		store, err = OpenPostgres(ctx, opts.DSN)
	default:
		return nil, apperrors.New(apperrors.CodeInvalidConfiguration,
			fmt.Sprintf("unknown storage driver %q", opts.Driver))
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}

	logger.Info("snapshot store opened",
		zap.String("driver", driver),
		zap.String("path", opts.Path),
	)
	return store, nil
}

func notFound(id string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("session %q not found", id), map[string]string{"session_id": id})
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}

func validateSnapshot(snap *game.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot is required")
	}
	return validateID(snap.SessionID)
}
