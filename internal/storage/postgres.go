package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/projectcards/project-game-server/internal/game"
	"github.com/projectcards/project-game-server/internal/storage/migrations"
)

// PostgresStore persists snapshots in PostgreSQL as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects with dsn, pings and applies embedded migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("storage dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := applyPostgresMigrations(ctx, pool, migrations.Postgres, "postgres"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Save(ctx context.Context, snap *game.Snapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}
	data, err := game.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO session_snapshots (session_id, game, phase, status, checksum, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (session_id) DO UPDATE SET
			game = EXCLUDED.game,
			phase = EXCLUDED.phase,
			status = EXCLUDED.status,
			checksum = EXCLUDED.checksum,
			snapshot = EXCLUDED.snapshot,
			updated_at = now()
	`,
		snap.SessionID,
		snap.Game,
		snap.State.CurrentPhase,
		snap.State.Status.String(),
		snap.Checksum,
		data,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.SessionID, err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context, id string) (*game.Snapshot, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT snapshot FROM session_snapshots WHERE session_id = $1`, id,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	return game.DecodeSnapshot(data)
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM session_snapshots WHERE session_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT session_id FROM session_snapshots ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return ids, nil
}

// Close releases the pool.
func (p *PostgresStore) Close() error {
	if p == nil || p.pool == nil {
		return nil
	}
	p.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
