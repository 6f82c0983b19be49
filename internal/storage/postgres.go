package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivlev/democlip/internal/model"
)

const uniqueViolation = "23505"

type postgres struct {
	db *pgxpool.Pool
}

// NewPostgres connects a pool, checks it and creates the schema.
func NewPostgres(ctx context.Context, dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &postgres{db: pool}, nil
}

func initPostgresSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			source_url   TEXT NOT NULL,
			status       TEXT NOT NULL,
			artifact_ref TEXT NOT NULL DEFAULT '',
			sections     JSONB NOT NULL DEFAULT '[]',
			vtt          TEXT NOT NULL DEFAULT '',
			error        TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS edit_versions (
			id          TEXT PRIMARY KEY,
			run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			version     INTEGER NOT NULL CHECK (version >= 0),
			parent_id   TEXT REFERENCES edit_versions(id),
			operations  JSONB NOT NULL DEFAULT '[]',
			status      TEXT NOT NULL,
			video_ref   TEXT NOT NULL DEFAULT '',
			error       TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL,
			UNIQUE (run_id, version)
		);
		CREATE INDEX IF NOT EXISTS idx_edit_versions_run ON edit_versions(run_id, version DESC);
	`)
	return err
}

func (p *postgres) Ping(ctx context.Context) error { return p.db.Ping(ctx) }

func (p *postgres) Close() error {
	p.db.Close()
	return nil
}

func (p *postgres) CreateRun(ctx context.Context, run *model.Run) error {
	sections, err := encodeSections(run.Sections)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO runs (id, source_url, status, artifact_ref, sections, vtt, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.SourceURL, string(run.Status), run.ArtifactRef, sections, run.VTT, run.Error,
		run.CreatedAt, run.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.ErrRunExists
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

const selectRun = `SELECT id, source_url, status, artifact_ref, sections, vtt, error, created_at, updated_at FROM runs WHERE id = $1`

func scanRun(row pgx.Row) (*model.Run, error) {
	var run model.Run
	var status string
	var sections []byte
	err := row.Scan(&run.ID, &run.SourceURL, &status, &run.ArtifactRef, &sections, &run.VTT, &run.Error,
		&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.Status = model.RunStatus(status)
	if run.Sections, err = decodeSections(sections); err != nil {
		return nil, err
	}
	return &run, nil
}

func (p *postgres) GetRun(ctx context.Context, id string) (*model.Run, error) {
	return scanRun(p.db.QueryRow(ctx, selectRun, id))
}

func (p *postgres) UpdateRun(ctx context.Context, id string, fn func(*model.Run) error) (*model.Run, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	run, err := scanRun(tx.QueryRow(ctx, selectRun+" FOR UPDATE", id))
	if err != nil {
		return nil, err
	}
	if err := fn(run); err != nil {
		return nil, err
	}
	sections, err := encodeSections(run.Sections)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE runs SET status = $2, artifact_ref = $3, sections = $4, vtt = $5, error = $6, updated_at = $7
		WHERE id = $1`,
		id, string(run.Status), run.ArtifactRef, sections, run.VTT, run.Error, run.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update run: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return run, nil
}

func (p *postgres) InsertVersion(ctx context.Context, v *model.Version) error {
	ops, err := encodeOperations(v.Operations)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO edit_versions (id, run_id, version, parent_id, operations, status, video_ref, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		v.ID, v.RunID, v.Version, v.ParentID, ops, string(v.Status), v.VideoRef, v.Error, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case uniqueViolation:
				return fmt.Errorf("run %s version %d: %w", v.RunID, v.Version, model.ErrVersionConflict)
			case "23503": // foreign_key_violation
				return model.ErrRunNotFound
			}
		}
		return fmt.Errorf("failed to insert version: %w", err)
	}
	return nil
}

const versionColumns = `id, run_id, version, parent_id, operations, status, video_ref, error, created_at, updated_at`

func scanVersion(row pgx.Row) (*model.Version, error) {
	var v model.Version
	var status string
	var ops []byte
	err := row.Scan(&v.ID, &v.RunID, &v.Version, &v.ParentID, &ops, &status, &v.VideoRef, &v.Error,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrVersionNotFound
		}
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	v.Status = model.VersionStatus(status)
	if v.Operations, err = decodeOperations(ops); err != nil {
		return nil, err
	}
	return &v, nil
}

func (p *postgres) GetVersion(ctx context.Context, id string) (*model.Version, error) {
	return scanVersion(p.db.QueryRow(ctx, `SELECT `+versionColumns+` FROM edit_versions WHERE id = $1`, id))
}

func (p *postgres) ListVersions(ctx context.Context, runID string) ([]*model.Version, error) {
	rows, err := p.db.Query(ctx, `SELECT `+versionColumns+` FROM edit_versions WHERE run_id = $1 ORDER BY version DESC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var out []*model.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *postgres) UpdateVersion(ctx context.Context, v *model.Version, expect model.VersionStatus) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE edit_versions SET status = $2, video_ref = $3, error = $4, updated_at = $5
		WHERE id = $1 AND status = $6`,
		v.ID, string(v.Status), v.VideoRef, v.Error, v.UpdatedAt, string(expect))
	if err != nil {
		return fmt.Errorf("failed to update version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.GetVersion(ctx, v.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: status is no longer %s", model.ErrInvalidTransition, expect)
	}
	return nil
}
