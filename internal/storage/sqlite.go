package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ivlev/democlip/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	source_url   TEXT NOT NULL,
	status       TEXT NOT NULL,
	artifact_ref TEXT NOT NULL DEFAULT '',
	sections     TEXT NOT NULL DEFAULT '[]',
	vtt          TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS edit_versions (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	version     INTEGER NOT NULL CHECK (version >= 0),
	parent_id   TEXT REFERENCES edit_versions(id),
	operations  TEXT NOT NULL DEFAULT '[]',
	status      TEXT NOT NULL,
	video_ref   TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	UNIQUE (run_id, version)
);
CREATE INDEX IF NOT EXISTS idx_edit_versions_run ON edit_versions(run_id, version DESC);
`

type sqliteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a database file. ":memory:" is accepted for
// tests. A single connection serialises writers.
func NewSQLite(ctx context.Context, path string) (Store, error) {
	if path == "" {
		path = "democlip.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *sqliteStore) Close() error                   { return s.db.Close() }

func (s *sqliteStore) CreateRun(ctx context.Context, run *model.Run) error {
	sections, err := encodeSections(run.Sections)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, source_url, status, artifact_ref, sections, vtt, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SourceURL, string(run.Status), run.ArtifactRef, string(sections), run.VTT, run.Error,
		formatTime(run.CreatedAt), formatTime(run.UpdatedAt))
	if isUniqueViolation(err) {
		return model.ErrRunExists
	}
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const sqliteSelectRun = `SELECT id, source_url, status, artifact_ref, sections, vtt, error, created_at, updated_at FROM runs WHERE id = ?`

func scanSQLiteRun(row rowScanner) (*model.Run, error) {
	var run model.Run
	var status, sections, created, updated string
	err := row.Scan(&run.ID, &run.SourceURL, &status, &run.ArtifactRef, &sections, &run.VTT, &run.Error, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.Status = model.RunStatus(status)
	run.CreatedAt, run.UpdatedAt = parseTime(created), parseTime(updated)
	if run.Sections, err = decodeSections([]byte(sections)); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *sqliteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	return scanSQLiteRun(s.db.QueryRowContext(ctx, sqliteSelectRun, id))
}

func (s *sqliteStore) UpdateRun(ctx context.Context, id string, fn func(*model.Run) error) (*model.Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	run, err := scanSQLiteRun(tx.QueryRowContext(ctx, sqliteSelectRun, id))
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
	_, err = tx.ExecContext(ctx, `
		UPDATE runs SET status = ?, artifact_ref = ?, sections = ?, vtt = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		string(run.Status), run.ArtifactRef, string(sections), run.VTT, run.Error, formatTime(run.UpdatedAt), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return run, nil
}

func (s *sqliteStore) InsertVersion(ctx context.Context, v *model.Version) error {
	ops, err := encodeOperations(v.Operations)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO edit_versions (id, run_id, version, parent_id, operations, status, video_ref, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.RunID, v.Version, v.ParentID, string(ops), string(v.Status), v.VideoRef, v.Error,
		formatTime(v.CreatedAt), formatTime(v.UpdatedAt))
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("run %s version %d: %w", v.RunID, v.Version, model.ErrVersionConflict)
	case isForeignKeyViolation(err):
		return model.ErrRunNotFound
	case err != nil:
		return fmt.Errorf("failed to insert version: %w", err)
	}
	return nil
}

const sqliteVersionColumns = `id, run_id, version, parent_id, operations, status, video_ref, error, created_at, updated_at`

func scanSQLiteVersion(row rowScanner) (*model.Version, error) {
	var v model.Version
	var parent sql.NullString
	var ops, status, created, updated string
	err := row.Scan(&v.ID, &v.RunID, &v.Version, &parent, &ops, &status, &v.VideoRef, &v.Error, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if parent.Valid {
		v.ParentID = &parent.String
	}
	v.Status = model.VersionStatus(status)
	v.CreatedAt, v.UpdatedAt = parseTime(created), parseTime(updated)
	if v.Operations, err = decodeOperations([]byte(ops)); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *sqliteStore) GetVersion(ctx context.Context, id string) (*model.Version, error) {
	return scanSQLiteVersion(s.db.QueryRowContext(ctx, `SELECT `+sqliteVersionColumns+` FROM edit_versions WHERE id = ?`, id))
}

func (s *sqliteStore) ListVersions(ctx context.Context, runID string) ([]*model.Version, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteVersionColumns+` FROM edit_versions WHERE run_id = ? ORDER BY version DESC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var out []*model.Version
	for rows.Next() {
		v, err := scanSQLiteVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateVersion(ctx context.Context, v *model.Version, expect model.VersionStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE edit_versions SET status = ?, video_ref = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(v.Status), v.VideoRef, v.Error, formatTime(v.UpdatedAt), v.ID, string(expect))
	if err != nil {
		return fmt.Errorf("failed to update version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetVersion(ctx, v.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: status is no longer %s", model.ErrInvalidTransition, expect)
	}
	return nil
}
