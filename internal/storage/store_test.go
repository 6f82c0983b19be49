package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ivlev/democlip/internal/director"
	"github.com/ivlev/democlip/internal/model"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	lite, err := NewSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { lite.Close() })
	stores := map[string]Store{
		"memory": NewMemory(),
		"sqlite": lite,
	}

	// Point at a disposable database; its tables are truncated.
	if dsn := os.Getenv("DEMOCLIP_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := NewPostgres(context.Background(), dsn)
		if err != nil {
			t.Fatalf("NewPostgres: %v", err)
		}
		t.Cleanup(func() { pg.Close() })
		if _, err := pg.(*postgres).db.Exec(context.Background(), "TRUNCATE edit_versions, runs"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		stores["postgres"] = pg
	}
	return stores
}

func newRun(id string) *model.Run {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &model.Run{ID: id, SourceURL: "file:///tmp/raw.webm", Status: model.RunQueued, CreatedAt: now, UpdatedAt: now}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.CreateRun(ctx, newRun("r1")); err != nil {
				t.Fatalf("CreateRun: %v", err)
			}
			if err := s.CreateRun(ctx, newRun("r1")); !errors.Is(err, model.ErrRunExists) {
				t.Errorf("duplicate run: got %v", err)
			}
			if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, model.ErrRunNotFound) {
				t.Errorf("missing run: got %v", err)
			}

			sections := []director.Section{{Task: "Open", Path: "/", StartMs: 0, EndMs: 400, X: 1, Y: 2}}
			updated, err := s.UpdateRun(ctx, "r1", func(r *model.Run) error {
				r.Status = model.RunCompleted
				r.ArtifactRef = "s3://bucket/r1.mp4"
				r.Sections = sections
				r.VTT = "WEBVTT\n\n"
				return nil
			})
			if err != nil {
				t.Fatalf("UpdateRun: %v", err)
			}
			if updated.Status != model.RunCompleted {
				t.Errorf("status = %s", updated.Status)
			}

			got, err := s.GetRun(ctx, "r1")
			if err != nil {
				t.Fatalf("GetRun: %v", err)
			}
			if got.ArtifactRef != "s3://bucket/r1.mp4" || len(got.Sections) != 1 || got.Sections[0] != sections[0] {
				t.Errorf("run not persisted: %+v", got)
			}
			if !got.CreatedAt.Equal(newRun("r1").CreatedAt) {
				t.Errorf("created_at = %v", got.CreatedAt)
			}

			abort := errors.New("abort")
			if _, err := s.UpdateRun(ctx, "r1", func(r *model.Run) error {
				r.Status = model.RunFailed
				return abort
			}); !errors.Is(err, abort) {
				t.Errorf("aborted update: got %v", err)
			}
			if got, _ := s.GetRun(ctx, "r1"); got.Status != model.RunCompleted {
				t.Errorf("aborted update leaked status %s", got.Status)
			}
		})
	}
}

func TestVersionNumbersAreUniquePerRun(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"a", "b"} {
				if err := s.CreateRun(ctx, newRun(id)); err != nil {
					t.Fatal(err)
				}
			}
			now := time.Now().UTC()
			v := &model.Version{ID: "v0", RunID: "a", Version: 0, Status: model.VersionCompleted, CreatedAt: now, UpdatedAt: now}
			if err := s.InsertVersion(ctx, v); err != nil {
				t.Fatalf("InsertVersion: %v", err)
			}

			dup := &model.Version{ID: "v0-dup", RunID: "a", Version: 0, Status: model.VersionPending, CreatedAt: now, UpdatedAt: now}
			if err := s.InsertVersion(ctx, dup); !errors.Is(err, model.ErrVersionConflict) {
				t.Errorf("duplicate number: got %v", err)
			}

			other := &model.Version{ID: "b0", RunID: "b", Version: 0, Status: model.VersionCompleted, CreatedAt: now, UpdatedAt: now}
			if err := s.InsertVersion(ctx, other); err != nil {
				t.Errorf("same number in another run: %v", err)
			}

			orphan := &model.Version{ID: "x", RunID: "nope", Version: 0, Status: model.VersionPending, CreatedAt: now, UpdatedAt: now}
			if err := s.InsertVersion(ctx, orphan); !errors.Is(err, model.ErrRunNotFound) {
				t.Errorf("unknown run: got %v", err)
			}
		})
	}
}

func TestVersionRoundTripAndTransition(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.CreateRun(ctx, newRun("r")); err != nil {
				t.Fatal(err)
			}
			now := time.Now().UTC()
			root := &model.Version{ID: "root", RunID: "r", Version: 0, Operations: []model.Operation{}, Status: model.VersionCompleted, CreatedAt: now, UpdatedAt: now}
			parent := "root"
			child := &model.Version{
				ID:         "child",
				RunID:      "r",
				Version:    1,
				ParentID:   &parent,
				Operations: []model.Operation{{Type: model.OpTrim, Trim: &model.Trim{StartMs: 100, EndMs: 900}}},
				Status:     model.VersionPending,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			for _, v := range []*model.Version{root, child} {
				if err := s.InsertVersion(ctx, v); err != nil {
					t.Fatalf("InsertVersion(%s): %v", v.ID, err)
				}
			}

			got, err := s.GetVersion(ctx, "child")
			if err != nil {
				t.Fatalf("GetVersion: %v", err)
			}
			if got.ParentID == nil || *got.ParentID != "root" {
				t.Errorf("parent = %v", got.ParentID)
			}
			if len(got.Operations) != 1 || got.Operations[0].Trim == nil || got.Operations[0].Trim.EndMs != 900 {
				t.Errorf("operations = %+v", got.Operations)
			}

			list, err := s.ListVersions(ctx, "r")
			if err != nil || len(list) != 2 {
				t.Fatalf("ListVersions = %d, %v", len(list), err)
			}

			got.Status = model.VersionProcessing
			if err := s.UpdateVersion(ctx, got, model.VersionPending); err != nil {
				t.Fatalf("UpdateVersion: %v", err)
			}
			got.Status = model.VersionCompleted
			if err := s.UpdateVersion(ctx, got, model.VersionPending); !errors.Is(err, model.ErrInvalidTransition) {
				t.Errorf("stale expectation: got %v", err)
			}
			if _, err := s.GetVersion(ctx, "missing"); !errors.Is(err, model.ErrVersionNotFound) {
				t.Errorf("missing version: got %v", err)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), "memory", "")
	if err != nil || s == nil {
		t.Fatalf("Open(memory) = %v, %v", s, err)
	}
	if _, err := Open(context.Background(), "mysql", ""); err == nil {
		t.Error("expected unknown driver error")
	}
}
