// Package status records run progress and announces every change.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/democlip/internal/director"
	"github.com/ivlev/democlip/internal/logging"
	"github.com/ivlev/democlip/internal/model"
	"github.com/ivlev/democlip/internal/storage"
)

// Sink is the external record of run progress. Completed and failed are
// one-way: once a run reaches either, further changes fail with
// model.ErrTerminal.
type Sink struct {
	store  storage.Store
	pub    Publisher
	logger zerolog.Logger
}

func NewSink(store storage.Store, pub Publisher, logger zerolog.Logger) *Sink {
	if pub == nil {
		pub = Noop()
	}
	return &Sink{store: store, pub: pub, logger: logging.WithComponent(logger, "status")}
}

// SetStatus moves a run to status.
func (s *Sink) SetStatus(ctx context.Context, runID string, status model.RunStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown run status %q", status)
	}
	return s.update(ctx, runID, func(r *model.Run) {
		r.Status = status
	})
}

// AttachArtifact records where the final video lives.
func (s *Sink) AttachArtifact(ctx context.Context, runID, ref string) error {
	return s.update(ctx, runID, func(r *model.Run) {
		r.ArtifactRef = ref
	})
}

// AttachAnnotations stores the canonical sections and their subtitle track.
func (s *Sink) AttachAnnotations(ctx context.Context, runID string, sections []director.Section, vtt string) error {
	return s.update(ctx, runID, func(r *model.Run) {
		r.Sections = append([]director.Section(nil), sections...)
		r.VTT = vtt
	})
}

// AttachError fails the run with a human-readable message.
func (s *Sink) AttachError(ctx context.Context, runID, msg string) error {
	return s.update(ctx, runID, func(r *model.Run) {
		r.Status = model.RunFailed
		r.Error = msg
	})
}

func (s *Sink) update(ctx context.Context, runID string, apply func(*model.Run)) error {
	run, err := s.store.UpdateRun(ctx, runID, func(r *model.Run) error {
		if r.Status.Terminal() {
			return fmt.Errorf("run %s is %s: %w", runID, r.Status, model.ErrTerminal)
		}
		apply(r)
		r.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug().Str("run_id", runID).Str("status", string(run.Status)).Msg("run updated")
	s.publish(ctx, Event{
		Type:        "run.status",
		RunID:       run.ID,
		Status:      string(run.Status),
		ArtifactRef: run.ArtifactRef,
		Error:       run.Error,
		OccurredAt:  run.UpdatedAt,
	})
	return nil
}

// VersionChanged announces an edit version transition. The version itself
// is persisted by the edit chain.
func (s *Sink) VersionChanged(ctx context.Context, v *model.Version) {
	s.publish(ctx, Event{
		Type:        "version.status",
		RunID:       v.RunID,
		VersionID:   v.ID,
		Status:      string(v.Status),
		ArtifactRef: v.VideoRef,
		Error:       v.Error,
		OccurredAt:  v.UpdatedAt,
	})
}

func (s *Sink) publish(ctx context.Context, e Event) {
	if err := s.pub.Publish(ctx, e); err != nil {
		s.logger.Warn().Err(err).Str("subject", e.Subject()).Msg("status event not published")
	}
}

// Close releases the publisher.
func (s *Sink) Close() error { return s.pub.Close() }
