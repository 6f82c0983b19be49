package edits

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/ivlev/democlip/internal/logging"
	"github.com/ivlev/democlip/internal/model"
)

// maxInsertAttempts bounds retries when concurrent applies race for the
// same version number.
const maxInsertAttempts = 5

// Store is the persistence the chain needs. InsertVersion must reject a
// duplicate (run, version) pair with model.ErrVersionConflict, and
// UpdateVersion must only succeed while the stored status equals expect.
type Store interface {
	GetRun(ctx context.Context, id string) (*model.Run, error)
	InsertVersion(ctx context.Context, v *model.Version) error
	GetVersion(ctx context.Context, id string) (*model.Version, error)
	ListVersions(ctx context.Context, runID string) ([]*model.Version, error)
	UpdateVersion(ctx context.Context, v *model.Version, expect model.VersionStatus) error
}

// Chain manages the per-run tree of edit versions.
type Chain struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

func NewChain(store Store, logger zerolog.Logger) *Chain {
	return &Chain{
		store:  store,
		logger: logging.WithComponent(logger, "edits"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return ulid.Make().String() },
	}
}

// EnsureRoot returns the run's version 0, creating it if needed. The root
// has no operations and points at the run's own artifact.
func (c *Chain) EnsureRoot(ctx context.Context, runID string) (*model.Version, error) {
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if root, err := c.root(ctx, runID); err == nil {
		return root, nil
	}

	now := c.now()
	root := &model.Version{
		ID:         c.newID(),
		RunID:      runID,
		Version:    0,
		Operations: []model.Operation{},
		Status:     model.VersionCompleted,
		VideoRef:   run.ArtifactRef,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.store.InsertVersion(ctx, root); err != nil {
		if errors.Is(err, model.ErrVersionConflict) {
			return c.root(ctx, runID)
		}
		return nil, fmt.Errorf("create root version: %w", err)
	}
	return root, nil
}

// ApplyEdit appends one operation on top of parentID, or on top of the
// current head when parentID is nil.
func (c *Chain) ApplyEdit(ctx context.Context, runID string, parentID *string, op model.Operation) (*model.Version, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if _, err := c.EnsureRoot(ctx, runID); err != nil {
		return nil, err
	}

	var (
		parent *model.Version
		err    error
	)
	if parentID != nil {
		parent, err = c.store.GetVersion(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.RunID != runID {
			return nil, fmt.Errorf("%w: %s does not belong to run %s", model.ErrVersionNotFound, *parentID, runID)
		}
	} else {
		parent, err = c.Head(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("resolve head of run %s: %w", runID, err)
		}
	}

	v, err := c.insert(ctx, runID, parent.ID, []model.Operation{op})
	if err != nil {
		return nil, err
	}
	c.logger.Info().
		Str("run", runID).
		Int("version", v.Version).
		Str("op", string(op.Type)).
		Msg("edit applied")
	return v, nil
}

// Revert creates an empty version whose parent is the root, so it resolves
// to no operations at all.
func (c *Chain) Revert(ctx context.Context, runID string) (*model.Version, error) {
	root, err := c.EnsureRoot(ctx, runID)
	if err != nil {
		return nil, err
	}
	v, err := c.insert(ctx, runID, root.ID, []model.Operation{})
	if err != nil {
		return nil, err
	}
	c.logger.Info().Str("run", runID).Int("version", v.Version).Msg("reverted to original")
	return v, nil
}

func (c *Chain) insert(ctx context.Context, runID, parentID string, ops []model.Operation) (*model.Version, error) {
	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		existing, err := c.store.ListVersions(ctx, runID)
		if err != nil {
			return nil, err
		}
		next := 0
		for _, v := range existing {
			next = max(next, v.Version+1)
		}

		now := c.now()
		pid := parentID
		v := &model.Version{
			ID:         c.newID(),
			RunID:      runID,
			Version:    next,
			ParentID:   &pid,
			Operations: ops,
			Status:     model.VersionPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		err = c.store.InsertVersion(ctx, v)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, model.ErrVersionConflict) {
			return nil, err
		}
		c.logger.Debug().Str("run", runID).Int("version", next).Msg("version number taken, retrying")
	}
	return nil, fmt.Errorf("%w: gave up after %d attempts", model.ErrVersionConflict, maxInsertAttempts)
}

// Resolve returns the effective operations of a version: every ancestor's
// operations, root first, followed by its own.
func (c *Chain) Resolve(ctx context.Context, versionID string) ([]model.Operation, error) {
	var lineage []*model.Version
	seen := map[string]bool{}

	id := versionID
	for {
		if seen[id] {
			return nil, fmt.Errorf("version %s: parent cycle", versionID)
		}
		seen[id] = true

		v, err := c.store.GetVersion(ctx, id)
		if err != nil {
			return nil, err
		}
		lineage = append(lineage, v)
		if v.ParentID == nil {
			break
		}
		id = *v.ParentID
	}

	ops := []model.Operation{}
	for i := len(lineage) - 1; i >= 0; i-- {
		ops = append(ops, lineage[i].Operations...)
	}
	return ops, nil
}

// ListVersions returns every version of a run, newest first.
func (c *Chain) ListVersions(ctx context.Context, runID string) ([]*model.Version, error) {
	if _, err := c.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	versions, err := c.store.ListVersions(ctx, runID)
	if err != nil {
		return nil, err
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version > versions[j].Version })
	return versions, nil
}

func (c *Chain) Get(ctx context.Context, versionID string) (*model.Version, error) {
	return c.store.GetVersion(ctx, versionID)
}

// Head is the version with the highest number.
func (c *Chain) Head(ctx context.Context, runID string) (*model.Version, error) {
	versions, err := c.ListVersions(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: run %s has no versions", model.ErrVersionNotFound, runID)
	}
	return versions[0], nil
}

func (c *Chain) root(ctx context.Context, runID string) (*model.Version, error) {
	versions, err := c.store.ListVersions(ctx, runID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.IsRoot() {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: run %s has no root", model.ErrVersionNotFound, runID)
}

// MarkProcessing moves a pending version into processing.
func (c *Chain) MarkProcessing(ctx context.Context, versionID string) (*model.Version, error) {
	return c.transition(ctx, versionID, model.VersionProcessing, func(v *model.Version) {})
}

// MarkCompleted records the rendered video of a processing version.
func (c *Chain) MarkCompleted(ctx context.Context, versionID, videoRef string) (*model.Version, error) {
	return c.transition(ctx, versionID, model.VersionCompleted, func(v *model.Version) {
		v.VideoRef = videoRef
	})
}

// MarkFailed records why a pending or processing version failed.
func (c *Chain) MarkFailed(ctx context.Context, versionID, message string) (*model.Version, error) {
	return c.transition(ctx, versionID, model.VersionFailed, func(v *model.Version) {
		v.Error = message
	})
}

func (c *Chain) transition(ctx context.Context, versionID string, to model.VersionStatus, apply func(*model.Version)) (*model.Version, error) {
	v, err := c.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	from := v.Status
	if err := checkTransition(from, to); err != nil {
		return nil, fmt.Errorf("version %s: %w", versionID, err)
	}

	v.Status = to
	v.UpdatedAt = c.now()
	apply(v)
	if err := c.store.UpdateVersion(ctx, v, from); err != nil {
		return nil, fmt.Errorf("version %s: %w", versionID, err)
	}
	c.logger.Debug().Str("version", versionID).Str("from", string(from)).Str("to", string(to)).Msg("status changed")
	return v, nil
}

func checkTransition(from, to model.VersionStatus) error {
	if from.Terminal() {
		return model.ErrTerminal
	}
	switch to {
	case model.VersionProcessing:
		if from == model.VersionPending {
			return nil
		}
	case model.VersionCompleted:
		if from == model.VersionProcessing {
			return nil
		}
	case model.VersionFailed:
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, from, to)
}
