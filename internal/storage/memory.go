package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/ivlev/democlip/internal/model"
)

// memory keeps everything in maps guarded by one lock.
type memory struct {
	mu       sync.RWMutex
	runs     map[string]*model.Run
	versions map[string]*model.Version
	byRun    map[string]map[int]string // run -> version number -> id
}

// NewMemory creates an empty in-memory store.
func NewMemory() Store {
	return &memory{
		runs:     make(map[string]*model.Run),
		versions: make(map[string]*model.Version),
		byRun:    make(map[string]map[int]string),
	}
}

func cloneRun(r *model.Run) *model.Run {
	c := *r
	c.Sections = append(c.Sections[:0:0], r.Sections...)
	return &c
}

func (m *memory) CreateRun(_ context.Context, run *model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.ID]; exists {
		return model.ErrRunExists
	}
	m.runs[run.ID] = cloneRun(run)
	return nil
}

func (m *memory) GetRun(_ context.Context, id string) (*model.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, model.ErrRunNotFound
	}
	return cloneRun(run), nil
}

func (m *memory) UpdateRun(_ context.Context, id string, fn func(*model.Run) error) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, model.ErrRunNotFound
	}
	next := cloneRun(run)
	if err := fn(next); err != nil {
		return nil, err
	}
	m.runs[id] = next
	return cloneRun(next), nil
}

func (m *memory) InsertVersion(_ context.Context, v *model.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[v.RunID]; !ok {
		return model.ErrRunNotFound
	}
	numbers := m.byRun[v.RunID]
	if numbers == nil {
		numbers = make(map[int]string)
		m.byRun[v.RunID] = numbers
	}
	if _, taken := numbers[v.Version]; taken {
		return fmt.Errorf("run %s version %d: %w", v.RunID, v.Version, model.ErrVersionConflict)
	}
	numbers[v.Version] = v.ID
	m.versions[v.ID] = v.Clone()
	return nil
}

func (m *memory) GetVersion(_ context.Context, id string) (*model.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.versions[id]
	if !ok {
		return nil, model.ErrVersionNotFound
	}
	return v.Clone(), nil
}

func (m *memory) ListVersions(_ context.Context, runID string) ([]*model.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.Version
	for _, id := range m.byRun[runID] {
		out = append(out, m.versions[id].Clone())
	}
	return out, nil
}

func (m *memory) UpdateVersion(_ context.Context, v *model.Version, expect model.VersionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.versions[v.ID]
	if !ok {
		return model.ErrVersionNotFound
	}
	if cur.Status != expect {
		return fmt.Errorf("%w: status is %s, expected %s", model.ErrInvalidTransition, cur.Status, expect)
	}
	next := v.Clone()
	next.RunID, next.Version, next.ParentID = cur.RunID, cur.Version, cur.ParentID
	m.versions[v.ID] = next
	return nil
}

func (m *memory) Ping(context.Context) error { return nil }
func (m *memory) Close() error               { return nil }
