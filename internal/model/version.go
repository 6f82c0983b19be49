package model

import (
	"errors"
	"time"
)

// VersionStatus is the render state of an edit version.
type VersionStatus string

const (
	VersionPending    VersionStatus = "pending"
	VersionProcessing VersionStatus = "processing"
	VersionCompleted  VersionStatus = "completed"
	VersionFailed     VersionStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s VersionStatus) Terminal() bool {
	return s == VersionCompleted || s == VersionFailed
}

var (
	ErrVersionNotFound = errors.New("version not found")
	// ErrVersionConflict is returned by stores when (run, version) is taken.
	ErrVersionConflict   = errors.New("version number already taken")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Version is one node of a run's edit tree. Operations holds only this
// node's own edits; the effective list is resolved through ParentID.
type Version struct {
	ID         string        `json:"id" db:"id"`
	RunID      string        `json:"runId" db:"run_id"`
	Version    int           `json:"version" db:"version"`
	ParentID   *string       `json:"parentVersionId" db:"parent_id"`
	Operations []Operation   `json:"operations" db:"operations"`
	Status     VersionStatus `json:"status" db:"status"`
	VideoRef   string        `json:"videoRef,omitempty" db:"video_ref"`
	Error      string        `json:"error,omitempty" db:"error"`
	CreatedAt  time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time     `json:"updatedAt" db:"updated_at"`
}

// IsRoot reports whether v is the run's empty revert version.
func (v *Version) IsRoot() bool { return v.Version == 0 }

// Clone returns a deep copy so stores never share mutable state with callers.
func (v *Version) Clone() *Version {
	c := *v
	if v.ParentID != nil {
		p := *v.ParentID
		c.ParentID = &p
	}
	c.Operations = append([]Operation(nil), v.Operations...)
	return &c
}
