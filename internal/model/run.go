// Package model defines the records shared by the render pipeline, the edit
// chain and storage.
package model

import (
	"errors"
	"time"

	"github.com/ivlev/democlip/internal/director"
)

// RunStatus is the lifecycle state of a run record.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunUploading RunStatus = "uploading"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunQueued, RunRunning, RunUploading, RunCompleted, RunFailed:
		return true
	}
	return false
}

var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunExists   = errors.New("run already exists")
	// ErrTerminal is returned when a completed or failed record is changed.
	ErrTerminal = errors.New("status is terminal")
)

// Run is the external record of one recorded session and its render.
type Run struct {
	ID          string             `json:"id" db:"id"`
	SourceURL   string             `json:"sourceUrl" db:"source_url"`
	Status      RunStatus          `json:"status" db:"status"`
	ArtifactRef string             `json:"artifactRef,omitempty" db:"artifact_ref"`
	Sections    []director.Section `json:"sections,omitempty" db:"sections"`
	VTT         string             `json:"vtt,omitempty" db:"vtt"`
	Error       string             `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time          `json:"updatedAt" db:"updated_at"`
}
