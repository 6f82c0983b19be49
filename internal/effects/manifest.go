package effects

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/democlip/internal/system"
)

// Manifest records how an artifact was produced so a render can be
// inspected or repeated.
type Manifest struct {
	SessionID  string            `yaml:"sessionId"`
	RunID      string            `yaml:"runId"`
	VersionID  string            `yaml:"versionId,omitempty"`
	CreatedAt  time.Time         `yaml:"createdAt"`
	Encoder    string            `yaml:"encoder"`
	Quality    int               `yaml:"quality"`
	Width      int               `yaml:"width"`
	Height     int               `yaml:"height"`
	FPS        int               `yaml:"fps"`
	Preset     StylePreset       `yaml:"preset"`
	Keep       *Window           `yaml:"keep,omitempty"`
	Zooms      int               `yaml:"zooms"`
	Removed    float64           `yaml:"removedSeconds"`
	Graph      string            `yaml:"graph"`
	Host       system.Host       `yaml:"host"`
	RenderTime time.Duration     `yaml:"renderTime"`
	Extra      map[string]string `yaml:"extra,omitempty"`
}

// NewManifest describes a built command.
func NewManifest(runID string, b Builder, c Composition, cmd Command) *Manifest {
	return &Manifest{
		SessionID: uuid.NewString(),
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Encoder:   b.Encoder,
		Quality:   b.Quality,
		Width:     cmd.Width,
		Height:    cmd.Height,
		FPS:       c.FPS,
		Preset:    c.Preset,
		Keep:      c.Keep,
		Zooms:     len(c.Zooms),
		Graph:     cmd.Graph,
	}
}

func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}
