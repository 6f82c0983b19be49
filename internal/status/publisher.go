package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// SubjectPrefix is the NATS subject root; run events go to
// democlip.runs.<runID>, version events to democlip.runs.<runID>.versions.
const SubjectPrefix = "democlip.runs"

const streamName = "DEMOCLIP_RUNS"

// Event is the envelope published for every status change.
type Event struct {
	Type          string    `json:"type"` // run.status | version.status
	RunID         string    `json:"runId"`
	VersionID     string    `json:"versionId,omitempty"`
	Status        string    `json:"status"`
	ArtifactRef   string    `json:"artifactRef,omitempty"`
	Error         string    `json:"error,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
	CorrelationID string    `json:"correlationId"`
}

// Subject is where e is published.
func (e Event) Subject() string {
	if e.VersionID != "" {
		return SubjectPrefix + "." + e.RunID + ".versions"
	}
	return SubjectPrefix + "." + e.RunID
}

// Publisher fans status events out to listeners.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type noop struct{}

func (noop) Publish(context.Context, Event) error { return nil }
func (noop) Close() error                         { return nil }

// Noop discards every event.
func Noop() Publisher { return noop{} }

type natsPub struct {
	nc *nats.Conn
	js nats.JetStreamContext // nil when the server has no JetStream
}

// NewPublisher connects to url. An empty url, or a server that cannot be
// reached, yields a no-op publisher so renders never depend on NATS.
func NewPublisher(url string, logger zerolog.Logger) Publisher {
	if url == "" {
		return Noop()
	}
	nc, err := nats.Connect(url, nats.Name("democlip"), nats.Timeout(5*time.Second))
	if err != nil {
		logger.Warn().Err(err).Msg("NATS connect failed, status events disabled")
		return Noop()
	}

	p := &natsPub{nc: nc}
	js, err := nc.JetStream()
	if err == nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      streamName,
			Subjects:  []string{SubjectPrefix + ".>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Discard:   nats.DiscardOld,
			Storage:   nats.FileStorage,
		})
	}
	if err != nil {
		logger.Info().Err(err).Msg("JetStream unavailable, publishing with core NATS")
	} else {
		p.js = js
	}
	return p
}

func (p *natsPub) Publish(ctx context.Context, e Event) error {
	if e.CorrelationID == "" {
		e.CorrelationID = uuid.NewString()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if p.js != nil {
		if _, err := p.js.Publish(e.Subject(), b, nats.Context(ctx)); err != nil {
			return fmt.Errorf("publish %s: %w", e.Subject(), err)
		}
		return nil
	}
	return p.nc.Publish(e.Subject(), b)
}

func (p *natsPub) Close() error {
	p.nc.Close()
	return nil
}
