// Package events publishes pack lifecycle notifications to an event stream.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypePackUpdated is emitted after a pack write succeeds.
	EventTypePackUpdated = "mempack.pack.updated"
)

// ErrNilEvent indicates a nil event payload was provided to a publisher.
var ErrNilEvent = errors.New("nil pack event")

// PackUpdatedEvent is a transport-neutral payload for a written pack.
type PackUpdatedEvent struct {
	SchemaVersion      int       `json:"schema_version"`
	EventType          string    `json:"event_type"`
	EventID            string    `json:"event_id"`
	EmittedAt          time.Time `json:"emitted_at"`
	FeatureID          string    `json:"feature_id"`
	UoWID              string    `json:"uow_id"`
	Revision           string    `json:"revision"`
	Completed          bool      `json:"completed"`
	EffectivenessScore *float64  `json:"effectiveness_score,omitempty"`
}

// NewPackUpdated stamps a fresh event for (feature, uow) at revision.
func NewPackUpdated(featureID, uowID, revision string, now time.Time) *PackUpdatedEvent {
	return &PackUpdatedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypePackUpdated,
		EventID:       uuid.NewString(),
		EmittedAt:     now.UTC(),
		FeatureID:     featureID,
		UoWID:         uowID,
		Revision:      revision,
	}
}

// Publisher publishes pack events to an event stream backend.
type Publisher interface {
	PublishPackUpdated(ctx context.Context, event *PackUpdatedEvent) error
	Close() error
}
