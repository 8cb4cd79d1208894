package nop

import (
	"context"

	"github.com/lazypower/mempack/internal/events"
)

// Publisher is a no-op events publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op events publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishPackUpdated validates input and otherwise does nothing.
func (p *Publisher) PublishPackUpdated(_ context.Context, event *events.PackUpdatedEvent) error {
	if event == nil {
		return events.ErrNilEvent
	}
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
