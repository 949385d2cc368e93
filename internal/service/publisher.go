package service

import (
	"context"
	"errors"

	"github.com/iliyamo/card-tracking/internal/queue"
)

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.CardEvent) error { return nil }

// EventRouter sends lifecycle events to the durable broker and every
// event, lifecycle or telemetry, to the telemetry bus.  Either side may
// be nil.
type EventRouter struct {
	Durable   EventPublisher
	Telemetry EventPublisher
}

func (r EventRouter) Publish(ctx context.Context, evt queue.CardEvent) error {
	var errs []error
	if r.Durable != nil && evt.Lifecycle() {
		if err := r.Durable.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	if r.Telemetry != nil {
		if err := r.Telemetry.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
