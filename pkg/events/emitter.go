// Package events handles event emission for negotiation lifecycle changes
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const dateLayout = "2006-01-02"

// Emitter publishes negotiation events. Publishing is best-effort: a broker
// outage must never fail the user-facing operation, so every Emit* method logs
// and records the failure instead of returning it.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

func (e *Emitter) publish(ctx context.Context, event *kafka.CollectionEvent) {
	if e == nil || e.producer == nil {
		return
	}

	if err := e.producer.PublishCollectionEvent(ctx, event); err != nil {
		metrics.RecordEventPublish(event.EventType, "error")
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
		}).Error("Failed to emit collection event")
		return
	}

	metrics.RecordEventPublish(event.EventType, "success")
}

// EmitDateProposed emits an event when the admin proposes a collection date
func (e *Emitter) EmitDateProposed(ctx context.Context, clientID, collectionID, addressLabel string, date time.Time) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDateProposed")
	defer span.End()

	e.publish(ctx, &kafka.CollectionEvent{
		EventType:      "date.proposed",
		ClientID:       clientID,
		CollectionID:   collectionID,
		AddressLabel:   addressLabel,
		CollectionDate: date.Format(dateLayout),
	})
}

// EmitDateCounterProposed emits an event when the client counter-proposes a date
func (e *Emitter) EmitDateCounterProposed(ctx context.Context, clientID, collectionID, addressLabel string, date time.Time) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDateCounterProposed")
	defer span.End()

	e.publish(ctx, &kafka.CollectionEvent{
		EventType:      "date.counter_proposed",
		ClientID:       clientID,
		CollectionID:   collectionID,
		AddressLabel:   addressLabel,
		CollectionDate: date.Format(dateLayout),
	})
}

// EmitCollectionApproved emits an event when a collection reaches APPROVED
func (e *Emitter) EmitCollectionApproved(ctx context.Context, clientID, collectionID, addressLabel string, date *time.Time, vehicleCount int64) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCollectionApproved")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"vehicle_count": vehicleCount,
	})

	event := &kafka.CollectionEvent{
		EventType:    "collection.approved",
		ClientID:     clientID,
		CollectionID: collectionID,
		AddressLabel: addressLabel,
		Data:         data,
	}
	if date != nil {
		event.CollectionDate = date.Format(dateLayout)
	}

	e.publish(ctx, event)
}

// EmitOrphansCleaned emits an event after a destructive orphan cleanup run
func (e *Emitter) EmitOrphansCleaned(ctx context.Context, detected, deleted int) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitOrphansCleaned")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"detected": detected,
		"deleted":  deleted,
	})

	e.publish(ctx, &kafka.CollectionEvent{
		EventType: "orphans.cleaned",
		ClientID:  "system",
		Data:      data,
	})
}
