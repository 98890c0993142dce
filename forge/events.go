package forge

import (
	"context"
	"time"
)

// Event is an immutable user-activity record submitted for evaluation.
type Event struct {
	Id         string         `json:"id"`
	EventType  string         `json:"eventType"`
	UserId     string         `json:"userId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Validate checks the invariants an event must satisfy before it is accepted.
func (e *Event) Validate() error {
	if e == nil {
		return ErrBadInput
	}
	if e.Id == "" {
		return ErrEventIdEmpty
	}
	if e.EventType == "" {
		return ErrEventTypeEmpty
	}
	if e.UserId == "" {
		return ErrEventUserIdEmpty
	}
	return nil
}

// EventDescriptor documents a known event type for the catalog endpoint.
// Descriptors are hints only, ingestion accepts unknown event types too.
type EventDescriptor struct {
	Id           string            `json:"id"`
	Description  string            `json:"description,omitempty"`
	PayloadHints map[string]string `json:"payloadHints,omitempty"`
}

// EventsConfig is the data definition for the EventsSystem type.
type EventsConfig struct {
	QueueCapacity int                `json:"queue_capacity,omitempty"`
	WorkerCount   int                `json:"worker_count,omitempty"`
	RetentionDays int                `json:"retention_days,omitempty"`
	EventTypes    []*EventDescriptor `json:"event_types,omitempty"`
}

// The EventsSystem accepts events for asynchronous processing and answers
// queries over the stored event log.
type EventsSystem interface {
	System

	// Ingest validates the event, fills generated fields and enqueues it for
	// background processing. The event is not yet persisted when Ingest
	// returns.
	Ingest(ctx context.Context, event *Event) (*Event, error)

	// GetEvent returns a stored event by id.
	GetEvent(ctx context.Context, id string) (*Event, error)

	// ListByUser returns stored events for a user ordered by occurrence time.
	ListByUser(ctx context.Context, userId string, limit, offset int) ([]*Event, error)

	// ListByType returns stored events of one type ordered by occurrence time.
	ListByType(ctx context.Context, eventType string, limit, offset int) ([]*Event, error)

	// Catalog returns the configured event-type descriptors.
	Catalog(ctx context.Context) []*EventDescriptor

	// PurgeExpired removes events older than the retention window and returns
	// how many were dropped.
	PurgeExpired(ctx context.Context) (int64, error)

	// QueueDepth reports how many events are waiting to be processed.
	QueueDepth() int
}
