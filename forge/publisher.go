package forge

import (
	"context"

	"go.uber.org/zap"
)

// PublisherEvent is one analytics-style event generated server-side.
type PublisherEvent struct {
	Name      string            `json:"name,omitempty"`
	Id        string            `json:"id,omitempty"`
	Timestamp int64             `json:"timestamp,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Value     string            `json:"value,omitempty"`

	// Source ID represents the identifier of the event source, such as the
	// rule that produced a reward.
	SourceId string `json:"-"`
}

// The Publisher describes a target implementation that wishes to receive and
// process analytics-style events generated server-side.
//
// Each Publisher may choose to process or ignore each event as it sees fit.
// Implementations must safely handle concurrent calls and must handle any
// errors or retries internally, callers will not repeat calls in case of
// errors.
type Publisher interface {
	// Send is called when there are one or more events generated.
	Send(ctx context.Context, logger *zap.Logger, userId string, events []*PublisherEvent)
}

// LogPublisher writes every event to the log. It is the default publisher in
// development setups.
type LogPublisher struct{}

func (*LogPublisher) Send(ctx context.Context, logger *zap.Logger, userId string, events []*PublisherEvent) {
	for _, event := range events {
		logger.Info("publisher event",
			zap.String("name", event.Name),
			zap.String("id", event.Id),
			zap.String("user_id", userId),
			zap.Any("metadata", event.Metadata))
	}
}
