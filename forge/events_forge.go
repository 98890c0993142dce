package forge

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MeritEventsSystem implements the EventsSystem interface: it is the
// ingestion entry point and the read surface over the stored event log.
type MeritEventsSystem struct {
	config  *EventsConfig
	queue   *EventQueue
	events  EventRepository
	catalog *Catalog
	logger  *zap.Logger
	metrics *Metrics
}

// NewMeritEventsSystem creates the events system.
func NewMeritEventsSystem(config *EventsConfig, queue *EventQueue, events EventRepository, catalog *Catalog, logger *zap.Logger, metrics *Metrics) *MeritEventsSystem {
	if config == nil {
		config = &EventsConfig{}
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = 30
	}
	return &MeritEventsSystem{
		config:  config,
		queue:   queue,
		events:  events,
		catalog: catalog,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *MeritEventsSystem) GetType() SystemType {
	return SystemTypeEvents
}

func (s *MeritEventsSystem) GetConfig() any {
	return s.config
}

func (s *MeritEventsSystem) Ingest(ctx context.Context, event *Event) (*Event, error) {
	if event == nil {
		return nil, ErrBadInput
	}
	if event.Id == "" {
		event.Id = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	} else {
		event.OccurredAt = event.OccurredAt.UTC()
	}
	if err := event.Validate(); err != nil {
		if s.metrics != nil {
			s.metrics.EventsRejected.WithLabelValues("validation").Inc()
		}
		return nil, err
	}
	if err := s.queue.Enqueue(event); err != nil {
		if s.metrics != nil {
			s.metrics.EventsRejected.WithLabelValues("queue_full").Inc()
		}
		s.logger.Warn("event rejected, queue full",
			zap.String("event_type", event.EventType),
			zap.String("user_id", event.UserId))
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.EventsIngested.Inc()
		s.metrics.QueueDepth.Set(float64(s.queue.Len()))
	}
	return event, nil
}

func (s *MeritEventsSystem) GetEvent(ctx context.Context, id string) (*Event, error) {
	return s.events.GetById(ctx, id)
}

func (s *MeritEventsSystem) ListByUser(ctx context.Context, userId string, limit, offset int) ([]*Event, error) {
	return s.events.ListByUser(ctx, userId, limit, offset)
}

func (s *MeritEventsSystem) ListByType(ctx context.Context, eventType string, limit, offset int) ([]*Event, error) {
	return s.events.ListByType(ctx, eventType, limit, offset)
}

func (s *MeritEventsSystem) Catalog(ctx context.Context) []*EventDescriptor {
	descriptors := s.config.EventTypes
	if len(descriptors) == 0 {
		descriptors = s.catalog.EventTypes()
	}
	if descriptors == nil {
		descriptors = []*EventDescriptor{}
	}
	return descriptors
}

func (s *MeritEventsSystem) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.config.RetentionDays)
	purged, err := s.events.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.logger.Info("purged expired events",
			zap.Int64("count", purged),
			zap.Time("cutoff", cutoff))
	}
	return purged, nil
}

func (s *MeritEventsSystem) QueueDepth() int {
	return s.queue.Len()
}
