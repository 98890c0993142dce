package forge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// QueueProcessor drains the event queue in the background: each event is
// persisted, evaluated against the rules and its rewards applied. Failures
// are logged and the processor moves on to the next event.
type QueueProcessor struct {
	queue   *EventQueue
	events  EventRepository
	rules   RulesSystem
	rewards RewardsSystem
	logger  *zap.Logger
	metrics *Metrics

	gracePeriod time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	processedCount atomic.Int64
	inFlight       atomic.Int32
}

// NewQueueProcessor wires a processor over its collaborators.
func NewQueueProcessor(queue *EventQueue, events EventRepository, rules RulesSystem, rewards RewardsSystem, logger *zap.Logger, metrics *Metrics, gracePeriod time.Duration) *QueueProcessor {
	if gracePeriod <= 0 {
		gracePeriod = 5 * time.Second
	}
	return &QueueProcessor{
		queue:       queue,
		events:      events,
		rules:       rules,
		rewards:     rewards,
		logger:      logger,
		metrics:     metrics,
		gracePeriod: gracePeriod,
	}
}

// Start begins draining in the background, one worker per queue shard so
// events of a single user stay ordered. Double-start is a no-op.
func (p *QueueProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		p.logger.Warn("queue processor already started")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.started = true

	var wg sync.WaitGroup
	for shard := 0; shard < p.queue.ShardCount(); shard++ {
		wg.Add(1)
		go func(shard int) {
			defer wg.Done()
			p.drain(ctx, shard)
		}(shard)
	}
	done := p.done
	go func() {
		wg.Wait()
		close(done)
	}()
	p.logger.Info("queue processor started", zap.Int("shards", p.queue.ShardCount()))
}

// Stop cancels the workers and waits for the in-flight events to finish,
// bounded by the grace period. Remaining queued events are left for a future
// start.
func (p *QueueProcessor) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.started = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(p.gracePeriod):
		p.logger.Warn("queue processor stop grace period elapsed")
	}
	p.logger.Info("queue processor stopped", zap.Int64("processed", p.processedCount.Load()))
}

// ProcessedEventCount returns how many events were fully handled since the
// process started.
func (p *QueueProcessor) ProcessedEventCount() int64 {
	return p.processedCount.Load()
}

// IsProcessing reports whether a worker currently has an event in flight.
func (p *QueueProcessor) IsProcessing() bool {
	return p.inFlight.Load() > 0
}

// IsRunning reports whether the processor has been started.
func (p *QueueProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

func (p *QueueProcessor) drain(ctx context.Context, shard int) {
	for {
		event, err := p.queue.Dequeue(ctx, shard)
		if err != nil {
			return
		}
		// The in-flight event completes even when Stop cancels the drain.
		p.process(context.WithoutCancel(ctx), event)
	}
}

func (p *QueueProcessor) process(ctx context.Context, event *Event) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	start := time.Now()

	if err := p.events.Store(ctx, event); err != nil {
		// Without the stored event the rule history would be wrong, so this
		// event is dropped entirely.
		p.logger.Error("failed to store event, skipping",
			zap.String("event_id", event.Id),
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return
	}

	instructions, err := p.rules.Evaluate(ctx, event)
	if err != nil {
		p.logger.Error("rule evaluation failed",
			zap.String("event_id", event.Id),
			zap.Error(err))
	} else if len(instructions) > 0 {
		if err := p.rewards.Apply(ctx, instructions); err != nil {
			p.logger.Error("reward application failed",
				zap.String("event_id", event.Id),
				zap.Error(err))
		}
	}

	p.processedCount.Add(1)
	if p.metrics != nil {
		p.metrics.EventsProcessed.Inc()
		p.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
		p.metrics.QueueDepth.Set(float64(p.queue.Len()))
	}
}
