package outbox

import (
	"context"
	"log/slog"
	"time"
)

type Store interface {
	FetchUnpublished(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, id int64) error
}

type EventPublisher interface {
	PublishRaw(ctx context.Context, routingKey string, body []byte) error
}

// Relay drains the outbox in order. A persisted order therefore always
// eventually produces its event, even if the process crashed between the
// commit and an inline publish. Publishing and marking are not atomic, so
// delivery stays at-least-once; consumers dedup.
type Relay struct {
	store     Store
	publisher EventPublisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewRelay(store Store, publisher EventPublisher, logger *slog.Logger) *Relay {
	return &Relay{
		store:     store,
		publisher: publisher,
		interval:  500 * time.Millisecond,
		batchSize: 50,
		logger:    logger,
	}
}

func (r *Relay) Run(ctx context.Context) {
	r.logger.Info("starting outbox relay", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				r.logger.Error("failed to drain outbox", "error", err)
			}
		}
	}
}

func (r *Relay) drain(ctx context.Context) error {
	events, err := r.store.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return err
	}

	for _, ev := range events {
		if err := r.publisher.PublishRaw(ctx, ev.RoutingKey, ev.Payload); err != nil {
			// Stop the batch to preserve publication order; the next
			// tick retries from this event.
			return err
		}

		if err := r.store.MarkPublished(ctx, ev.ID); err != nil {
			return err
		}

		r.logger.Info("outbox event published", "id", ev.ID, "routing_key", ev.RoutingKey)
	}

	return nil
}
