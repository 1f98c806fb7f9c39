package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeStore struct {
	pending   []Event
	published []int64
	fetchErr  error
}

func (s *fakeStore) FetchUnpublished(_ context.Context, limit int) ([]Event, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeStore) MarkPublished(_ context.Context, id int64) error {
	s.published = append(s.published, id)
	for i, ev := range s.pending {
		if ev.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	return nil
}

type fakeRawPublisher struct {
	sent    []Event
	failAt  int
	failErr error
}

func (p *fakeRawPublisher) PublishRaw(_ context.Context, routingKey string, body []byte) error {
	if p.failAt != 0 && len(p.sent)+1 == p.failAt {
		return p.failErr
	}
	p.sent = append(p.sent, Event{RoutingKey: routingKey, Payload: body})
	return nil
}

func TestRelayDrain(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("publishes pending events in order and marks them", func(t *testing.T) {
		store := &fakeStore{pending: []Event{
			{ID: 1, RoutingKey: "order.created", Payload: []byte(`{"order_id":1}`)},
			{ID: 2, RoutingKey: "order.created", Payload: []byte(`{"order_id":2}`)},
		}}
		publisher := &fakeRawPublisher{}
		relay := NewRelay(store, publisher, logger)

		if err := relay.drain(ctx); err != nil {
			t.Fatalf("drain failed: %v", err)
		}

		if len(publisher.sent) != 2 {
			t.Fatalf("expected 2 published events, got %d", len(publisher.sent))
		}
		if len(store.published) != 2 || store.published[0] != 1 || store.published[1] != 2 {
			t.Errorf("expected ids 1,2 marked in order, got %v", store.published)
		}
		if len(store.pending) != 0 {
			t.Errorf("expected no pending events, got %d", len(store.pending))
		}
	})

	t.Run("stops the batch on publish failure so order is preserved", func(t *testing.T) {
		store := &fakeStore{pending: []Event{
			{ID: 1, RoutingKey: "order.created", Payload: []byte(`{"order_id":1}`)},
			{ID: 2, RoutingKey: "order.created", Payload: []byte(`{"order_id":2}`)},
		}}
		publisher := &fakeRawPublisher{failAt: 2, failErr: errors.New("broker gone")}
		relay := NewRelay(store, publisher, logger)

		if err := relay.drain(ctx); err == nil {
			t.Fatal("expected an error")
		}

		if len(store.published) != 1 || store.published[0] != 1 {
			t.Errorf("expected only id 1 marked, got %v", store.published)
		}
		if len(store.pending) != 1 || store.pending[0].ID != 2 {
			t.Errorf("expected event 2 still pending, got %v", store.pending)
		}
	})

	t.Run("propagates fetch errors", func(t *testing.T) {
		store := &fakeStore{fetchErr: errors.New("db down")}
		relay := NewRelay(store, &fakeRawPublisher{}, logger)

		if err := relay.drain(ctx); err == nil {
			t.Fatal("expected an error")
		}
	})
}
