package service

import (
	"context"

	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/pkg/logger"
)

// EventStore persists settlement events.
type EventStore interface {
	Save(ctx context.Context, events []model.Event) error
}

// EventSinks fans a batch out to every sink in order.
type EventSinks []EventSink

func (s EventSinks) Publish(ctx context.Context, events []model.Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Publish(ctx, events)
		}
	}
}

// StoreSink adapts an EventStore to EventSink. The settlement is already
// final when events are published, so a store failure is logged, not returned.
type StoreSink struct {
	Store EventStore
}

func (s StoreSink) Publish(ctx context.Context, events []model.Event) {
	if err := s.Store.Save(ctx, events); err != nil {
		ids := make([]string, len(events))
		for i := range events {
			ids[i] = events[i].ID
		}
		logger.Error("persist settlement events failed", "events", ids, "error", err)
	}
}
