package domain

import (
	"context"
	"time"
)

// EventStore is the append-only record of raw usage events.
type EventStore interface {
	Append(ctx context.Context, event *UsageEvent) error
	List(ctx context.Context, req ListEventsRequest) ([]*UsageEvent, error)
}

// AggregateStore persists the per-user rolling counters. Save is a
// compare-and-swap on the version column and returns ErrVersionConflict when
// the document changed underneath the caller.
type AggregateStore interface {
	Get(ctx context.Context, userID string) (*UsageAggregate, error)
	GetOrCreate(ctx context.Context, userID string, now time.Time) (*UsageAggregate, error)
	Save(ctx context.Context, aggregate *UsageAggregate, expectedVersion int64) error
}
