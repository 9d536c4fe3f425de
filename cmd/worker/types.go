package main

import (
	"context"

	orderevents "github.com/imrishuroy/go-scoped-orderflow/internal/events"
	"github.com/imrishuroy/go-scoped-orderflow/internal/idempotency"
)

// EventLedger records which events were already handled.
// *idempotency.Store implements it.
type EventLedger interface {
	CreateIfNotExists(ctx context.Context, key, orderID string) (bool, error)
	Reclaim(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// EventRecorder does the work for one event. *aws.MetricsEmitter implements it.
type EventRecorder interface {
	RecordOrderEvent(ctx context.Context, ev orderevents.OrderEvent) error
}
