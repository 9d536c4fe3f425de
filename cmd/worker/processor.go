package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	orderevents "github.com/imrishuroy/go-scoped-orderflow/internal/events"
	"github.com/imrishuroy/go-scoped-orderflow/internal/idempotency"
)

// errInFlight means another invocation holds the event; SQS will redeliver.
var errInFlight = errors.New("event is being processed by another invocation")

// Processor consumes order lifecycle events from SQS, at most once per event id.
type Processor struct {
	ledger   EventLedger
	recorder EventRecorder
	log      zerolog.Logger
}

// NewProcessor creates a new worker processor.
func NewProcessor(ledger EventLedger, recorder EventRecorder, log zerolog.Logger) *Processor {
	return &Processor{
		ledger:   ledger,
		recorder: recorder,
		log:      log.With().Str("component", "worker").Logger(),
	}
}

// Handle receives an SQS batch event and processes each message. The first
// failure is returned so Lambda retries the batch; events already done are
// skipped on redelivery.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	p.log.Debug().Int("records", len(ev.Records)).Msg("received batch")
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.Error().Err(err).Str("message_id", rec.MessageId).Msg("worker error")
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev orderevents.OrderEvent
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if ev.EventID == "" {
		return fmt.Errorf("message %s has no event_id", rec.MessageId)
	}
	log := p.log.With().Str("event_id", ev.EventID).Str("type", string(ev.Type)).Str("order_id", ev.OrderID).Logger()

	key := idempotency.EventKey(ev.EventID)
	claimed, err := p.claim(ctx, key, ev.OrderID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Info().Msg("event already processed")
		return nil
	}

	if err := p.recorder.RecordOrderEvent(ctx, ev); err != nil {
		if markErr := p.ledger.MarkFailed(ctx, key, err.Error()); markErr != nil {
			log.Error().Err(markErr).Msg("failed to mark event failed")
		}
		return fmt.Errorf("record event %s: %w", ev.EventID, err)
	}

	if err := p.ledger.MarkDone(ctx, key, "", http.StatusOK); err != nil {
		return fmt.Errorf("mark event %s done: %w", ev.EventID, err)
	}
	log.Info().Str("country", ev.Country).Msg("event processed")
	return nil
}

// claim reports whether this invocation owns the event. It is false with a
// nil error when the event is already DONE.
func (p *Processor) claim(ctx context.Context, key, orderID string) (bool, error) {
	created, err := p.ledger.CreateIfNotExists(ctx, key, orderID)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	if created {
		return true, nil
	}

	rec, err := p.ledger.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read claim %s: %w", key, err)
	}
	if rec == nil {
		// expired between the two calls
		return false, fmt.Errorf("claim %s: %w", key, errInFlight)
	}

	switch rec.Status {
	case idempotency.StatusDone:
		return false, nil
	case idempotency.StatusFailed:
		ok, err := p.ledger.Reclaim(ctx, key)
		if err != nil {
			return false, fmt.Errorf("reclaim %s: %w", key, err)
		}
		if !ok {
			return false, fmt.Errorf("reclaim %s: %w", key, errInFlight)
		}
		return true, nil
	default:
		return false, fmt.Errorf("claim %s: %w", key, errInFlight)
	}
}
