// Package lifecycle orchestrates order creation, placement, cancellation and
// scoped lookup. Every operation takes the caller's principal explicitly,
// checks it against the access policy, and leaves the order untouched on any
// failure: the status guard and the write are one conditional update.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/imrishuroy/go-scoped-orderflow/internal/access"
	"github.com/imrishuroy/go-scoped-orderflow/internal/apperr"
	"github.com/imrishuroy/go-scoped-orderflow/internal/auth"
	"github.com/imrishuroy/go-scoped-orderflow/internal/events"
	"github.com/imrishuroy/go-scoped-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-scoped-orderflow/internal/orders"
	"github.com/imrishuroy/go-scoped-orderflow/internal/payments"
)

// OrderStore is the order persistence the service needs. *orders.Store
// implements it.
type OrderStore interface {
	Create(ctx context.Context, o orders.Order) error
	CreateWithIdempotency(ctx context.Context, rec idempotency.IdempotencyRecord, o orders.Order) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	ListAll(ctx context.Context) ([]orders.Order, error)
	ListByCountry(ctx context.Context, country string) ([]orders.Order, error)
	UpdateStatus(ctx context.Context, orderID string, from []orders.Status, to orders.Status) (*orders.Order, error)
}

// IdempotencyStore records which order a client supplied key created.
// *idempotency.Store implements it.
type IdempotencyStore interface {
	NewRecord(key, status, orderID, principalID string) idempotency.IdempotencyRecord
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
}

// PaymentDirectory resolves payment methods. *payments.Directory implements it.
type PaymentDirectory interface {
	ListEligible(ctx context.Context, country string) ([]payments.PaymentMethod, error)
	ValidateForPlacement(ctx context.Context, methodID string, o *orders.Order, p auth.Principal) (payments.Summary, error)
}

// EventPublisher receives an event after each committed transition.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, ev events.OrderEvent) error
}

// CreateOrderInput is an already shape-validated creation request.
type CreateOrderInput struct {
	Lines []orders.Line
	// IdempotencyKey, when set, makes a retry by the same principal return
	// the order created by the first attempt.
	IdempotencyKey string
}

// Creation is the result of CreateOrder.
type Creation struct {
	Order    *orders.Order
	Replayed bool
}

// Placement is the transient receipt of a successful placement. The payment
// method is not stored on the order.
type Placement struct {
	Order             *orders.Order    `json:"order"`
	PaymentMethodUsed payments.Summary `json:"payment_method_used"`
}

type Service struct {
	orders    OrderStore
	directory PaymentDirectory
	idem      IdempotencyStore
	publisher EventPublisher
	log       zerolog.Logger
	tracer    trace.Tracer
	nowFunc   func() time.Time
	newID     func() string
}

// NewService builds the service. Without WithIdempotency, idempotency keys
// are ignored; without WithPublisher, no events are sent.
func NewService(store OrderStore, directory PaymentDirectory, log zerolog.Logger) *Service {
	return &Service{
		orders:    store,
		directory: directory,
		publisher: noopPublisher{},
		log:       log.With().Str("component", "lifecycle").Logger(),
		tracer:    otel.Tracer("github.com/imrishuroy/go-scoped-orderflow/internal/lifecycle"),
		nowFunc:   time.Now,
		newID:     uuid.NewString,
	}
}

func (s *Service) WithIdempotency(idem IdempotencyStore) *Service {
	s.idem = idem
	return s
}

func (s *Service) WithPublisher(p EventPublisher) *Service {
	if p != nil {
		s.publisher = p
	}
	return s
}

// CreateOrder creates a draft order in the caller's country.
func (s *Service) CreateOrder(ctx context.Context, p auth.Principal, in CreateOrderInput) (_ *Creation, err error) {
	ctx, span := s.start(ctx, "lifecycle.CreateOrder", p)
	defer func() { endSpan(span, err) }()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if !access.CanCreate(p) {
		return nil, apperr.New(apperr.KindForbidden, "not allowed to create orders")
	}

	now := s.nowFunc().UTC()
	o, err := orders.New(s.newID(), p.ID, p.Country, in.Lines, now)
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || s.idem == nil {
		if err := s.orders.Create(ctx, *o); err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
	} else {
		scoped := idempotency.OrderKey(p.ID, key)
		if existing, err := s.replay(ctx, scoped); existing != nil || err != nil {
			return existing, err
		}
		rec := s.idem.NewRecord(scoped, idempotency.StatusInProgress, o.ID, p.ID)
		if err := s.orders.CreateWithIdempotency(ctx, rec, *o); err != nil {
			if errors.Is(err, orders.ErrDuplicate) {
				// a concurrent request with the same key won the transaction
				existing, rerr := s.replay(ctx, scoped)
				if rerr != nil {
					return nil, rerr
				}
				if existing == nil {
					return nil, fmt.Errorf("idempotency key %s: transaction cancelled but no record", scoped)
				}
				return existing, nil
			}
			return nil, fmt.Errorf("create order: %w", err)
		}
		body := fmt.Sprintf(`{"order_id":%q,"status":%q}`, o.ID, o.Status)
		if err := s.idem.MarkDone(ctx, scoped, body, http.StatusCreated); err != nil {
			s.log.Warn().Err(err).Str("order_id", o.ID).Msg("failed to mark idempotency record done")
		}
	}

	span.SetAttributes(attribute.String("order_id", o.ID))
	s.log.Info().Str("order_id", o.ID).Str("country", o.Country).Str("total", o.Total.String()).Msg("order created")
	s.publish(ctx, events.TypeOrderCreated, o, p, "")
	return &Creation{Order: o}, nil
}

// replay returns the order an idempotency key already created, or nil when
// the key is unused.
func (s *Service) replay(ctx context.Context, key string) (*Creation, error) {
	rec, err := s.idem.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	o, err := s.orders.Get(ctx, rec.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load replayed order: %w", err)
	}
	if o == nil {
		return nil, fmt.Errorf("idempotency key %s points at missing order %s", key, rec.OrderID)
	}
	s.log.Info().Str("order_id", o.ID).Msg("idempotent replay")
	return &Creation{Order: o, Replayed: true}, nil
}

// PlaceOrder moves a draft order to placed, paid with paymentMethodID.
func (s *Service) PlaceOrder(ctx context.Context, p auth.Principal, orderID, paymentMethodID string) (_ *Placement, err error) {
	ctx, span := s.start(ctx, "lifecycle.PlaceOrder", p)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("order_id", orderID))

	if err := p.Validate(); err != nil {
		return nil, err
	}
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !access.CanMutate(p, o) {
		return nil, apperr.New(apperr.KindForbidden, "not allowed to place this order")
	}
	if err := o.CanTransition(orders.StatusPlaced); err != nil {
		return nil, err
	}
	if strings.TrimSpace(paymentMethodID) == "" {
		return nil, apperr.ErrPaymentMethodRequired
	}
	summary, err := s.directory.ValidateForPlacement(ctx, paymentMethodID, o, p)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, orderID, orders.StatusPlaced)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("payment_method_id", summary.ID))
	s.log.Info().Str("order_id", orderID).Str("payment_method_id", summary.ID).Str("by", p.ID).Msg("order placed")
	s.publish(ctx, events.TypeOrderPlaced, updated, p, summary.ID)
	return &Placement{Order: updated, PaymentMethodUsed: summary}, nil
}

// CancelOrder cancels a draft or placed order.
func (s *Service) CancelOrder(ctx context.Context, p auth.Principal, orderID string) (_ *orders.Order, err error) {
	ctx, span := s.start(ctx, "lifecycle.CancelOrder", p)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("order_id", orderID))

	if err := p.Validate(); err != nil {
		return nil, err
	}
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !access.CanMutate(p, o) {
		return nil, apperr.New(apperr.KindForbidden, "not allowed to cancel this order")
	}
	if err := o.CanTransition(orders.StatusCancelled); err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, orderID, orders.StatusCancelled)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("order_id", orderID).Str("by", p.ID).Msg("order cancelled")
	s.publish(ctx, events.TypeOrderCancelled, updated, p, "")
	return updated, nil
}

// ListOrders returns every order for an admin, otherwise the orders of the
// caller's country. Newest first.
func (s *Service) ListOrders(ctx context.Context, p auth.Principal) (_ []orders.Order, err error) {
	ctx, span := s.start(ctx, "lifecycle.ListOrders", p)
	defer func() { endSpan(span, err) }()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	var list []orders.Order
	if p.IsAdmin() {
		list, err = s.orders.ListAll(ctx)
	} else {
		list, err = s.orders.ListByCountry(ctx, p.Country)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if list == nil {
		list = []orders.Order{}
	}
	return list, nil
}

// GetOrder returns one order the caller may read.
func (s *Service) GetOrder(ctx context.Context, p auth.Principal, orderID string) (_ *orders.Order, err error) {
	ctx, span := s.start(ctx, "lifecycle.GetOrder", p)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("order_id", orderID))

	if err := p.Validate(); err != nil {
		return nil, err
	}
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !access.CanRead(p, o) {
		return nil, apperr.New(apperr.KindForbidden, "not allowed to view this order")
	}
	return o, nil
}

// ListEligiblePaymentMethods returns the global methods plus those scoped to
// country.
func (s *Service) ListEligiblePaymentMethods(ctx context.Context, country string) ([]payments.PaymentMethod, error) {
	methods, err := s.directory.ListEligible(ctx, country)
	if err != nil {
		return nil, err
	}
	if methods == nil {
		methods = []payments.PaymentMethod{}
	}
	return methods, nil
}

func (s *Service) load(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if o == nil {
		return nil, apperr.New(apperr.KindNotFound, "order not found")
	}
	return o, nil
}

// transition performs the conditional status write. If another request
// changed the status first, the order is re-read and the refusal is reported
// against the winner's status. There is no retry.
func (s *Service) transition(ctx context.Context, orderID string, to orders.Status) (*orders.Order, error) {
	updated, err := s.orders.UpdateStatus(ctx, orderID, orders.TransitionSources(to), to)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, orders.ErrStatusMismatch) {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	current, lerr := s.load(ctx, orderID)
	if lerr != nil {
		return nil, lerr
	}
	if terr := current.CanTransition(to); terr != nil {
		return nil, terr
	}
	return nil, fmt.Errorf("order %s: %w", orderID, err)
}

func (s *Service) publish(ctx context.Context, typ events.Type, o *orders.Order, p auth.Principal, paymentMethodID string) {
	ev := events.OrderEvent{
		EventID:         s.newID(),
		Type:            typ,
		OrderID:         o.ID,
		Country:         o.Country,
		Status:          string(o.Status),
		Total:           o.Total,
		PrincipalID:     p.ID,
		PaymentMethodID: paymentMethodID,
		OccurredAt:      s.nowFunc().UTC(),
	}
	if err := s.publisher.PublishOrderEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("order_id", o.ID).Str("event_type", string(typ)).Msg("failed to publish order event")
	}
}

func (s *Service) start(ctx context.Context, name string, p auth.Principal) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("principal.id", p.ID),
		attribute.String("principal.role", string(p.Role)),
		attribute.String("principal.country", p.Country),
	)
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if kind := apperr.KindOf(err); kind != "" {
			span.SetAttributes(attribute.String("rejection", string(kind)))
		} else {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

type noopPublisher struct{}

func (noopPublisher) PublishOrderEvent(context.Context, events.OrderEvent) error { return nil }
