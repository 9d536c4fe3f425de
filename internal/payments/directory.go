// Package payments is the payment method directory: global and
// country-scoped methods, eligibility at placement, and admin upkeep.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-scoped-orderflow/internal/access"
	"github.com/imrishuroy/go-scoped-orderflow/internal/apperr"
	"github.com/imrishuroy/go-scoped-orderflow/internal/auth"
	"github.com/imrishuroy/go-scoped-orderflow/internal/orders"
)

// MethodStore is the persistence the directory needs. *Store implements it.
type MethodStore interface {
	Put(ctx context.Context, m PaymentMethod) error
	Replace(ctx context.Context, m PaymentMethod) error
	Get(ctx context.Context, id string) (*PaymentMethod, error)
	ListAll(ctx context.Context) ([]PaymentMethod, error)
	ListByScope(ctx context.Context, country string) ([]PaymentMethod, error)
	Delete(ctx context.Context, id string) error
}

// CreateInput describes a new method. A blank Country makes it global and
// a blank ID is generated.
type CreateInput struct {
	ID      string
	Type    Type
	Details map[string]interface{}
	Country string
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	Type    *Type
	Details map[string]interface{}
	Country *string
}

type Directory struct {
	store   MethodStore
	log     zerolog.Logger
	nowFunc func() time.Time
	newID   func() string
}

func NewDirectory(store MethodStore, log zerolog.Logger) *Directory {
	return &Directory{
		store:   store,
		log:     log.With().Str("component", "payments").Logger(),
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}
}

// ListEligible returns the global methods plus those scoped to country,
// oldest first.
func (d *Directory) ListEligible(ctx context.Context, country string) ([]PaymentMethod, error) {
	methods, err := d.store.ListByScope(ctx, country)
	if err != nil {
		return nil, fmt.Errorf("list eligible payment methods: %w", err)
	}
	return methods, nil
}

// ListAll returns every method regardless of scope, oldest first.
func (d *Directory) ListAll(ctx context.Context) ([]PaymentMethod, error) {
	methods, err := d.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	return methods, nil
}

// ValidateForPlacement checks that methodID exists and may pay for o when
// placed by p. Admins may use a method of any country.
func (d *Directory) ValidateForPlacement(ctx context.Context, methodID string, o *orders.Order, p auth.Principal) (Summary, error) {
	methodID = strings.TrimSpace(methodID)
	if methodID == "" {
		return Summary{}, apperr.ErrPaymentMethodRequired
	}
	m, err := d.store.Get(ctx, methodID)
	if err != nil {
		return Summary{}, fmt.Errorf("get payment method %s: %w", methodID, err)
	}
	if m == nil {
		return Summary{}, apperr.New(apperr.KindPaymentMethodNotFound, fmt.Sprintf("payment method %s not found", methodID))
	}
	if !m.IsGlobal() && m.Scope != o.Country && !p.IsAdmin() {
		return Summary{}, apperr.New(apperr.KindPaymentMethodIneligible,
			fmt.Sprintf("payment method %s is limited to %s, order is from %s", m.ID, m.Scope, o.Country))
	}
	return m.Summary(), nil
}

// Create adds a payment method. Admin only.
func (d *Directory) Create(ctx context.Context, p auth.Principal, in CreateInput) (*PaymentMethod, error) {
	if !access.CanManagePayments(p) {
		return nil, apperr.New(apperr.KindForbidden, "only admins can manage payment methods")
	}
	t, ok := ParseType(string(in.Type))
	if !ok {
		return nil, apperr.New(apperr.KindInvalidRequest, fmt.Sprintf("unknown payment type %q", in.Type))
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = d.newID()
	}
	now := d.nowFunc().UTC()
	m := PaymentMethod{
		ID:        id,
		Type:      t,
		Details:   in.Details,
		Scope:     ScopeFor(in.Country),
		CreatedBy: p.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.store.Put(ctx, m); err != nil {
		return nil, fmt.Errorf("create payment method: %w", err)
	}
	d.log.Info().Str("payment_method_id", m.ID).Str("scope", m.Scope).Str("by", p.ID).Msg("payment method created")
	return &m, nil
}

// Update changes type, details or scope of a method. Admin only; scope is
// never changed by any other path.
func (d *Directory) Update(ctx context.Context, p auth.Principal, id string, in UpdateInput) (*PaymentMethod, error) {
	if !access.CanManagePayments(p) {
		return nil, apperr.New(apperr.KindForbidden, "only admins can manage payment methods")
	}
	m, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get payment method %s: %w", id, err)
	}
	if m == nil {
		return nil, apperr.New(apperr.KindNotFound, "payment method not found")
	}
	if in.Type != nil {
		t, ok := ParseType(string(*in.Type))
		if !ok {
			return nil, apperr.New(apperr.KindInvalidRequest, fmt.Sprintf("unknown payment type %q", *in.Type))
		}
		m.Type = t
	}
	if in.Details != nil {
		m.Details = in.Details
	}
	if in.Country != nil {
		m.Scope = ScopeFor(*in.Country)
	}
	m.UpdatedAt = d.nowFunc().UTC()

	if err := d.store.Replace(ctx, *m); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "payment method not found")
		}
		return nil, fmt.Errorf("update payment method: %w", err)
	}
	d.log.Info().Str("payment_method_id", m.ID).Str("scope", m.Scope).Str("by", p.ID).Msg("payment method updated")
	return m, nil
}

// Delete removes a method. Admin only.
func (d *Directory) Delete(ctx context.Context, p auth.Principal, id string) error {
	if !access.CanManagePayments(p) {
		return apperr.New(apperr.KindForbidden, "only admins can manage payment methods")
	}
	if err := d.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.New(apperr.KindNotFound, "payment method not found")
		}
		return fmt.Errorf("delete payment method: %w", err)
	}
	d.log.Info().Str("payment_method_id", id).Str("by", p.ID).Msg("payment method deleted")
	return nil
}
