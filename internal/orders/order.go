package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-scoped-orderflow/internal/apperr"
)

// New builds a draft order. The total is computed here once and is not
// recomputed afterwards.
func New(id, ownerID, country string, lines []Line, now time.Time) (*Order, error) {
	if len(lines) == 0 {
		return nil, apperr.New(apperr.KindInvalidOrderInput, "order must have at least one line")
	}

	total := decimal.Zero
	copied := make([]Line, 0, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l.Name) == "" {
			return nil, apperr.New(apperr.KindInvalidOrderInput, fmt.Sprintf("line %d: name is required", i))
		}
		if l.Quantity < 1 {
			return nil, apperr.New(apperr.KindInvalidOrderInput, fmt.Sprintf("line %d: quantity must be at least 1", i))
		}
		if l.UnitPrice.IsNegative() {
			return nil, apperr.New(apperr.KindInvalidOrderInput, fmt.Sprintf("line %d: price must not be negative", i))
		}
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		copied = append(copied, l)
	}

	return &Order{
		ID:        id,
		OwnerID:   ownerID,
		Country:   country,
		Lines:     copied,
		Total:     total,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Place moves a draft order to placed.
func (o *Order) Place() error {
	if err := o.guard(StatusPlaced); err != nil {
		return err
	}
	o.Status = StatusPlaced
	return nil
}

// Cancel moves a draft or placed order to cancelled. Placement does not
// block cancellation.
func (o *Order) Cancel() error {
	if err := o.guard(StatusCancelled); err != nil {
		return err
	}
	o.Status = StatusCancelled
	return nil
}

// CanTransition reports whether the order may move to status to.
func (o *Order) CanTransition(to Status) error {
	return o.guard(to)
}

func (o *Order) guard(to Status) error {
	for _, from := range TransitionSources(to) {
		if o.Status == from {
			return nil
		}
	}
	return transitionError(o.Status)
}

// TransitionSources lists the statuses from which to is reachable.
func TransitionSources(to Status) []Status {
	switch to {
	case StatusPlaced:
		return []Status{StatusDraft}
	case StatusCancelled:
		return []Status{StatusDraft, StatusPlaced}
	}
	return nil
}

// transitionError explains why an order in status current refused a move.
func transitionError(current Status) error {
	switch current {
	case StatusPlaced:
		return apperr.New(apperr.KindAlreadyPlaced, "order already placed")
	case StatusCancelled:
		return apperr.New(apperr.KindAlreadyCancelled, "order already cancelled, please re-order")
	}
	return fmt.Errorf("illegal transition from status %q", current)
}
