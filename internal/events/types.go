package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type names a committed order lifecycle transition.
type Type string

const (
	TypeOrderCreated   Type = "order.created"
	TypeOrderPlaced    Type = "order.placed"
	TypeOrderCancelled Type = "order.cancelled"
)

// OrderEvent is the payload sent from API -> SQS -> Worker after a transition commits.
type OrderEvent struct {
	EventID         string          `json:"event_id"`
	Type            Type            `json:"type"`
	OrderID         string          `json:"order_id"`
	Country         string          `json:"country"`
	Status          string          `json:"status"`
	Total           decimal.Decimal `json:"total"`
	PrincipalID     string          `json:"principal_id"`
	PaymentMethodID string          `json:"payment_method_id,omitempty"`
	OccurredAt      time.Time       `json:"occurred_at"`
}
