package validation

import (
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-scoped-orderflow/internal/orders"
)

// Item represents a single order line.
type Item struct {
	Name     string           `json:"name" validate:"required,notblank,max=200"` // display name of the menu item
	Quantity int              `json:"qty" validate:"required,min=1"`             // must be >= 1
	Price    *decimal.Decimal `json:"price" validate:"required,gte=0"`           // unit price supplied by the client
}

// CreateOrderRequest is the payload for POST /orders
type CreateOrderRequest struct {
	Items []Item           `json:"items" validate:"required,min=1,max=100,dive"` // at least one item
	Total *decimal.Decimal `json:"total,omitempty"`                              // optional total the client claims
}

// Lines converts the request items into order lines, preserving order.
func (r CreateOrderRequest) Lines() []orders.Line {
	lines := make([]orders.Line, 0, len(r.Items))
	for _, it := range r.Items {
		price := decimal.Zero
		if it.Price != nil {
			price = *it.Price
		}
		lines = append(lines, orders.Line{Name: it.Name, Quantity: it.Quantity, UnitPrice: price})
	}
	return lines
}

// PlaceOrderRequest is the payload for POST /orders/:id/place. A missing
// payment method is reported by the lifecycle service, not here.
type PlaceOrderRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"omitempty,max=128"`
}

// CreatePaymentMethodRequest is the payload for POST /payments
type CreatePaymentMethodRequest struct {
	ID      string                 `json:"id,omitempty" validate:"omitempty,max=128"`
	Type    string                 `json:"type" validate:"required,oneof=card upi wallet cod other"`
	Details map[string]interface{} `json:"details,omitempty"`
	Country string                 `json:"country,omitempty" validate:"omitempty,max=64"` // empty or "global" for global methods
}

// UpdatePaymentMethodRequest is the payload for PATCH /payments/:id; absent
// fields are left unchanged.
type UpdatePaymentMethodRequest struct {
	Type    *string                `json:"type,omitempty" validate:"omitempty,oneof=card upi wallet cod other"`
	Details map[string]interface{} `json:"details,omitempty"`
	Country *string                `json:"country,omitempty" validate:"omitempty,max=64"`
}
