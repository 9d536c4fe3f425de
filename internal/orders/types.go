package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Status of an order.
type Status string

// Order statuses
const (
	StatusDraft     Status = "draft"
	StatusPlaced    Status = "placed"
	StatusCancelled Status = "cancelled"
)

// Line is a single order line. Lines keep submission order.
type Line struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"price"`
}

// Order is the aggregate owned by the lifecycle service. Country is the
// creator's country at creation time and is never rewritten.
type Order struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"user_id"`
	Country   string          `json:"country"`
	Lines     []Line          `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// MarshalJSON renders the total as a decimal string with at least two
// fraction digits, e.g. "19.00".
func (o Order) MarshalJSON() ([]byte, error) {
	type alias Order
	return json.Marshal(struct {
		alias
		Total string `json:"total"`
	}{alias: alias(o), Total: FormatMoney(o.Total)})
}

// FormatMoney renders d with at least two fraction digits and never rounds.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(max(2, -d.Exponent()))
}

// orderRecord is the item stored in the Orders DynamoDB table. Money is kept
// as decimal strings so no precision is lost in the number round trip.
type orderRecord struct {
	OrderID   string       `dynamodbav:"order_id"` // PK
	OwnerID   string       `dynamodbav:"owner_id"`
	Country   string       `dynamodbav:"country"` // GSI partition key
	Status    string       `dynamodbav:"status"`
	Total     string       `dynamodbav:"total"`
	Lines     []lineRecord `dynamodbav:"lines"`
	CreatedAt time.Time    `dynamodbav:"created_at"` // GSI sort key
	UpdatedAt time.Time    `dynamodbav:"updated_at"`
}

type lineRecord struct {
	Name      string `dynamodbav:"name"`
	Quantity  int    `dynamodbav:"quantity"`
	UnitPrice string `dynamodbav:"unit_price"`
}

func toRecord(o Order) orderRecord {
	lines := make([]lineRecord, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, lineRecord{Name: l.Name, Quantity: l.Quantity, UnitPrice: l.UnitPrice.String()})
	}
	return orderRecord{
		OrderID:   o.ID,
		OwnerID:   o.OwnerID,
		Country:   o.Country,
		Status:    string(o.Status),
		Total:     o.Total.String(),
		Lines:     lines,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func (r orderRecord) toOrder() (Order, error) {
	total, err := decimal.NewFromString(r.Total)
	if err != nil {
		return Order{}, err
	}
	lines := make([]Line, 0, len(r.Lines))
	for _, l := range r.Lines {
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return Order{}, err
		}
		lines = append(lines, Line{Name: l.Name, Quantity: l.Quantity, UnitPrice: price})
	}
	return Order{
		ID:        r.OrderID,
		OwnerID:   r.OwnerID,
		Country:   r.Country,
		Lines:     lines,
		Total:     total,
		Status:    Status(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}
