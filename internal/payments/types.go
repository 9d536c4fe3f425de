package payments

import (
	"strings"
	"time"
)

// Type of a payment method.
type Type string

const (
	TypeCard   Type = "card"
	TypeUPI    Type = "upi"
	TypeWallet Type = "wallet"
	TypeCOD    Type = "cod"
	TypeOther  Type = "other"
)

// ParseType accepts the lowercase wire form of a payment type.
func ParseType(s string) (Type, bool) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeCard, TypeUPI, TypeWallet, TypeCOD, TypeOther:
		return t, true
	}
	return "", false
}

// ScopeGlobal marks a method usable by orders of any country.
const ScopeGlobal = "global"

// PaymentMethod is stored in the PaymentMethods DynamoDB table. Details is
// opaque to this service and never inspected.
type PaymentMethod struct {
	ID        string                 `json:"id" dynamodbav:"payment_method_id"` // PK
	Type      Type                   `json:"type" dynamodbav:"type"`
	Details   map[string]interface{} `json:"details,omitempty" dynamodbav:"details,omitempty"`
	Scope     string                 `json:"scope" dynamodbav:"scope_country"`
	CreatedBy string                 `json:"created_by,omitempty" dynamodbav:"created_by,omitempty"`
	CreatedAt time.Time              `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" dynamodbav:"updated_at"`
}

// IsGlobal reports whether the method is usable in every country.
func (m PaymentMethod) IsGlobal() bool {
	return m.Scope == ScopeGlobal
}

// Summary is the public-safe receipt of the method used for a placement.
type Summary struct {
	ID   string `json:"id"`
	Type Type   `json:"type"`
}

func (m PaymentMethod) Summary() Summary {
	return Summary{ID: m.ID, Type: m.Type}
}

// ScopeFor maps a country name to a stored scope; blank means global.
func ScopeFor(country string) string {
	c := strings.TrimSpace(country)
	if c == "" || strings.EqualFold(c, ScopeGlobal) {
		return ScopeGlobal
	}
	return c
}
