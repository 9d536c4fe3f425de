// Package access decides who may see and change which order. Every function
// is a pure predicate over the caller's principal and the order; none touch
// storage.
package access

import (
	"strings"

	"github.com/imrishuroy/go-scoped-orderflow/internal/auth"
	"github.com/imrishuroy/go-scoped-orderflow/internal/orders"
)

// CanRead reports whether p may see o.
func CanRead(p auth.Principal, o *orders.Order) bool {
	if o == nil {
		return false
	}
	return p.IsAdmin() || sameCountry(p.Country, o.Country)
}

// CanMutate reports whether p may place or cancel o. Members may only
// build drafts.
func CanMutate(p auth.Principal, o *orders.Order) bool {
	if o == nil {
		return false
	}
	switch p.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleManager:
		return sameCountry(p.Country, o.Country)
	}
	return false
}

// CanCreate reports whether p may create orders. Any authenticated role can.
func CanCreate(p auth.Principal) bool {
	return p.Validate() == nil
}

// CanManagePayments reports whether p may create, update or delete payment
// methods.
func CanManagePayments(p auth.Principal) bool {
	return p.IsAdmin()
}

// CanListPaymentsFor reports whether p may list the payment methods
// eligible in country.
func CanListPaymentsFor(p auth.Principal, country string) bool {
	return p.IsAdmin() || sameCountry(p.Country, country)
}

func sameCountry(a, b string) bool {
	return a != "" && a == b
}

// NormalizeCountry trims surrounding whitespace from a country name.
// Countries are compared case-sensitively.
func NormalizeCountry(country string) string {
	return strings.TrimSpace(country)
}
