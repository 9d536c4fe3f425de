package auth

import (
	"strings"

	"github.com/imrishuroy/go-scoped-orderflow/internal/apperr"
)

// Role of an authenticated principal.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// ParseRole accepts the lowercase wire form of a role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleManager, RoleMember:
		return r, true
	}
	return "", false
}

// Principal is the authorization context of a single request: who is
// calling, with which role, from which country. It is derived once from a
// verified credential and passed by value to every operation.
type Principal struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Country string `json:"country"`
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Validate rejects principals that could not have come from a verified
// credential.
func (p Principal) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return apperr.New(apperr.KindUnauthenticated, "credential has no subject")
	}
	if _, ok := ParseRole(string(p.Role)); !ok {
		return apperr.New(apperr.KindUnauthenticated, "credential has unknown role")
	}
	if strings.TrimSpace(p.Country) == "" {
		return apperr.New(apperr.KindUnauthenticated, "credential has no country")
	}
	return nil
}
