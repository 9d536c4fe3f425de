package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/imrishuroy/go-scoped-orderflow/internal/apperr"
)

// Claims is the bearer token payload: sub, email, role, country.
type Claims struct {
	Email   string `json:"email,omitempty"`
	Role    string `json:"role"`
	Country string `json:"country"`
	jwt.RegisteredClaims
}

// Verifier turns HS256 bearer tokens into principals.
type Verifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewVerifier returns a Verifier. An empty issuer disables the iss check.
func NewVerifier(secret, issuer string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}
}

// Verify parses and validates token. Every failure is reported as
// apperr.KindUnauthenticated.
func (v *Verifier) Verify(token string) (Principal, error) {
	if token == "" {
		return Principal{}, apperr.New(apperr.KindUnauthenticated, "missing credential")
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		msg := "invalid credential"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "credential expired"
		}
		return Principal{}, apperr.New(apperr.KindUnauthenticated, msg)
	}

	role, _ := ParseRole(claims.Role)
	p := Principal{
		ID:      strings.TrimSpace(claims.Subject),
		Role:    role,
		Country: strings.TrimSpace(claims.Country),
	}
	if err := p.Validate(); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// Issuer mints tokens accepted by a Verifier sharing the same secret.
type Issuer struct {
	secret  []byte
	issuer  string
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewIssuer(secret, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, nowFunc: time.Now}
}

// Sign returns a signed token for p.
func (i *Issuer) Sign(p Principal, email string) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	now := i.nowFunc()
	claims := Claims{
		Email:   email,
		Role:    string(p.Role),
		Country: p.Country,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
