package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-scoped-orderflow/internal/apperr"
)

const principalKey = "auth.principal"

// Authenticate rejects requests without a valid bearer token before any
// handler runs and stores the verified principal on the gin context.
func Authenticate(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := v.Verify(bearerToken(c.GetHeader("Authorization")))
		if err != nil {
			msg := err.Error()
			var ae *apperr.Error
			if errors.As(err, &ae) {
				msg = ae.Message
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   apperr.KindUnauthenticated,
				"message": msg,
			})
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by Authenticate.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
