package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-scoped-orderflow/internal/apperr"
	"github.com/imrishuroy/go-scoped-orderflow/internal/payments"
)

// RejectionObserver counts typed rejections. *telemetry.Metrics implements it.
type RejectionObserver interface {
	ObserveRejection(err error)
}

type noopObserver struct{}

func (noopObserver) ObserveRejection(error) {}

var statusByKind = map[apperr.Kind]int{
	apperr.KindUnauthenticated:         http.StatusUnauthorized,
	apperr.KindForbidden:               http.StatusForbidden,
	apperr.KindNotFound:                http.StatusNotFound,
	apperr.KindInvalidOrderInput:       http.StatusBadRequest,
	apperr.KindInvalidRequest:          http.StatusBadRequest,
	apperr.KindAlreadyPlaced:           http.StatusConflict,
	apperr.KindAlreadyCancelled:        http.StatusConflict,
	apperr.KindPaymentMethodRequired:   http.StatusBadRequest,
	apperr.KindPaymentMethodNotFound:   http.StatusNotFound,
	apperr.KindPaymentMethodIneligible: http.StatusUnprocessableEntity,
}

// StatusFor maps an error to its HTTP status; untyped errors are 500.
func StatusFor(err error) int {
	if code, ok := statusByKind[apperr.KindOf(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": kind, "message": msg}. Internal
// failures are logged and their detail is not returned to the client.
func writeError(c *gin.Context, obs RejectionObserver, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		obs.ObserveRejection(err)
		c.AbortWithStatusJSON(StatusFor(err), gin.H{"error": ae.Kind, "message": ae.Message})
		return
	}
	if errors.Is(err, payments.ErrDuplicate) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "already_exists", "message": payments.ErrDuplicate.Error()})
		return
	}
	_ = c.Error(err)
	zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "internal server error",
	})
}
