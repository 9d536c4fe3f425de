package validation

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-scoped-orderflow/internal/apperr"
)

// BindAndValidate binds JSON body into `out` and runs validation.
// If either fails, it writes a 400 response tagged with kind and returns an
// error for the handler to short-circuit.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate, kind apperr.Kind) error {
	return bindAndValidate(c, out, v, kind, false)
}

// BindOptional is BindAndValidate for a body that may be absent. An empty
// body, chunked or not, leaves out at its zero value.
func BindOptional(c *gin.Context, out interface{}, v *validatorv10.Validate, kind apperr.Kind) error {
	return bindAndValidate(c, out, v, kind, true)
}

func bindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate, kind apperr.Kind, optional bool) error {
	err := c.ShouldBindJSON(out)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   kind,
			"message": "invalid request body: " + err.Error(),
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   kind,
			"message": "validation failed",
			"fields":  validationErrorsToMap(err),
		})
		return err
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Namespace()] = fe.Tag()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}
