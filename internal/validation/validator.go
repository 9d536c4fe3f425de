package validation

import (
	"fmt"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/shopspring/decimal"
)

// New returns a configured validator with custom types and struct-level
// validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// decimals are validated as float64 so numeric tags (gte, lte) apply
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	_ = v.RegisterValidation("notblank", validators.NotBlank)

	// register struct-level validation for CreateOrderRequest to ensure
	// a claimed Total matches the sum of (price * qty) of items.
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

// createOrderStructValidation verifies a client supplied total equals the
// sum of the items exactly.
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)
	if req.Total == nil {
		return
	}

	sum := decimal.Zero
	for _, it := range req.Items {
		if it.Price == nil {
			return // reported by the field tags
		}
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if !sum.Equal(*req.Total) {
		sl.ReportError(req.Total, "total", "Total", "total_match_items", fmt.Sprintf("items sum %s != total %s", sum, req.Total))
	}
}
