package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-scoped-orderflow/internal/access"
	"github.com/imrishuroy/go-scoped-orderflow/internal/apperr"
	"github.com/imrishuroy/go-scoped-orderflow/internal/payments"
	"github.com/imrishuroy/go-scoped-orderflow/internal/validation"
)

func (r *routes) registerPayments(rg gin.IRouter) {
	g := rg.Group("/payments")
	g.GET("", r.listPayments)
	g.GET("/eligible", r.listEligible)
	g.POST("", r.createPayment)
	g.PATCH("/:id", r.updatePayment)
	g.DELETE("/:id", r.deletePayment)
}

// listPayments shows admins every method and everyone else the methods
// eligible in their own country.
func (r *routes) listPayments(c *gin.Context) {
	p, ok := r.principal(c)
	if !ok {
		return
	}
	var (
		list []payments.PaymentMethod
		err  error
	)
	if p.IsAdmin() {
		list, err = r.pm.ListAll(c.Request.Context())
	} else {
		list, err = r.svc.ListEligiblePaymentMethods(c.Request.Context(), p.Country)
	}
	if err != nil {
		writeError(c, r.obs, err)
		return
	}
	if list == nil {
		list = []payments.PaymentMethod{}
	}
	c.JSON(http.StatusOK, gin.H{"payment_methods": list})
}

// listEligible defaults to the caller's country; non-admins may not ask
// about another one.
func (r *routes) listEligible(c *gin.Context) {
	p, ok := r.principal(c)
	if !ok {
		return
	}
	country := access.NormalizeCountry(c.Query("country"))
	if country == "" {
		country = p.Country
	}
	if !access.CanListPaymentsFor(p, country) {
		writeError(c, r.obs, apperr.New(apperr.KindForbidden, "cannot list payment methods of another country"))
		return
	}
	list, err := r.svc.ListEligiblePaymentMethods(c.Request.Context(), country)
	if err != nil {
		writeError(c, r.obs, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"country": country, "payment_methods": list})
}

func (r *routes) createPayment(c *gin.Context) {
	p, ok := r.principal(c)
	if !ok {
		return
	}
	if !access.CanManagePayments(p) {
		writeError(c, r.obs, apperr.New(apperr.KindForbidden, "only admins can manage payment methods"))
		return
	}

	var req validation.CreatePaymentMethodRequest
	if err := validation.BindAndValidate(c, &req, r.v, apperr.KindInvalidRequest); err != nil {
		return
	}
	m, err := r.pm.Create(c.Request.Context(), p, payments.CreateInput{
		ID:      req.ID,
		Type:    payments.Type(req.Type),
		Details: req.Details,
		Country: req.Country,
	})
	if err != nil {
		writeError(c, r.obs, err)
		return
	}
	c.Header("Location", "/payments/"+m.ID)
	c.JSON(http.StatusCreated, m)
}

func (r *routes) updatePayment(c *gin.Context) {
	p, ok := r.principal(c)
	if !ok {
		return
	}
	if !access.CanManagePayments(p) {
		writeError(c, r.obs, apperr.New(apperr.KindForbidden, "only admins can manage payment methods"))
		return
	}

	var req validation.UpdatePaymentMethodRequest
	if err := validation.BindAndValidate(c, &req, r.v, apperr.KindInvalidRequest); err != nil {
		return
	}
	in := payments.UpdateInput{Details: req.Details, Country: req.Country}
	if req.Type != nil {
		t := payments.Type(*req.Type)
		in.Type = &t
	}
	m, err := r.pm.Update(c.Request.Context(), p, c.Param("id"), in)
	if err != nil {
		writeError(c, r.obs, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (r *routes) deletePayment(c *gin.Context) {
	p, ok := r.principal(c)
	if !ok {
		return
	}
	if err := r.pm.Delete(c.Request.Context(), p, c.Param("id")); err != nil {
		writeError(c, r.obs, err)
		return
	}
	c.Status(http.StatusNoContent)
}
