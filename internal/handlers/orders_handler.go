package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-scoped-orderflow/internal/apperr"
	"github.com/imrishuroy/go-scoped-orderflow/internal/auth"
	"github.com/imrishuroy/go-scoped-orderflow/internal/lifecycle"
	"github.com/imrishuroy/go-scoped-orderflow/internal/orders"
	"github.com/imrishuroy/go-scoped-orderflow/internal/payments"
	"github.com/imrishuroy/go-scoped-orderflow/internal/validation"
)

// OrderService is the lifecycle surface the routes call.
// *lifecycle.Service implements it.
type OrderService interface {
	CreateOrder(ctx context.Context, p auth.Principal, in lifecycle.CreateOrderInput) (*lifecycle.Creation, error)
	PlaceOrder(ctx context.Context, p auth.Principal, orderID, paymentMethodID string) (*lifecycle.Placement, error)
	CancelOrder(ctx context.Context, p auth.Principal, orderID string) (*orders.Order, error)
	ListOrders(ctx context.Context, p auth.Principal) ([]orders.Order, error)
	GetOrder(ctx context.Context, p auth.Principal, orderID string) (*orders.Order, error)
	ListEligiblePaymentMethods(ctx context.Context, country string) ([]payments.PaymentMethod, error)
}

// PaymentAdmin is the directory surface behind /payments.
// *payments.Directory implements it.
type PaymentAdmin interface {
	ListAll(ctx context.Context) ([]payments.PaymentMethod, error)
	Create(ctx context.Context, p auth.Principal, in payments.CreateInput) (*payments.PaymentMethod, error)
	Update(ctx context.Context, p auth.Principal, id string, in payments.UpdateInput) (*payments.PaymentMethod, error)
	Delete(ctx context.Context, p auth.Principal, id string) error
}

// HandlerConfig groups dependencies for the route handlers.
type HandlerConfig struct {
	Service    OrderService
	Payments   PaymentAdmin
	Validator  *validatorv10.Validate
	Rejections RejectionObserver // optional
}

type routes struct {
	svc OrderService
	pm  PaymentAdmin
	v   *validatorv10.Validate
	obs RejectionObserver
}

func newRoutes(cfg HandlerConfig) *routes {
	r := &routes{svc: cfg.Service, pm: cfg.Payments, v: cfg.Validator, obs: cfg.Rejections}
	if r.v == nil {
		r.v = validation.New()
	}
	if r.obs == nil {
		r.obs = noopObserver{}
	}
	return r
}

// Register mounts the order and payment routes on rg, which must already
// run auth.Authenticate.
func Register(rg gin.IRouter, cfg HandlerConfig) {
	r := newRoutes(cfg)
	r.registerOrders(rg)
	r.registerPayments(rg)
}

// registerOrders registers routes for the order API.
func (r *routes) registerOrders(rg gin.IRouter) {
	g := rg.Group("/orders")
	g.POST("", r.createOrder)
	g.GET("", r.listOrders)
	g.GET("/:id", r.getOrder)
	g.POST("/:id/place", r.placeOrder)
	g.POST("/:id/cancel", r.cancelOrder)
	g.DELETE("/:id/cancel", r.cancelOrder)
}

// principal returns the authenticated caller, or writes 401.
func (r *routes) principal(c *gin.Context) (auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		writeError(c, r.obs, apperr.ErrUnauthenticated)
		return auth.Principal{}, false
	}
	return p, true
}

func (r *routes) createOrder(c *gin.Context) {
	p, ok := r.principal(c)
	if !ok {
		return
	}

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, r.v, apperr.KindInvalidOrderInput); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	res, err := r.svc.CreateOrder(c.Request.Context(), p, lifecycle.CreateOrderInput{
		Lines:          req.Lines(),
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	})
	if err != nil {
		writeError(c, r.obs, err)
		return
	}

	c.Header("Location", fmt.Sprintf("/orders/%s", res.Order.ID))
	if res.Replayed {
		c.Header("Idempotent-Replayed", "true")
		c.JSON(http.StatusOK, res.Order)
		return
	}
	c.JSON(http.StatusCreated, res.Order)
}

func (r *routes) placeOrder(c *gin.Context) {
	p, ok := r.principal(c)
	if !ok {
		return
	}

	// an empty body is a missing payment method, reported by the service
	var req validation.PlaceOrderRequest
	if err := validation.BindOptional(c, &req, r.v, apperr.KindInvalidRequest); err != nil {
		return
	}

	res, err := r.svc.PlaceOrder(c.Request.Context(), p, c.Param("id"), req.PaymentMethodID)
	if err != nil {
		writeError(c, r.obs, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *routes) cancelOrder(c *gin.Context) {
	p, ok := r.principal(c)
	if !ok {
		return
	}
	o, err := r.svc.CancelOrder(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		writeError(c, r.obs, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (r *routes) listOrders(c *gin.Context) {
	p, ok := r.principal(c)
	if !ok {
		return
	}
	list, err := r.svc.ListOrders(c.Request.Context(), p)
	if err != nil {
		writeError(c, r.obs, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

func (r *routes) getOrder(c *gin.Context) {
	p, ok := r.principal(c)
	if !ok {
		return
	}
	o, err := r.svc.GetOrder(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		writeError(c, r.obs, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
