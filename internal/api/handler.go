package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orders   *service.OrderService
	checkout *service.CheckoutService
	geoStore *store.Store
}

// NewHandler creates a new HTTP handler
func NewHandler(orders *service.OrderService, checkout *service.CheckoutService, geoStore *store.Store) *Handler {
	return &Handler{
		orders:   orders,
		checkout: checkout,
		geoStore: geoStore,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)

		v1.POST("/checkout", h.startCheckout)
		v1.GET("/checkout/:id", h.getCheckout)
		v1.PUT("/checkout/:id/items", h.setCheckoutItems)
		v1.PUT("/checkout/:id/address", h.setCheckoutAddress)
		v1.PUT("/checkout/:id/payment", h.setCheckoutPayment)
		v1.POST("/checkout/:id/advance", h.advanceCheckout)
		v1.POST("/checkout/:id/back", h.backCheckout)
		v1.POST("/checkout/:id/submit", h.submitCheckout)

		v1.GET("/geo/divisions", h.listDivisions)
		v1.GET("/geo/divisions/:id/districts", h.listDistricts)
		v1.GET("/geo/districts/:id/upazilas", h.listUpazilas)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// userID reads the authenticated identity set by the auth layer. Guests
// have none.
func userID(c *gin.Context) *int64 {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

// createOrder handles the single order-submission request.
func (h *Handler) createOrder(c *gin.Context) {
	var req service.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.UserID = userID(c)

	resp, err := h.orders.PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"order_id":     resp.OrderID,
		"order_number": resp.OrderNumber,
	})
}

// listOrders returns the authenticated user's order history.
func (h *Handler) listOrders(c *gin.Context) {
	uid := userID(c)
	if uid == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	orders, err := h.orders.OrdersForUser(c.Request.Context(), *uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load orders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// cancelOrder handles administrative cancellation of an order.
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	order, err := h.orders.CancelOrder(c.Request.Context(), orderID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, items, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

func (h *Handler) startCheckout(c *gin.Context) {
	var req service.StartInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sess, err := h.checkout.Start(c.Request.Context(), userID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sess)
}

func (h *Handler) getCheckout(c *gin.Context) {
	sess, err := h.checkout.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	quote := h.checkout.QuoteFor(c.Request.Context(), sess)
	c.JSON(http.StatusOK, gin.H{"session": sess, "quote": quote})
}

func (h *Handler) setCheckoutItems(c *gin.Context) {
	var req struct {
		Items []models.CartLine `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sess, err := h.checkout.SetItems(c.Request.Context(), c.Param("id"), req.Items)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) setCheckoutAddress(c *gin.Context) {
	var addr service.AddressInput
	if err := c.ShouldBindJSON(&addr); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sess, err := h.checkout.SetAddress(c.Request.Context(), c.Param("id"), addr)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) setCheckoutPayment(c *gin.Context) {
	var req struct {
		PaymentMethod string `json:"payment_method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment method is required"})
		return
	}

	sess, quote, err := h.checkout.SetPayment(c.Request.Context(), c.Param("id"), req.PaymentMethod)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "quote": quote})
}

func (h *Handler) advanceCheckout(c *gin.Context) {
	sess, err := h.checkout.Advance(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) backCheckout(c *gin.Context) {
	var req struct {
		To string `json:"to" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target step is required"})
		return
	}

	sess, err := h.checkout.Back(c.Request.Context(), c.Param("id"), service.Step(req.To))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) submitCheckout(c *gin.Context) {
	resp, err := h.checkout.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"order_id":     resp.OrderID,
		"order_number": resp.OrderNumber,
	})
}

func (h *Handler) listDivisions(c *gin.Context) {
	divisions, err := h.geoStore.Divisions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load divisions"})
		return
	}
	c.JSON(http.StatusOK, divisions)
}

func (h *Handler) listDistricts(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid division id"})
		return
	}
	districts, err := h.geoStore.DistrictsByDivision(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load districts"})
		return
	}
	c.JSON(http.StatusOK, districts)
}

func (h *Handler) listUpazilas(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid district id"})
		return
	}
	upazilas, err := h.geoStore.UpazilasByDistrict(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load upazilas"})
		return
	}
	c.JSON(http.StatusOK, upazilas)
}

// writeError maps the error taxonomy to HTTP statuses. Validation and guard
// failures are recoverable 4xx; only the order-insert failure is a 5xx.
func writeError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var catalogErr *service.CatalogError
	var guardErr *service.GuardError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Msg})
	case errors.As(err, &catalogErr):
		status := http.StatusConflict
		if catalogErr.Kind == service.ProductNotFound || catalogErr.Kind == service.VariantNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": catalogErr.Msg})
	case errors.As(err, &guardErr):
		c.JSON(http.StatusConflict, gin.H{"error": guardErr.Msg})
	case errors.Is(err, redisclient.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "checkout session not found"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrOrderPersist):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create order"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
