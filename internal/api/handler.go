package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	checkout    *service.CheckoutService
	orders      *service.OrderService
	adminSecret string
}

// NewHandler creates a new HTTP handler
func NewHandler(checkout *service.CheckoutService, orders *service.OrderService, adminSecret string) *Handler {
	return &Handler{
		checkout:    checkout,
		orders:      orders,
		adminSecret: adminSecret,
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
		v1.POST("/checkout", h.openCheckout)
		v1.POST("/checkout/:gatewayOrderID/capture", h.captureCheckout)
		v1.POST("/orders", h.createOrderDirect)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/number/:orderNumber", h.getOrderByNumber)
		v1.GET("/users/:userID/orders", h.listUserOrders)
		v1.POST("/orders/:id/tracking", h.addTracking)
		v1.POST("/orders/:id/delivered", h.markDelivered)
	}

	admin := router.Group("/api/v1/admin", AdminAuth(h.adminSecret))
	{
		admin.PATCH("/orders/:id", h.adminUpdateOrder)
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

// openCheckout starts phase one of checkout: price the cart and open a
// gateway order.
func (h *Handler) openCheckout(c *gin.Context) {
	var req service.OpenCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.checkout.OpenCheckout(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// captureCheckout runs phase two: capture the payment and persist the order.
// The response carries the gateway result even when local persistence
// degrades to a reconciliation warning.
func (h *Handler) captureCheckout(c *gin.Context) {
	gatewayOrderID := c.Param("gatewayOrderID")
	if gatewayOrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing gateway order id"})
		return
	}

	resp, err := h.checkout.CaptureCheckout(c.Request.Context(), gatewayOrderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Order == nil {
		status = http.StatusAccepted
	}
	c.JSON(status, resp)
}

// createOrderDirect handles the guest path for already-captured payments.
func (h *Handler) createOrderDirect(c *gin.Context) {
	var req service.DirectOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.checkout.CreateOrderDirect(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	detail, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// getOrderByNumber handles get order by its human-facing number
func (h *Handler) getOrderByNumber(c *gin.Context) {
	orderNumber := c.Param("orderNumber")
	if orderNumber == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing order number"})
		return
	}

	detail, err := h.orders.GetOrderByNumber(c.Request.Context(), orderNumber)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// listUserOrders handles listing a user's orders
func (h *Handler) listUserOrders(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	orders, err := h.orders.ListUserOrders(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

type addTrackingRequest struct {
	TrackingNumber string `json:"tracking_number" binding:"required"`
	Carrier        string `json:"carrier" binding:"required"`
}

// addTracking attaches carrier tracking and ships the order.
func (h *Handler) addTracking(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	var req addTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orders.AddTracking(c.Request.Context(), orderID, req.TrackingNumber, req.Carrier)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// markDelivered moves a shipped order to DELIVERED.
func (h *Handler) markDelivered(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	order, err := h.orders.MarkDelivered(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// adminUpdateOrder applies a partial update. Unknown fields are rejected,
// not silently dropped.
func (h *Handler) adminUpdateOrder(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	var req service.AdminUpdateRequest
	decoder := json.NewDecoder(c.Request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orders.AdminUpdateOrder(c.Request.Context(), orderID, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) orderID(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return 0, false
	}
	return orderID, true
}

// writeError maps domain errors to HTTP statuses. Gateway rejections are
// surfaced verbatim.
func (h *Handler) writeError(c *gin.Context, err error) {
	var gwErr *gateway.Error
	switch {
	case errors.As(err, &gwErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Payment gateway rejected the request",
			"details": gwErr.Body,
		})
	case errors.Is(err, store.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, models.ErrEmptyCart),
		errors.Is(err, models.ErrCustomerRequired),
		errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidCartItem),
		errors.Is(err, service.ErrIncompleteAddr),
		errors.Is(err, service.ErrInvalidTracking),
		errors.Is(err, service.ErrMissingReference),
		errors.Is(err, service.ErrInvalidPayStatus),
		errors.Is(err, service.ErrInvalidFulfill):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrTrackingRequired),
		errors.Is(err, service.ErrMissingCapture):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal error",
			"details": err.Error(),
		})
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
