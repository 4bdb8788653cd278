package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/checkout"
	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HealthChecker reports whether the storage backend is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	checkout *checkout.Service
	payments *payment.Coordinator
	health   HealthChecker
}

// NewHandler creates a new HTTP handler
func NewHandler(checkoutService *checkout.Service, payments *payment.Coordinator, health HealthChecker) *Handler {
	return &Handler{
		checkout: checkoutService,
		payments: payments,
		health:   health,
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
		v1.POST("/checkout", h.placeOrder)
		v1.GET("/orders", h.listUserOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/payment", h.getOrderPayment)
		v1.GET("/payments", h.listUserPayments)
		v1.GET("/payments/:id", h.getPayment)
		v1.PATCH("/payments/:id/status", h.updatePaymentStatus)
		v1.POST("/payments/:id/refund", h.refundPayment)

		admin := v1.Group("/admin")
		{
			admin.GET("/orders", h.listOrders)
			admin.PATCH("/orders/:id/status", h.updateOrderStatus)
			admin.GET("/payments", h.listPayments)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when the storage backend responds.
func (h *Handler) readinessCheck(c *gin.Context) {
	if err := h.health.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"time":   time.Now().Unix(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// placeOrder handles checkout
func (h *Handler) placeOrder(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	var req checkout.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.checkout.PlaceOrder(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	id, ok := parseObjectID(c)
	if !ok {
		return
	}

	order, err := h.checkout.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// listUserOrders lists the caller's orders
func (h *Handler) listUserOrders(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	orders, err := h.checkout.ListUserOrders(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// listOrders lists orders across users with an optional status filter
func (h *Handler) listOrders(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	status := models.OrderStatus(c.Query("status"))

	orders, err := h.checkout.ListOrders(c.Request.Context(), status, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// updateOrderStatus applies one order state-machine transition
func (h *Handler) updateOrderStatus(c *gin.Context) {
	id, ok := parseObjectID(c)
	if !ok {
		return
	}

	var req struct {
		Status models.OrderStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.checkout.UpdateOrderStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// getOrderPayment returns the payment for an order
func (h *Handler) getOrderPayment(c *gin.Context) {
	id, ok := parseObjectID(c)
	if !ok {
		return
	}

	p, err := h.payments.GetPaymentByOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": p})
}

// getPayment returns a payment by ID
func (h *Handler) getPayment(c *gin.Context) {
	id, ok := parseObjectID(c)
	if !ok {
		return
	}

	p, err := h.payments.GetPayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": p})
}

// listUserPayments lists the caller's payments
func (h *Handler) listUserPayments(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	payments, err := h.payments.ListUserPayments(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// listPayments lists payments with optional status/method filters
func (h *Handler) listPayments(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	status := models.PaymentStatus(c.Query("status"))
	method := models.PaymentMethod(c.Query("method"))

	payments, err := h.payments.ListPayments(c.Request.Context(), status, method, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// updatePaymentStatus applies a payment status transition
func (h *Handler) updatePaymentStatus(c *gin.Context) {
	id, ok := parseObjectID(c)
	if !ok {
		return
	}

	var req payment.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	p, err := h.payments.UpdateStatus(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": p})
}

// refundPayment records a full or partial refund
func (h *Handler) refundPayment(c *gin.Context) {
	id, ok := parseObjectID(c)
	if !ok {
		return
	}

	var req payment.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	p, err := h.payments.Refund(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": p})
}

func parseObjectID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return primitive.NilObjectID, false
	}
	return id, true
}

// respondError maps the error taxonomy onto HTTP statuses with a stable
// machine-readable body.
func respondError(c *gin.Context, err error) {
	e := apperr.As(err)

	status := http.StatusInternalServerError
	switch e.Kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindUnavailable:
		status = http.StatusServiceUnavailable
	}

	body := gin.H{
		"kind":    e.Kind,
		"code":    e.Code,
		"message": e.Message,
	}
	if e.Details != nil {
		body["details"] = e.Details
	}
	c.JSON(status, gin.H{"error": body})
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
