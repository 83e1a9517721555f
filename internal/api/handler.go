package api

import (
	"errors"
	"net/http"
	"strconv"

	"checkout-service/internal/models"
	"checkout-service/internal/pricing"
	"checkout-service/internal/service"
	"checkout-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler handles HTTP requests
type Handler struct {
	checkout  *service.CheckoutService
	orders    *service.OrderService
	webhook   *service.WebhookService
	jwtSecret string
}

// NewHandler creates a new handler
func NewHandler(checkout *service.CheckoutService, orders *service.OrderService, webhook *service.WebhookService, jwtSecret string) *Handler {
	return &Handler{
		checkout:  checkout,
		orders:    orders,
		webhook:   webhook,
		jwtSecret: jwtSecret,
	}
}

// SetupRoutes configures all the routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readyCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider callbacks authenticate with a signature header, not a JWT.
	router.POST("/webhooks/efibank", h.paymentWebhook)

	v1 := router.Group("/api/v1")
	v1.Use(AuthRequired(h.jwtSecret))
	{
		v1.POST("/orders/checkout", h.createCheckout)
		v1.GET("/orders/mine", h.listMyOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/coupons/validate", h.validateCoupon)

		admin := v1.Group("")
		admin.Use(AdminRequired())
		{
			admin.GET("/orders", h.listOrders)
			admin.PUT("/orders/:id/status", h.updateOrderStatus)
		}
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) readyCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// createCheckout handles POST /api/v1/orders/checkout
func (h *Handler) createCheckout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	result, err := h.checkout.Checkout(c.Request.Context(), userID(c), &req)
	if err != nil {
		h.checkoutError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) checkoutError(c *gin.Context, err error) {
	var stockErr *store.InsufficientStockError
	var unknownErr *pricing.UnknownProductError

	switch {
	case errors.Is(err, pricing.ErrEmptySelection):
		c.JSON(http.StatusBadRequest, gin.H{"error": "nenhum item selecionado"})
	case errors.Is(err, pricing.ErrInvalidCoupon):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cupom inválido ou expirado"})
	case errors.As(err, &unknownErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": unknownErr.Error()})
	case errors.Is(err, service.ErrDuplicateCheckout):
		c.JSON(http.StatusConflict, gin.H{"error": "pedido já processado"})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "estoque insuficiente",
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "falha ao processar o pedido"})
	}
}

// listMyOrders handles GET /api/v1/orders/mine
func (h *Handler) listMyOrders(c *gin.Context) {
	orders, err := h.orders.ListUserOrders(c.Request.Context(), userID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list orders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// listOrders handles GET /api/v1/orders (admin)
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list orders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// getOrder handles GET /api/v1/orders/:id
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, items, payment, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "pedido não encontrado"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get order"})
		return
	}

	// Owners see only their own orders; operators see everything.
	if order.UserID != userID(c) && !c.GetBool(ctxIsAdmin) {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "items": items, "payment": payment})
}

// updateOrderStatus handles PUT /api/v1/orders/:id/status (admin)
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req struct {
		Status           *string `json:"status"`
		DeliveryEstimate *string `json:"delivery_estimate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status == nil && req.DeliveryEstimate == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	order, err := h.orders.UpdateOrder(c.Request.Context(), orderID, req.Status, req.DeliveryEstimate)
	if err != nil {
		var transitionErr *models.InvalidTransitionError
		switch {
		case errors.Is(err, store.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "pedido não encontrado"})
		case errors.As(err, &transitionErr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": transitionErr.Error()})
		case errors.Is(err, models.ErrUnknownStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": "status desconhecido"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update order"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// validateCoupon handles POST /api/v1/coupons/validate
func (h *Handler) validateCoupon(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	coupon, err := h.checkout.ValidateCoupon(c.Request.Context(), req.Code)
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidCoupon) {
			c.JSON(http.StatusNotFound, gin.H{"error": "cupom inválido ou expirado"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate coupon"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"coupon": coupon})
}

// paymentWebhook handles POST /webhooks/efibank
func (h *Handler) paymentWebhook(c *gin.Context) {
	if err := h.webhook.VerifySignature(c.GetHeader("X-Efibank-Signature")); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		return
	}

	var event service.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.webhook.HandleEvent(c.Request.Context(), &event); err != nil {
		if errors.Is(err, service.ErrMalformedEvent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
