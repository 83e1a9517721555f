package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/pricing"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrDuplicateCheckout is returned when a request carries an idempotency
// key that was already consumed by a completed checkout.
var ErrDuplicateCheckout = errors.New("checkout already processed for this idempotency key")

// checkoutIdemTTL bounds how long a consumed idempotency key is remembered.
const checkoutIdemTTL = 24 * time.Hour

// CheckoutService turns a cart selection into a durable order with a
// reserved stock decrement and a payment attempt.
type CheckoutService struct {
	store     CheckoutStore
	gateway   payment.Gateway
	publisher Publisher
	cache     IdempotencyCache
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(st CheckoutStore, gateway payment.Gateway, publisher Publisher, cache IdempotencyCache) *CheckoutService {
	return &CheckoutService{
		store:     st,
		gateway:   gateway,
		publisher: publisher,
		cache:     cache,
		logger:    util.GetLogger(),
	}
}

// CheckoutRequest is the client-supplied cart selection.
type CheckoutRequest struct {
	Items          []pricing.CartItem `json:"items" binding:"required"`
	Address        *string            `json:"address,omitempty"`
	CouponCode     string             `json:"coupon_code,omitempty"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
}

// CheckoutResult is returned to the caller after the order and its payment
// record are durably persisted.
type CheckoutResult struct {
	Order   *models.Order      `json:"order"`
	Items   []models.OrderItem `json:"items"`
	Payment *models.Payment    `json:"payment"`
}

// Checkout prices the selection, reserves stock and creates the order as a
// single transaction, then initiates payment with the provider. Provider
// failures degrade to a local fallback payment; reservation failures abort
// the whole checkout with nothing persisted.
func (s *CheckoutService) Checkout(ctx context.Context, userID int64, req *CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	if req.IdempotencyKey != "" {
		seen, err := s.cache.CheckIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			// Cache outage degrades to no deduplication, not to a failed
			// checkout.
			s.logger.Warn("Idempotency check unavailable, proceeding",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Error(err))
		} else if seen {
			util.CheckoutsFailedTotal.WithLabelValues("duplicate").Inc()
			s.logger.Info("Duplicate checkout request detected",
				zap.Int64("user_id", userID),
				zap.String("idempotency_key", req.IdempotencyKey))
			return nil, ErrDuplicateCheckout
		}
	}

	quote, coupon, err := s.price(ctx, req)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:   userID,
		Total:    quote.Total,
		Discount: quote.Discount,
		Address:  req.Address,
		Status:   models.StatusCreated,
	}
	if coupon != nil {
		order.CouponCode = &coupon.Code
	}

	// The order commits together with a local pending payment, so even a
	// crash before the provider call leaves a payable order behind.
	pay := &models.Payment{
		Status: models.PaymentStatusPending,
		Source: models.PaymentSourceFallback,
		Amount: quote.Total,
	}

	start := time.Now()
	err = s.store.CreateOrderTx(ctx, order, quote.Lines, pay)
	util.StockReservationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		var insufficient *store.InsufficientStockError
		switch {
		case errors.As(err, &insufficient):
			util.CheckoutsFailedTotal.WithLabelValues("insufficient_stock").Inc()
			s.logger.Info("Checkout rejected: insufficient stock",
				zap.Int64("user_id", userID),
				zap.Int64("product_id", insufficient.ProductID))
			return nil, err
		case errors.Is(err, store.ErrCouponExhausted):
			util.CheckoutsFailedTotal.WithLabelValues("invalid_coupon").Inc()
			return nil, pricing.ErrInvalidCoupon
		default:
			util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
			return nil, fmt.Errorf("failed to create order: %w", err)
		}
	}

	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.Int64("total", order.Total))

	// Payment initiation is outside the atomic unit and never fails the
	// checkout: the gateway degrades to a local fallback payment, which is
	// exactly what the transaction already committed.
	outcome := s.gateway.Initiate(ctx, order.ID, order.Total)
	if !outcome.Fallback {
		pay.ProviderID = outcome.ProviderID
		pay.Status = outcome.Status
		pay.Source = models.PaymentSourceProvider
		pay.PixQR = outcome.PixQR
		pay.PaymentURL = outcome.PaymentURL
		if err := s.store.UpdatePayment(ctx, pay); err != nil {
			// The committed fallback row keeps the order payable; report
			// what is actually on disk.
			s.logger.Warn("Failed to record provider payment, keeping local fallback",
				zap.Int64("order_id", order.ID),
				zap.String("provider_id", outcome.ProviderID),
				zap.Error(err))
			pay.ProviderID = fmt.Sprintf("local_%d", order.ID)
			pay.Status = models.PaymentStatusPending
			pay.Source = models.PaymentSourceFallback
			pay.PixQR = nil
			pay.PaymentURL = nil
		}
	}

	util.CheckoutsTotal.Inc()

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:  order.ID,
		UserID:   order.UserID,
		Total:    order.Total,
		Fallback: pay.IsFallback(),
		Items:    toEventItems(quote.Lines),
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	if req.IdempotencyKey != "" {
		if err := s.cache.SetIdempotencyKey(ctx, req.IdempotencyKey, order.ID, checkoutIdemTTL); err != nil {
			s.logger.Warn("Failed to record idempotency key",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Error(err))
		}
	}

	return &CheckoutResult{
		Order:   order,
		Items:   quote.Lines,
		Payment: pay,
	}, nil
}

// price resolves catalog records and the optional coupon, then runs the
// pricing engine over the checked items.
func (s *CheckoutService) price(ctx context.Context, req *CheckoutRequest) (*pricing.Quote, *models.Coupon, error) {
	var ids []int64
	for _, item := range req.Items {
		if item.Checked {
			ids = append(ids, item.ProductID)
		}
	}
	if len(ids) == 0 {
		util.CheckoutsFailedTotal.WithLabelValues("empty_selection").Inc()
		return nil, nil, pricing.ErrEmptySelection
	}

	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, nil, fmt.Errorf("failed to resolve products: %w", err)
	}
	catalog := make(map[int64]*models.Product, len(products))
	for i := range products {
		catalog[products[i].ID] = &products[i]
	}

	var coupon *models.Coupon
	if req.CouponCode != "" {
		coupon, err = s.store.GetCouponByCode(ctx, req.CouponCode)
		if errors.Is(err, store.ErrCouponNotFound) {
			util.CheckoutsFailedTotal.WithLabelValues("invalid_coupon").Inc()
			return nil, nil, pricing.ErrInvalidCoupon
		}
		if err != nil {
			util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
			return nil, nil, fmt.Errorf("failed to resolve coupon: %w", err)
		}
	}

	quote, err := pricing.Price(req.Items, catalog, coupon, time.Now())
	if err != nil {
		reason := "invalid_items"
		if errors.Is(err, pricing.ErrInvalidCoupon) {
			reason = "invalid_coupon"
		}
		util.CheckoutsFailedTotal.WithLabelValues(reason).Inc()
		return nil, nil, err
	}

	return quote, coupon, nil
}

// ValidateCoupon resolves and validates a coupon code without consuming
// usage; the UI calls this before checkout.
func (s *CheckoutService) ValidateCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	coupon, err := s.store.GetCouponByCode(ctx, code)
	if errors.Is(err, store.ErrCouponNotFound) {
		return nil, pricing.ErrInvalidCoupon
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve coupon: %w", err)
	}

	if err := pricing.ValidateCoupon(coupon, time.Now()); err != nil {
		return nil, err
	}
	return coupon, nil
}

func toEventItems(lines []models.OrderItem) []models.OrderItemData {
	items := make([]models.OrderItemData, 0, len(lines))
	for _, l := range lines {
		items = append(items, models.OrderItemData{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return items
}
