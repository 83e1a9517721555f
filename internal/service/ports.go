package service

import (
	"context"
	"time"

	"checkout-service/internal/models"
)

// CheckoutStore is the persistence surface the checkout flow needs.
type CheckoutStore interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem, pay *models.Payment) error
	UpdatePayment(ctx context.Context, pay *models.Payment) error
}

// IdempotencyCache remembers consumed checkout idempotency keys so client
// retries do not create duplicate orders. An unavailable cache degrades to
// no deduplication.
type IdempotencyCache interface {
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// OrderStore is the persistence surface of the order query/update routes.
type OrderStore interface {
	GetOrders(ctx context.Context) ([]models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	UpdateOrder(ctx context.Context, orderID int64, next *models.Status, deliveryEstimate *string) (*models.Order, error)
}

// WebhookStore is the persistence surface of the payment reconciler.
type WebhookStore interface {
	ConfirmOrderPayment(ctx context.Context, orderID int64, confirmedAt time.Time) (bool, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
}

// Publisher emits order lifecycle events; failures are logged, never fatal.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error
}

// Locker serializes webhook deliveries for one order.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// Notifier sends a human-readable notification, fire-and-forget.
type Notifier interface {
	Send(subject, body string) error
}
