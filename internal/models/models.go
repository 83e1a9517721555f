package models

import "time"

// Product represents a catalog product. Prices are stored in centavos.
type Product struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	Stock     int       `db:"stock" json:"stock"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Coupon discount types
const (
	CouponTypePercentage = "percentage"
	CouponTypeFixed      = "fixed"
)

// Coupon represents a discount coupon. For percentage coupons Value is the
// percentage (0-100); for fixed coupons it is an amount in centavos.
type Coupon struct {
	ID         int64     `db:"id" json:"id"`
	Code       string    `db:"code" json:"code"`
	Type       string    `db:"type" json:"type"`
	Value      int64     `db:"value" json:"value"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
	UsageLimit *int64    `db:"usage_limit" json:"usage_limit,omitempty"`
	UsedCount  int64     `db:"used_count" json:"used_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Order represents a customer order. Line prices and the applied discount
// are snapshotted at creation time and never recomputed from the catalog.
type Order struct {
	ID                 int64      `db:"id" json:"id"`
	UserID             int64      `db:"user_id" json:"user_id"`
	Total              int64      `db:"total" json:"total"`
	Discount           int64      `db:"discount" json:"discount"`
	CouponCode         *string    `db:"coupon_code" json:"coupon_code,omitempty"`
	Address            *string    `db:"address" json:"address,omitempty"`
	Status             Status     `db:"status" json:"status"`
	DeliveryEstimate   *string    `db:"delivery_estimate" json:"delivery_estimate,omitempty"`
	PaymentConfirmedAt *time.Time `db:"payment_confirmed_at" json:"payment_confirmed_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// OrderItem is one line of an order, with the product name and unit price
// snapshotted from the catalog.
type OrderItem struct {
	ID        int64  `db:"id" json:"id"`
	OrderID   int64  `db:"order_id" json:"order_id"`
	ProductID int64  `db:"product_id" json:"product_id"`
	Name      string `db:"name" json:"name"`
	Quantity  int    `db:"quantity" json:"qty"`
	UnitPrice int64  `db:"unit_price" json:"price"`
}

// Subtotal returns the snapshotted line subtotal.
func (i OrderItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusConfirmed = "confirmed"
	PaymentStatusFailed    = "failed"
)

// Payment sources
const (
	PaymentSourceProvider = "provider"
	PaymentSourceFallback = "fallback"
)

// Payment represents the payment attempt attached to an order. ProviderID is
// either the provider-assigned identifier or a locally generated fallback id
// ("local_" prefix) when the provider was unreachable at checkout time.
type Payment struct {
	ID         int64     `db:"id" json:"-"`
	OrderID    int64     `db:"order_id" json:"order_id"`
	ProviderID string    `db:"provider_id" json:"id"`
	Status     string    `db:"status" json:"status"`
	Source     string    `db:"source" json:"source"`
	Amount     int64     `db:"amount" json:"amount"`
	PixQR      *string   `db:"pix_qr" json:"pix_qr,omitempty"`
	PaymentURL *string   `db:"payment_url" json:"payment_url,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// IsFallback reports whether this payment was synthesized locally because
// the provider could not be reached.
func (p Payment) IsFallback() bool {
	return p.Source == PaymentSourceFallback
}
