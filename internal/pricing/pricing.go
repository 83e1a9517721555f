package pricing

import (
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
)

var (
	// ErrEmptySelection is returned when no cart item is checked for payment.
	ErrEmptySelection = errors.New("no items selected for checkout")

	// ErrInvalidCoupon is returned when a supplied coupon code does not
	// exist, has expired or has exhausted its usage limit.
	ErrInvalidCoupon = errors.New("invalid or expired coupon")
)

// UnknownProductError is returned when a checked cart item references a
// product the catalog could not resolve.
type UnknownProductError struct {
	ProductID int64
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("unknown product: %d", e.ProductID)
}

// CartItem is one client-supplied cart line. Only checked items participate
// in checkout; prices are never taken from the client.
type CartItem struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"qty"`
	Checked   bool  `json:"checked"`
}

// Quote is the priced result of a cart selection: ordered snapshot lines and
// the computed totals, to be persisted verbatim on the order.
type Quote struct {
	Lines    []models.OrderItem
	Subtotal int64
	Discount int64
	Total    int64
}

// Price turns the checked items of a cart selection into snapshot order
// lines using current catalog prices, applying the coupon if one is given.
// A nil coupon means no code was supplied; a supplied code must already have
// been resolved by the caller.
func Price(items []CartItem, products map[int64]*models.Product, coupon *models.Coupon, now time.Time) (*Quote, error) {
	q := &Quote{}

	for _, item := range items {
		if !item.Checked {
			continue
		}

		p, ok := products[item.ProductID]
		if !ok {
			return nil, &UnknownProductError{ProductID: item.ProductID}
		}

		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}

		line := models.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  qty,
			UnitPrice: p.Price,
		}
		q.Lines = append(q.Lines, line)
		q.Subtotal += line.Subtotal()
	}

	if len(q.Lines) == 0 {
		return nil, ErrEmptySelection
	}

	discount, err := couponDiscount(coupon, q.Subtotal, now)
	if err != nil {
		return nil, err
	}

	q.Discount = discount
	q.Total = q.Subtotal - discount
	return q, nil
}

// ValidateCoupon checks that a resolved coupon is usable at the request
// time: not expired and under its usage limit if one is set.
func ValidateCoupon(coupon *models.Coupon, now time.Time) error {
	if !coupon.ExpiresAt.After(now) {
		return ErrInvalidCoupon
	}
	if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
		return ErrInvalidCoupon
	}
	return nil
}

// couponDiscount validates the coupon against the request time and computes
// the discount, clamped so the total never goes negative.
func couponDiscount(coupon *models.Coupon, subtotal int64, now time.Time) (int64, error) {
	if coupon == nil {
		return 0, nil
	}

	if err := ValidateCoupon(coupon, now); err != nil {
		return 0, err
	}

	var discount int64
	switch coupon.Type {
	case models.CouponTypePercentage:
		discount = subtotal * coupon.Value / 100
	case models.CouponTypeFixed:
		discount = coupon.Value
	default:
		return 0, ErrInvalidCoupon
	}

	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount, nil
}
