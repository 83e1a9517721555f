package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"checkout-service/internal/models"
)

// ErrCouponExhausted is returned when a coupon's usage limit was consumed
// between pricing and commit.
var ErrCouponExhausted = errors.New("coupon usage limit reached")

// CreateOrderTx atomically reserves stock for every line and persists the
// order, its lines, the coupon usage and the initial payment row as one
// transaction, so an order can never exist without a payment attached. If
// any product has insufficient stock the whole transaction rolls back and
// nothing is mutated. Product rows are locked in ascending id order so
// concurrent checkouts over overlapping products cannot deadlock. A payment
// without a provider reference gets a local fallback id derived from the
// new order id.
func (s *Store) CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem, pay *models.Payment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	locked := make([]models.OrderItem, len(items))
	copy(locked, items)
	sort.Slice(locked, func(i, j int) bool { return locked[i].ProductID < locked[j].ProductID })

	for _, item := range locked {
		var available int
		err = tx.GetContext(ctx, &available,
			"SELECT stock FROM products WHERE id = $1 FOR UPDATE", item.ProductID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("product not found: %d", item.ProductID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock product %d: %w", item.ProductID, err)
		}

		if available < item.Quantity {
			return &InsufficientStockError{
				ProductID: item.ProductID,
				Available: available,
				Requested: item.Quantity,
			}
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE products SET stock = stock - $1 WHERE id = $2",
			item.Quantity, item.ProductID)
		if err != nil {
			return fmt.Errorf("failed to reserve stock for product %d: %w", item.ProductID, err)
		}
	}

	if order.CouponCode != nil {
		res, err := tx.ExecContext(ctx,
			`UPDATE coupons SET used_count = used_count + 1
			 WHERE code = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`,
			*order.CouponCode)
		if err != nil {
			return fmt.Errorf("failed to consume coupon: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrCouponExhausted
		}
	}

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO orders (user_id, total, discount, coupon_code, address, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		order.UserID, order.Total, order.Discount, order.CouponCode, order.Address, order.Status).
		Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.QueryRowxContext(ctx,
			`INSERT INTO order_items (order_id, product_id, name, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			items[i].OrderID, items[i].ProductID, items[i].Name, items[i].Quantity, items[i].UnitPrice).
			Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	pay.OrderID = order.ID
	if pay.ProviderID == "" {
		pay.ProviderID = fmt.Sprintf("local_%d", order.ID)
	}
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO payments (order_id, provider_id, status, source, amount, pix_qr, payment_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		pay.OrderID, pay.ProviderID, pay.Status, pay.Source,
		pay.Amount, pay.PixQR, pay.PaymentURL).
		Scan(&pay.ID, &pay.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return tx.Commit()
}

// ConfirmOrderPayment applies the created -> confirmed transition as a
// conditional update keyed on the current status, so duplicate webhook
// deliveries apply exactly once. It reports whether this call performed the
// transition.
func (s *Store) ConfirmOrderPayment(ctx context.Context, orderID int64, confirmedAt time.Time) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, payment_confirmed_at = $2 WHERE id = $3 AND status = $4",
		models.StatusConfirmed, confirmedAt, orderID, models.StatusCreated)
	if err != nil {
		return false, fmt.Errorf("failed to confirm order %d: %w", orderID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Already confirmed or beyond (re-delivery), or unknown id.
		return false, tx.Commit()
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE payments SET status = $1 WHERE order_id = $2",
		models.PaymentStatusConfirmed, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to confirm payment for order %d: %w", orderID, err)
	}

	return true, tx.Commit()
}

// UpdateOrder applies an operator-driven status change and/or delivery
// estimate. Status moves are validated against the transition table while
// the row is locked; invalid moves return *models.InvalidTransitionError.
func (s *Store) UpdateOrder(ctx context.Context, orderID int64, next *models.Status, deliveryEstimate *string) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if next != nil {
		if !order.Status.CanTransitionTo(*next) {
			return nil, &models.InvalidTransitionError{From: order.Status, To: *next}
		}
		order.Status = *next
	}
	if deliveryEstimate != nil {
		order.DeliveryEstimate = deliveryEstimate
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, delivery_estimate = $2 WHERE id = $3",
		order.Status, order.DeliveryEstimate, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to update order %d: %w", orderID, err)
	}

	return &order, tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrders retrieves all orders, newest first (operator view).
func (s *Store) GetOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders ORDER BY created_at DESC")
	return orders, err
}

// GetOrdersByUserID retrieves orders for a user, newest first.
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all lines for an order.
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// UpdatePayment replaces the payment attached to an order with the outcome
// of a later provider call. The row itself is created inside CreateOrderTx.
func (s *Store) UpdatePayment(ctx context.Context, pay *models.Payment) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payments SET provider_id = $1, status = $2, source = $3, pix_qr = $4, payment_url = $5
		 WHERE order_id = $6`,
		pay.ProviderID, pay.Status, pay.Source, pay.PixQR, pay.PaymentURL, pay.OrderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("payment not found for order: %d", pay.OrderID)
	}
	return nil
}

// GetPaymentByOrderID retrieves the payment attached to an order.
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment not found for order: %d", orderID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
