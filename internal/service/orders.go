package service

import (
	"context"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// OrderService serves the order query/update surface.
type OrderService struct {
	store  OrderStore
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(st OrderStore) *OrderService {
	return &OrderService{
		store:  st,
		logger: util.GetLogger(),
	}
}

// ListOrders returns all orders, newest first (operator only).
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.store.GetOrders(ctx)
}

// ListUserOrders returns the authenticated owner's orders, newest first.
func (s *OrderService) ListUserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.store.GetOrdersByUserID(ctx, userID)
}

// GetOrder retrieves an order with its lines and payment.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, *models.Payment, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}

	pay, err := s.store.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		// Orders always carry a payment record; tolerate a missing one on
		// reads rather than hiding the order.
		s.logger.Warn("Order has no payment record", zap.Int64("order_id", orderID))
		pay = nil
	}

	return order, items, pay, nil
}

// UpdateOrder applies an operator status change and/or delivery estimate.
// The status string is validated here; the transition itself is validated
// against the allowed-transition table under the row lock.
func (s *OrderService) UpdateOrder(ctx context.Context, orderID int64, status *string, deliveryEstimate *string) (*models.Order, error) {
	var next *models.Status
	if status != nil {
		parsed, err := models.ParseStatus(*status)
		if err != nil {
			return nil, err
		}
		next = &parsed
	}

	order, err := s.store.UpdateOrder(ctx, orderID, next, deliveryEstimate)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order updated by operator",
		zap.Int64("order_id", orderID),
		zap.String("status", string(order.Status)))
	return order, nil
}
