package service

import (
	"context"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/payment"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockStore) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *MockStore) CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem, pay *models.Payment) error {
	args := m.Called(ctx, order, items, pay)
	return args.Error(0)
}

func (m *MockStore) UpdatePayment(ctx context.Context, pay *models.Payment) error {
	args := m.Called(ctx, pay)
	return args.Error(0)
}

func (m *MockStore) ConfirmOrderPayment(ctx context.Context, orderID int64, confirmedAt time.Time) (bool, error) {
	args := m.Called(ctx, orderID, confirmedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) GetOrders(ctx context.Context) ([]models.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockStore) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockStore) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OrderItem), args.Error(1)
}

func (m *MockStore) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockStore) UpdateOrder(ctx context.Context, orderID int64, next *models.Status, deliveryEstimate *string) (*models.Order, error) {
	args := m.Called(ctx, orderID, next, deliveryEstimate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Initiate(ctx context.Context, orderID int64, amount int64) payment.Outcome {
	args := m.Called(ctx, orderID, amount)
	return args.Get(0).(payment.Outcome)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) ReleaseLock(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(subject, body string) error {
	args := m.Called(subject, body)
	return args.Error(0)
}
