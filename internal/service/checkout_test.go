package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/pricing"
	"checkout-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func checkoutFixture() (*MockStore, *MockGateway, *MockPublisher, *MockCache, *CheckoutService) {
	st := new(MockStore)
	gw := new(MockGateway)
	pub := new(MockPublisher)
	cache := new(MockCache)
	return st, gw, pub, cache, NewCheckoutService(st, gw, pub, cache)
}

// expectOrderTx wires the CreateOrderTx mock the way the store behaves: it
// assigns the order id and attaches the local pending payment row.
func expectOrderTx(st *MockStore, orderID int64) {
	st.On("CreateOrderTx", mock.Anything, mock.AnythingOfType("*models.Order"), mock.Anything, mock.AnythingOfType("*models.Payment")).
		Run(func(args mock.Arguments) {
			order := args.Get(1).(*models.Order)
			order.ID = orderID
			order.CreatedAt = time.Now()
			pay := args.Get(3).(*models.Payment)
			pay.ID = 1
			pay.OrderID = orderID
			pay.ProviderID = fmt.Sprintf("local_%d", orderID)
		}).Return(nil)
}

func TestCheckoutSuccess(t *testing.T) {
	st, gw, pub, _, svc := checkoutFixture()
	ctx := context.Background()

	st.On("GetProductsByIDs", mock.Anything, []int64{1}).Return([]models.Product{
		{ID: 1, Name: "Caneca", Price: 1000, Stock: 5},
	}, nil)
	expectOrderTx(st, 42)
	gw.On("Initiate", mock.Anything, int64(42), int64(2000)).Return(payment.Outcome{
		ProviderID: "efi_abc", Status: "pending",
	})
	st.On("UpdatePayment", mock.Anything, mock.AnythingOfType("*models.Payment")).Return(nil)
	pub.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)

	res, err := svc.Checkout(ctx, 7, &CheckoutRequest{
		Items: []pricing.CartItem{{ProductID: 1, Quantity: 2, Checked: true}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(42), res.Order.ID)
	assert.Equal(t, int64(2000), res.Order.Total)
	assert.Equal(t, models.StatusCreated, res.Order.Status)
	assert.Equal(t, "efi_abc", res.Payment.ProviderID)
	assert.Equal(t, models.PaymentStatusPending, res.Payment.Status)
	assert.Equal(t, models.PaymentSourceProvider, res.Payment.Source)
	st.AssertExpectations(t)
}

func TestCheckoutEmptySelection(t *testing.T) {
	st, _, _, _, svc := checkoutFixture()

	_, err := svc.Checkout(context.Background(), 7, &CheckoutRequest{
		Items: []pricing.CartItem{{ProductID: 1, Quantity: 2, Checked: false}},
	})

	assert.ErrorIs(t, err, pricing.ErrEmptySelection)
	st.AssertNotCalled(t, "GetProductsByIDs", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "CreateOrderTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckoutInsufficientStock(t *testing.T) {
	st, gw, _, _, svc := checkoutFixture()

	st.On("GetProductsByIDs", mock.Anything, []int64{1}).Return([]models.Product{
		{ID: 1, Name: "Caneca", Price: 1000, Stock: 1},
	}, nil)
	st.On("CreateOrderTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&store.InsufficientStockError{ProductID: 1, Available: 1, Requested: 2})

	_, err := svc.Checkout(context.Background(), 7, &CheckoutRequest{
		Items: []pricing.CartItem{{ProductID: 1, Quantity: 2, Checked: true}},
	})

	var insufficient *store.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(1), insufficient.ProductID)
	// Nothing persisted means no payment attempt either.
	gw.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything)
}

func TestCheckoutProviderDownFallsBack(t *testing.T) {
	st, gw, pub, _, svc := checkoutFixture()

	st.On("GetProductsByIDs", mock.Anything, []int64{1}).Return([]models.Product{
		{ID: 1, Name: "Caneca", Price: 1000, Stock: 5},
	}, nil)
	expectOrderTx(st, 42)
	gw.On("Initiate", mock.Anything, int64(42), int64(2000)).Return(payment.Outcome{
		ProviderID: "local_42", Status: "pending", Fallback: true,
	})
	pub.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)

	res, err := svc.Checkout(context.Background(), 7, &CheckoutRequest{
		Items: []pricing.CartItem{{ProductID: 1, Quantity: 2, Checked: true}},
	})
	require.NoError(t, err)

	assert.Equal(t, "local_42", res.Payment.ProviderID)
	assert.Equal(t, models.PaymentStatusPending, res.Payment.Status)
	assert.True(t, res.Payment.IsFallback())
	// The committed row already is the fallback payment; nothing to upgrade.
	st.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything)
}

func TestCheckoutPaymentUpgradeFailureKeepsFallback(t *testing.T) {
	st, gw, pub, _, svc := checkoutFixture()

	st.On("GetProductsByIDs", mock.Anything, []int64{1}).Return([]models.Product{
		{ID: 1, Name: "Caneca", Price: 1000, Stock: 5},
	}, nil)
	expectOrderTx(st, 42)
	gw.On("Initiate", mock.Anything, int64(42), int64(2000)).Return(payment.Outcome{
		ProviderID: "efi_abc", Status: "pending",
	})
	st.On("UpdatePayment", mock.Anything, mock.Anything).Return(errors.New("db down"))
	pub.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)

	res, err := svc.Checkout(context.Background(), 7, &CheckoutRequest{
		Items: []pricing.CartItem{{ProductID: 1, Quantity: 2, Checked: true}},
	})
	require.NoError(t, err)

	// The response reflects the committed fallback row, not the provider
	// reference that never made it to disk.
	assert.Equal(t, "local_42", res.Payment.ProviderID)
	assert.Equal(t, models.PaymentStatusPending, res.Payment.Status)
	assert.True(t, res.Payment.IsFallback())
}

func TestCheckoutUnknownCoupon(t *testing.T) {
	st, _, _, _, svc := checkoutFixture()

	st.On("GetProductsByIDs", mock.Anything, []int64{1}).Return([]models.Product{
		{ID: 1, Name: "Caneca", Price: 1000, Stock: 5},
	}, nil)
	st.On("GetCouponByCode", mock.Anything, "NADA").Return(nil, store.ErrCouponNotFound)

	_, err := svc.Checkout(context.Background(), 7, &CheckoutRequest{
		Items:      []pricing.CartItem{{ProductID: 1, Quantity: 2, Checked: true}},
		CouponCode: "NADA",
	})

	assert.ErrorIs(t, err, pricing.ErrInvalidCoupon)
	st.AssertNotCalled(t, "CreateOrderTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckoutAppliesCoupon(t *testing.T) {
	st, gw, pub, _, svc := checkoutFixture()

	st.On("GetProductsByIDs", mock.Anything, []int64{1}).Return([]models.Product{
		{ID: 1, Name: "Caneca", Price: 1000, Stock: 5},
	}, nil)
	st.On("GetCouponByCode", mock.Anything, "DEZ").Return(&models.Coupon{
		ID: 3, Code: "DEZ", Type: models.CouponTypePercentage, Value: 10,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil)
	st.On("CreateOrderTx", mock.Anything, mock.MatchedBy(func(o *models.Order) bool {
		return o.Total == 1800 && o.Discount == 200 && o.CouponCode != nil && *o.CouponCode == "DEZ"
	}), mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Order).ID = 43
			args.Get(3).(*models.Payment).OrderID = 43
		}).Return(nil)
	gw.On("Initiate", mock.Anything, int64(43), int64(1800)).Return(payment.Outcome{
		ProviderID: "efi_def", Status: "pending",
	})
	st.On("UpdatePayment", mock.Anything, mock.Anything).Return(nil)
	pub.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)

	res, err := svc.Checkout(context.Background(), 7, &CheckoutRequest{
		Items:      []pricing.CartItem{{ProductID: 1, Quantity: 2, Checked: true}},
		CouponCode: "DEZ",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1800), res.Order.Total)
	st.AssertExpectations(t)
}

func TestCheckoutPublishFailureDoesNotFail(t *testing.T) {
	st, gw, pub, _, svc := checkoutFixture()

	st.On("GetProductsByIDs", mock.Anything, []int64{1}).Return([]models.Product{
		{ID: 1, Name: "Caneca", Price: 1000, Stock: 5},
	}, nil)
	expectOrderTx(st, 42)
	gw.On("Initiate", mock.Anything, int64(42), int64(1000)).Return(payment.Outcome{
		ProviderID: "efi_abc", Status: "pending",
	})
	st.On("UpdatePayment", mock.Anything, mock.Anything).Return(nil)
	pub.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(errors.New("kafka down"))

	_, err := svc.Checkout(context.Background(), 7, &CheckoutRequest{
		Items: []pricing.CartItem{{ProductID: 1, Quantity: 1, Checked: true}},
	})
	assert.NoError(t, err)
}

func TestCheckoutDuplicateIdempotencyKey(t *testing.T) {
	st, gw, _, cache, svc := checkoutFixture()

	cache.On("CheckIdempotencyKey", mock.Anything, "req-abc").Return(true, nil)

	_, err := svc.Checkout(context.Background(), 7, &CheckoutRequest{
		Items:          []pricing.CartItem{{ProductID: 1, Quantity: 1, Checked: true}},
		IdempotencyKey: "req-abc",
	})

	assert.ErrorIs(t, err, ErrDuplicateCheckout)
	st.AssertNotCalled(t, "GetProductsByIDs", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "CreateOrderTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckoutRecordsIdempotencyKey(t *testing.T) {
	st, gw, pub, cache, svc := checkoutFixture()

	cache.On("CheckIdempotencyKey", mock.Anything, "req-abc").Return(false, nil)
	st.On("GetProductsByIDs", mock.Anything, []int64{1}).Return([]models.Product{
		{ID: 1, Name: "Caneca", Price: 1000, Stock: 5},
	}, nil)
	expectOrderTx(st, 42)
	gw.On("Initiate", mock.Anything, int64(42), int64(1000)).Return(payment.Outcome{
		ProviderID: "efi_abc", Status: "pending",
	})
	st.On("UpdatePayment", mock.Anything, mock.Anything).Return(nil)
	pub.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)
	// The key is consumed only after the order committed.
	cache.On("SetIdempotencyKey", mock.Anything, "req-abc", int64(42), checkoutIdemTTL).Return(nil)

	_, err := svc.Checkout(context.Background(), 7, &CheckoutRequest{
		Items:          []pricing.CartItem{{ProductID: 1, Quantity: 1, Checked: true}},
		IdempotencyKey: "req-abc",
	})
	require.NoError(t, err)
	cache.AssertExpectations(t)
}

func TestCheckoutCacheOutageProceeds(t *testing.T) {
	st, gw, pub, cache, svc := checkoutFixture()

	cache.On("CheckIdempotencyKey", mock.Anything, "req-abc").Return(false, errors.New("redis down"))
	st.On("GetProductsByIDs", mock.Anything, []int64{1}).Return([]models.Product{
		{ID: 1, Name: "Caneca", Price: 1000, Stock: 5},
	}, nil)
	expectOrderTx(st, 42)
	gw.On("Initiate", mock.Anything, int64(42), int64(1000)).Return(payment.Outcome{
		ProviderID: "efi_abc", Status: "pending",
	})
	st.On("UpdatePayment", mock.Anything, mock.Anything).Return(nil)
	pub.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)
	cache.On("SetIdempotencyKey", mock.Anything, "req-abc", int64(42), checkoutIdemTTL).
		Return(errors.New("redis down"))

	res, err := svc.Checkout(context.Background(), 7, &CheckoutRequest{
		Items:          []pricing.CartItem{{ProductID: 1, Quantity: 1, Checked: true}},
		IdempotencyKey: "req-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Order.ID)
}

func TestValidateCoupon(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		st, _, _, _, svc := checkoutFixture()
		st.On("GetCouponByCode", mock.Anything, "DEZ").Return(&models.Coupon{
			Code: "DEZ", Type: models.CouponTypePercentage, Value: 10,
			ExpiresAt: time.Now().Add(time.Hour),
		}, nil)

		coupon, err := svc.ValidateCoupon(context.Background(), "DEZ")
		require.NoError(t, err)
		assert.Equal(t, "DEZ", coupon.Code)
	})

	t.Run("expired", func(t *testing.T) {
		st, _, _, _, svc := checkoutFixture()
		st.On("GetCouponByCode", mock.Anything, "VELHO").Return(&models.Coupon{
			Code: "VELHO", Type: models.CouponTypeFixed, Value: 500,
			ExpiresAt: time.Now().Add(-time.Hour),
		}, nil)

		_, err := svc.ValidateCoupon(context.Background(), "VELHO")
		assert.ErrorIs(t, err, pricing.ErrInvalidCoupon)
	})

	t.Run("unknown", func(t *testing.T) {
		st, _, _, _, svc := checkoutFixture()
		st.On("GetCouponByCode", mock.Anything, "NADA").Return(nil, store.ErrCouponNotFound)

		_, err := svc.ValidateCoupon(context.Background(), "NADA")
		assert.ErrorIs(t, err, pricing.ErrInvalidCoupon)
	})
}
