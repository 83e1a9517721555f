package models

import "time"

// Event types published to the order lifecycle topic
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderConfirmed = "ORDER_CONFIRMED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published after a checkout persisted a new order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID  int64           `json:"order_id"`
	UserID   int64           `json:"user_id"`
	Total    int64           `json:"total"`
	Fallback bool            `json:"fallback_payment"`
	Items    []OrderItemData `json:"items"`
}

// OrderConfirmedEvent published when a payment-success webhook moved the
// order out of its initial state
type OrderConfirmedEvent struct {
	BaseEvent
	OrderID     int64     `json:"order_id"`
	PaymentID   string    `json:"payment_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}
