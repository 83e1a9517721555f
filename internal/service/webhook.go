package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPaymentSucceeded is the only provider event type that triggers a
// state transition; everything else is acknowledged without side effects.
const EventPaymentSucceeded = "payment.succeeded"

var (
	// ErrUnauthorizedWebhook is returned when the signature header does not
	// match the configured shared secret.
	ErrUnauthorizedWebhook = errors.New("invalid webhook signature")

	// ErrMalformedEvent is returned when a payment event does not carry an
	// order id in its metadata.
	ErrMalformedEvent = errors.New("order_id missing from event metadata")
)

const orderLockTTL = 30 * time.Second

// Event is the provider's webhook payload.
type Event struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

type EventData struct {
	PaymentID string        `json:"payment_id"`
	Metadata  EventMetadata `json:"metadata"`
}

type EventMetadata struct {
	OrderID int64 `json:"order_id"`
}

// WebhookService reconciles asynchronous payment-provider notifications
// into idempotent order state transitions.
type WebhookService struct {
	store     WebhookStore
	locker    Locker
	notifier  Notifier
	publisher Publisher
	secret    string
	logger    *zap.Logger
}

// NewWebhookService creates a new webhook service. An empty secret disables
// signature verification.
func NewWebhookService(st WebhookStore, locker Locker, notifier Notifier, publisher Publisher, secret string) *WebhookService {
	return &WebhookService{
		store:     st,
		locker:    locker,
		notifier:  notifier,
		publisher: publisher,
		secret:    secret,
		logger:    util.GetLogger(),
	}
}

// VerifySignature checks the provider's signature header against the shared
// secret. It must be called before the payload is acted on.
func (s *WebhookService) VerifySignature(signature string) error {
	if s.secret == "" {
		return nil
	}
	if signature != s.secret {
		util.WebhookEventsTotal.WithLabelValues("rejected").Inc()
		return ErrUnauthorizedWebhook
	}
	return nil
}

// HandleEvent applies a verified provider event. Payment-success events
// transition the referenced order from created to confirmed exactly once;
// replays and unrelated event types are acknowledged without side effects.
func (s *WebhookService) HandleEvent(ctx context.Context, event *Event) error {
	ctx, span := util.StartSpan(ctx, "WebhookService.HandleEvent")
	defer span.End()

	if event.Event != EventPaymentSucceeded {
		util.WebhookEventsTotal.WithLabelValues("ignored").Inc()
		s.logger.Debug("Ignoring webhook event", zap.String("event", event.Event))
		return nil
	}

	orderID := event.Data.Metadata.OrderID
	if orderID == 0 {
		util.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		return ErrMalformedEvent
	}

	// Serialize deliveries for the same order. The conditional update below
	// is safe without the lock, so a Redis outage degrades rather than
	// blocks reconciliation.
	lockKey := fmt.Sprintf("order:%d", orderID)
	locked, err := s.locker.AcquireLock(ctx, lockKey, orderLockTTL)
	if err != nil {
		s.logger.Warn("Webhook lock unavailable, relying on conditional update",
			zap.Int64("order_id", orderID),
			zap.Error(err))
	} else if !locked {
		// A concurrent delivery for this order is in flight; it will apply
		// the transition, so this one just acks.
		util.WebhookEventsTotal.WithLabelValues("replay").Inc()
		return nil
	} else {
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), lockKey); err != nil {
				s.logger.Warn("Failed to release webhook lock", zap.Error(err))
			}
		}()
	}

	confirmedAt := time.Now().UTC()
	transitioned, err := s.store.ConfirmOrderPayment(ctx, orderID, confirmedAt)
	if err != nil {
		return fmt.Errorf("failed to reconcile order %d: %w", orderID, err)
	}

	if !transitioned {
		util.WebhookEventsTotal.WithLabelValues("replay").Inc()
		s.logger.Info("Payment webhook replay, order already confirmed or beyond",
			zap.Int64("order_id", orderID),
			zap.String("payment_id", event.Data.PaymentID))
		return nil
	}

	util.WebhookEventsTotal.WithLabelValues("confirmed").Inc()
	util.OrdersConfirmedTotal.Inc()
	s.logger.Info("Order confirmed by payment webhook",
		zap.Int64("order_id", orderID),
		zap.String("payment_id", event.Data.PaymentID))

	confirmedEvent := &models.OrderConfirmedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderConfirmed,
			Timestamp: time.Now(),
		},
		OrderID:     orderID,
		PaymentID:   event.Data.PaymentID,
		ConfirmedAt: confirmedAt,
	}
	if err := s.publisher.PublishOrderConfirmed(ctx, confirmedEvent); err != nil {
		s.logger.Error("Failed to publish OrderConfirmed event", zap.Error(err))
	}

	// The transition is already durably committed: notification problems
	// are logged and swallowed, never surfaced to the provider.
	s.notify(ctx, orderID)
	return nil
}

// notify emails the operator an order summary, best-effort.
func (s *WebhookService) notify(ctx context.Context, orderID int64) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		util.NotificationsFailedTotal.Inc()
		s.logger.Error("Failed to load order for notification",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		util.NotificationsFailedTotal.Inc()
		s.logger.Error("Failed to load order items for notification",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return
	}

	subject := fmt.Sprintf("Novo pedido #%d", order.ID)
	if err := s.notifier.Send(subject, orderSummary(order, items)); err != nil {
		util.NotificationsFailedTotal.Inc()
		s.logger.Error("Failed to send confirmation notification",
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}
}

func orderSummary(order *models.Order, items []models.OrderItem) string {
	address := "—"
	if order.Address != nil && *order.Address != "" {
		address = *order.Address
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Novo pedido #%d\n", order.ID)
	fmt.Fprintf(&b, "Cliente: %d\n", order.UserID)
	fmt.Fprintf(&b, "Endereço: %s\n", address)
	b.WriteString("Itens:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "- %s x%d\n", item.Name, item.Quantity)
	}
	return b.String()
}
