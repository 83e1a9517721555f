package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// Outcome is the tagged result of a payment initiation. Fallback marks a
// locally synthesized payment used when the provider could not be reached;
// callers must be able to distinguish the two for later reconciliation.
type Outcome struct {
	ProviderID string
	Status     string
	PixQR      *string
	PaymentURL *string
	Fallback   bool
}

// Gateway initiates a payment for an order. Implementations never fail the
// checkout: any provider error degrades to a fallback outcome.
type Gateway interface {
	Initiate(ctx context.Context, orderID int64, amount int64) Outcome
}

// EfiGateway talks to the Efí Bank PIX API over plain HTTP.
type EfiGateway struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewEfiGateway creates a gateway client. The timeout bounds the whole
// initiation call; once it fires the fallback path is taken.
func NewEfiGateway(baseURL, apiKey string, timeout time.Duration) *EfiGateway {
	return &EfiGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: util.GetLogger(),
	}
}

type initiateRequest struct {
	Amount   int64            `json:"amount"`
	Currency string           `json:"currency"`
	Method   string           `json:"method"`
	Metadata map[string]int64 `json:"metadata"`
}

type initiateResponse struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	PixQR      *string `json:"pix_qr"`
	PaymentURL *string `json:"payment_url"`
}

// Initiate starts a PIX transaction for the order's total, embedding the
// order id as metadata so the provider's webhook can be correlated back.
// The id is sent as a JSON number; the webhook payload decodes it as one.
func (g *EfiGateway) Initiate(ctx context.Context, orderID int64, amount int64) Outcome {
	ctx, span := util.StartSpan(ctx, "EfiGateway.Initiate")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	util.PaymentInitiationsTotal.WithLabelValues("attempt").Inc()

	body, err := json.Marshal(initiateRequest{
		Amount:   amount,
		Currency: "BRL",
		Method:   "pix",
		Metadata: map[string]int64{"order_id": orderID},
	})
	if err != nil {
		return g.fallback(orderID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return g.fallback(orderID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return g.fallback(orderID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return g.fallback(orderID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return g.fallback(orderID, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, respBody))
	}

	var out initiateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return g.fallback(orderID, err)
	}
	if out.ID == "" {
		return g.fallback(orderID, fmt.Errorf("provider response missing payment id"))
	}

	status := out.Status
	if status == "" {
		status = "pending"
	}

	util.PaymentInitiationsTotal.WithLabelValues("provider").Inc()
	g.logger.Info("Payment initiated with provider",
		zap.Int64("order_id", orderID),
		zap.String("payment_id", out.ID),
		zap.String("status", status))

	return Outcome{
		ProviderID: out.ID,
		Status:     status,
		PixQR:      out.PixQR,
		PaymentURL: out.PaymentURL,
	}
}

// fallback synthesizes a local pending payment so the checkout still
// produces a valid, payable order when the provider is unreachable.
func (g *EfiGateway) fallback(orderID int64, cause error) Outcome {
	util.PaymentInitiationsTotal.WithLabelValues("fallback").Inc()
	g.logger.Warn("Payment provider unavailable, using local fallback payment",
		zap.Int64("order_id", orderID),
		zap.Error(cause))

	return Outcome{
		ProviderID: fmt.Sprintf("local_%d", orderID),
		Status:     "pending",
		Fallback:   true,
	}
}
