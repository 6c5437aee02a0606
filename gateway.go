package main

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	msgRefundProcessed   = "Refund processed successfully"
	msgRefundNotFound    = "Transaction not found"
	msgRefundNotApproved = "Only approved transactions can be refunded"

	// currency reported when the transaction to refund does not exist
	fallbackCurrency = "USD"
)

// Latency stands in for the round trip to a real processor
type Latency interface {
	// Wait blocks for a duration in [lo, hi] and returns it
	Wait(lo, hi time.Duration) time.Duration
}

type randomLatency struct {
	rnd RandomSource
}

func (l randomLatency) Wait(lo, hi time.Duration) time.Duration {
	d := lo
	if span := hi - lo; span > 0 {
		d += time.Duration(l.rnd.IntN(int(span/time.Millisecond)+1)) * time.Millisecond
	}
	time.Sleep(d)
	return d
}

// NoLatency returns immediately
type NoLatency struct{}

func (NoLatency) Wait(_, _ time.Duration) time.Duration { return 0 }

type delayRange struct {
	min, max time.Duration
}

// GatewaySimulator plays the part of one provider. All providers share the
// same outcome engine and differ only by their descriptor.
type GatewaySimulator struct {
	desc    GatewayDescriptor
	store   *TransactionStore
	rnd     RandomSource
	latency Latency
	now     func() time.Time
	logger  *StructuredLogger

	paymentDelay delayRange
	refundDelay  delayRange
}

type SimulatorOption func(*GatewaySimulator)

func WithRandom(rnd RandomSource) SimulatorOption {
	return func(g *GatewaySimulator) { g.rnd = rnd }
}

func WithLatency(l Latency) SimulatorOption {
	return func(g *GatewaySimulator) { g.latency = l }
}

func WithClock(now func() time.Time) SimulatorOption {
	return func(g *GatewaySimulator) { g.now = now }
}

func WithLogger(l *StructuredLogger) SimulatorOption {
	return func(g *GatewaySimulator) { g.logger = l }
}

func WithPaymentDelay(min, max time.Duration) SimulatorOption {
	return func(g *GatewaySimulator) { g.paymentDelay = delayRange{min, max} }
}

func WithRefundDelay(min, max time.Duration) SimulatorOption {
	return func(g *GatewaySimulator) { g.refundDelay = delayRange{min, max} }
}

func NewGatewaySimulator(desc GatewayDescriptor, store *TransactionStore, opts ...SimulatorOption) *GatewaySimulator {
	g := &GatewaySimulator{
		desc:         desc.clone(),
		store:        store,
		rnd:          DefaultRandom,
		now:          func() time.Time { return time.Now().UTC() },
		paymentDelay: delayRange{100 * time.Millisecond, 500 * time.Millisecond},
		refundDelay:  delayRange{100 * time.Millisecond, 300 * time.Millisecond},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.latency == nil {
		g.latency = randomLatency{rnd: g.rnd}
	}
	if g.logger == nil {
		g.logger = GetLogger()
	}
	return g
}

func (g *GatewaySimulator) ID() ProviderID {
	return g.desc.Gateway
}

// Describe returns a copy of the provider metadata
func (g *GatewaySimulator) Describe() GatewayDescriptor {
	return g.desc.clone()
}

// ProcessPayment simulates an authorization and stores the attempt. It always
// produces a response; declines and failures are outcomes, not errors.
func (g *GatewaySimulator) ProcessPayment(req PaymentRequest) PaymentResponse {
	start := g.now()
	g.latency.Wait(g.paymentDelay.min, g.paymentDelay.max)

	var number string
	if req.Card != nil {
		number = req.Card.Number
	}

	if !g.desc.SupportsCurrency(req.Currency) {
		// no conversion happens; the attempt proceeds in the requested currency
		g.logger.Warn("Currency not listed for gateway", map[string]interface{}{
			"provider":  string(g.desc.Gateway),
			"operation": "payment",
			"currency":  req.Currency,
		})
	}

	id := newTransactionID()
	outcome := ResolveOutcome(number, g.rnd)
	now := g.now()

	resp := PaymentResponse{
		TransactionID:     id,
		Status:            outcome.Status,
		Message:           outcome.Message,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Gateway:           g.desc.Gateway,
		AuthorizationCode: outcome.AuthorizationCode,
		CardLastFour:      lastFour(number),
		CardType:          ClassifyCard(number),
		ErrorCode:         outcome.ErrorCode,
		Timestamp:         now,
		ProcessingTimeMs:  now.Sub(start).Milliseconds(),
	}

	err := g.store.Create(TransactionRecord{
		ID:        id,
		Status:    outcome.Status,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Provider:  g.desc.Gateway,
		CreatedAt: now,
	})
	if err != nil {
		g.logger.Error("Failed to store transaction", map[string]interface{}{
			"transaction_id": id,
			"provider":       string(g.desc.Gateway),
			"operation":      "payment",
			"error":          err.Error(),
		})
	}

	g.logger.Info("Payment processed", map[string]interface{}{
		"transaction_id": id,
		"provider":       string(g.desc.Gateway),
		"operation":      "payment",
		"status":         string(outcome.Status),
		"error_code":     outcome.ErrorCode,
		"card_number":    number,
		"latency_ms":     resp.ProcessingTimeMs,
	})

	return resp
}

// ProcessRefund refunds an approved transaction. Rejections come back as a
// Failed response with an empty refund id.
func (g *GatewaySimulator) ProcessRefund(transactionID string, req RefundRequest) RefundResponse {
	g.latency.Wait(g.refundDelay.min, g.refundDelay.max)
	now := g.now()

	rec, ok := g.store.Get(transactionID)
	if !ok {
		return g.rejectRefund(transactionID, fallbackCurrency, msgRefundNotFound, now)
	}
	if rec.Status != StatusApproved {
		return g.rejectRefund(transactionID, rec.Currency, msgRefundNotApproved, now)
	}

	out, err := g.store.ApplyRefund(transactionID, req.Amount, newRefundID(), now)
	switch {
	case errors.Is(err, ErrTransactionNotFound):
		return g.rejectRefund(transactionID, fallbackCurrency, msgRefundNotFound, now)
	case err != nil:
		// another refund won the race
		return g.rejectRefund(transactionID, rec.Currency, msgRefundNotApproved, now)
	}

	g.logger.Info("Refund processed", map[string]interface{}{
		"transaction_id": transactionID,
		"provider":       string(g.desc.Gateway),
		"operation":      "refund",
		"refund_id":      out.RefundID,
		"amount":         out.Amount.String(),
	})

	return RefundResponse{
		RefundID:              out.RefundID,
		OriginalTransactionID: transactionID,
		Status:                StatusRefunded,
		Amount:                out.Amount,
		Currency:              out.Currency,
		Message:               msgRefundProcessed,
		Timestamp:             now,
	}
}

func (g *GatewaySimulator) rejectRefund(transactionID, currency, message string, now time.Time) RefundResponse {
	g.logger.Warn("Refund rejected", map[string]interface{}{
		"transaction_id": transactionID,
		"provider":       string(g.desc.Gateway),
		"operation":      "refund",
		"reason":         message,
	})
	return RefundResponse{
		OriginalTransactionID: transactionID,
		Status:                StatusFailed,
		Amount:                decimal.Zero,
		Currency:              currency,
		Message:               message,
		Timestamp:             now,
	}
}

func compactUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// newTransactionID returns "txn_" followed by 20 hex characters
func newTransactionID() string {
	return "txn_" + compactUUID()[:20]
}

// newRefundID returns "ref_" followed by 16 hex characters
func newRefundID() string {
	return "ref_" + compactUUID()[:16]
}
