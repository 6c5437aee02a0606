package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventPaymentProcessed EventType = "payment.processed"
	EventRefundProcessed  EventType = "refund.processed"
	EventRefundRejected   EventType = "refund.rejected"
)

// TransactionEvent is emitted after every payment or refund attempt
type TransactionEvent struct {
	ID               string          `json:"eventId"`
	Type             EventType       `json:"type"`
	TransactionID    string          `json:"transactionId"`
	Gateway          ProviderID      `json:"gateway"`
	Status           PaymentStatus   `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Message          string          `json:"message"`
	ErrorCode        string          `json:"errorCode,omitempty"`
	RefundID         string          `json:"refundId,omitempty"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
	Timestamp        time.Time       `json:"timestamp"`
}

func paymentEvent(resp PaymentResponse) TransactionEvent {
	return TransactionEvent{
		ID:               compactUUID(),
		Type:             EventPaymentProcessed,
		TransactionID:    resp.TransactionID,
		Gateway:          resp.Gateway,
		Status:           resp.Status,
		Amount:           resp.Amount,
		Currency:         resp.Currency,
		Message:          resp.Message,
		ErrorCode:        resp.ErrorCode,
		ProcessingTimeMs: resp.ProcessingTimeMs,
		Timestamp:        resp.Timestamp,
	}
}

func refundEvent(gateway ProviderID, resp RefundResponse) TransactionEvent {
	ev := TransactionEvent{
		ID:            compactUUID(),
		Type:          EventRefundProcessed,
		TransactionID: resp.OriginalTransactionID,
		Gateway:       gateway,
		Status:        resp.Status,
		Amount:        resp.Amount,
		Currency:      resp.Currency,
		Message:       resp.Message,
		RefundID:      resp.RefundID,
		Timestamp:     resp.Timestamp,
	}
	if resp.Status != StatusRefunded {
		ev.Type = EventRefundRejected
	}
	return ev
}

// EventSink receives transaction events. Implementations must be safe for
// concurrent use.
type EventSink interface {
	Publish(ctx context.Context, ev TransactionEvent) error
}

// EventPublisher fans events out to every sink. A failing sink is logged and
// skipped; it never fails the request that produced the event.
type EventPublisher struct {
	sinks   []EventSink
	timeout time.Duration
	logger  *StructuredLogger
}

func NewEventPublisher(logger *StructuredLogger, sinks ...EventSink) *EventPublisher {
	return &EventPublisher{
		sinks:   sinks,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

func (p *EventPublisher) Publish(ctx context.Context, ev TransactionEvent) {
	// the client may already be gone; the event is still delivered
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			p.logger.Error("Event sink failed", map[string]interface{}{
				"correlation_id": correlationIDFrom(ctx),
				"transaction_id": ev.TransactionID,
				"provider":       string(ev.Gateway),
				"operation":      string(ev.Type),
				"sink":           fmt.Sprintf("%T", sink),
				"error":          err.Error(),
			})
		}
	}
}
