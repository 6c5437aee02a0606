package main

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupRecorder(t *testing.T) *SQLRecorder {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// every pooled connection would get its own empty in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	rec := NewSQLRecorder(db)
	require.NoError(t, rec.CreateTables(context.Background()))
	return rec
}

func TestSQLRecorderPublishAndHistory(t *testing.T) {
	ctx := context.Background()
	rec := setupRecorder(t)

	// creating twice is harmless
	require.NoError(t, rec.CreateTables(ctx))

	payment := TransactionEvent{
		ID:               "evt_1",
		Type:             EventPaymentProcessed,
		TransactionID:    "txn_1",
		Gateway:          "Stripe",
		Status:           StatusApproved,
		Amount:           mustDecimal("100.50"),
		Currency:         "USD",
		Message:          "Payment approved successfully",
		ProcessingTimeMs: 231,
		Timestamp:        testNow,
	}
	refund := TransactionEvent{
		ID:            "evt_2",
		Type:          EventRefundProcessed,
		TransactionID: "txn_1",
		Gateway:       "Stripe",
		Status:        StatusRefunded,
		Amount:        mustDecimal("40"),
		Currency:      "USD",
		Message:       "Refund processed successfully",
		RefundID:      "ref_1",
		Timestamp:     testNow.Add(time.Minute),
	}
	other := payment
	other.ID = "evt_3"
	other.TransactionID = "txn_2"

	require.NoError(t, rec.Publish(ctx, payment))
	require.NoError(t, rec.Publish(ctx, refund))
	require.NoError(t, rec.Publish(ctx, other))

	history, err := rec.History(ctx, "txn_1")
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, EventPaymentProcessed, history[0].Type)
	assert.Equal(t, StatusApproved, history[0].Status)
	assert.True(t, history[0].Amount.Equal(mustDecimal("100.5")), history[0].Amount.String())
	assert.EqualValues(t, 231, history[0].ProcessingTimeMs)
	assert.True(t, testNow.Equal(history[0].Timestamp))

	assert.Equal(t, EventRefundProcessed, history[1].Type)
	assert.Equal(t, "ref_1", history[1].RefundID)
	assert.True(t, history[1].Amount.Equal(mustDecimal("40")))

	empty, err := rec.History(ctx, "txn_none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLRecorderHistoryKeepsPublishOrderWithinOneSecond(t *testing.T) {
	ctx := context.Background()
	rec := setupRecorder(t)

	// same truncated timestamp, and ids that sort the wrong way round
	payment := TransactionEvent{ID: "f3a9c1", Type: EventPaymentProcessed, TransactionID: "txn_1", Gateway: "Stripe", Status: StatusApproved, Amount: mustDecimal("50"), Currency: "USD", Timestamp: testNow}
	refund := TransactionEvent{ID: "0b72de", Type: EventRefundProcessed, TransactionID: "txn_1", Gateway: "Stripe", Status: StatusRefunded, Amount: mustDecimal("50"), Currency: "USD", RefundID: "ref_1", Timestamp: testNow}

	require.NoError(t, rec.Publish(ctx, payment))
	require.NoError(t, rec.Publish(ctx, refund))

	history, err := rec.History(ctx, "txn_1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, EventPaymentProcessed, history[0].Type)
	assert.Equal(t, EventRefundProcessed, history[1].Type)
}

func TestSQLRecorderDuplicateEventFails(t *testing.T) {
	ctx := context.Background()
	rec := setupRecorder(t)

	ev := TransactionEvent{ID: "evt_1", Type: EventPaymentProcessed, TransactionID: "txn_1", Gateway: "Stripe", Status: StatusApproved, Amount: mustDecimal("1"), Currency: "USD", Timestamp: testNow}
	require.NoError(t, rec.Publish(ctx, ev))
	assert.Error(t, rec.Publish(ctx, ev))
}

func TestAPIEventsFromRecorder(t *testing.T) {
	var mu sync.Mutex
	now := testNow
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}

	store := NewTransactionStore()
	registry := newTestRegistry(t, store, WithClock(clock))
	recorder := setupRecorder(t)
	metrics := NewMetricsRegistry(registry.IDs()...)
	logger := discardLogger()

	h := NewPaymentHandler(HandlerDeps{
		Registry: registry,
		Store:    store,
		Metrics:  metrics,
		Events:   NewEventPublisher(logger, metrics, recorder),
		Recorder: recorder,
		Logger:   logger,
	})
	api := &testAPI{handler: h.Handler(10 * 1024), store: store, metrics: metrics}

	payment := decodeJSON[PaymentResponse](t, api.do(t, http.MethodPost, "/payments/process", paymentBody("4242424242424242")))
	api.do(t, http.MethodPost, "/payments/"+payment.TransactionID+"/refund", nil)

	rec := api.do(t, http.MethodGet, "/payments/"+payment.TransactionID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	events := decodeJSON[[]TransactionEvent](t, rec)
	require.Len(t, events, 2)
	assert.Equal(t, EventPaymentProcessed, events[0].Type)
	assert.Equal(t, EventRefundProcessed, events[1].Type)
	assert.Equal(t, ProviderID("Stripe"), events[1].Gateway)
}
