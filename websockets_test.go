package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticCache serves one pre-stored event
type staticCache struct {
	nopResultCache
	ev TransactionEvent
}

func (c staticCache) Latest(_ context.Context, id string) (TransactionEvent, bool, error) {
	if id != c.ev.TransactionID {
		return TransactionEvent{}, false, nil
	}
	return c.ev, true, nil
}

func newWSServer(t *testing.T, cache ResultCache) (*httptest.Server, *WSManager) {
	t.Helper()
	store := NewTransactionStore()
	ws := NewWSManager(cache, discardLogger())
	h := NewPaymentHandler(HandlerDeps{
		Registry: newTestRegistry(t, store),
		Store:    store,
		WS:       ws,
		Logger:   discardLogger(),
	})
	srv := httptest.NewServer(h.Handler(10 * 1024))
	t.Cleanup(srv.Close)
	return srv, ws
}

func dialWS(t *testing.T, srv *httptest.Server, transactionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/payments/ws?transaction_id=" + transactionID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) TransactionEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev TransactionEvent
	require.NoError(t, json.Unmarshal(msg, &ev))
	return ev
}

func TestWebSocketRequiresTransactionID(t *testing.T) {
	srv, _ := newWSServer(t, nil)

	resp, err := http.Get(srv.URL + "/payments/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketReplaysCachedResult(t *testing.T) {
	cached := TransactionEvent{
		ID:            "evt_1",
		Type:          EventPaymentProcessed,
		TransactionID: "txn_cached",
		Gateway:       "Stripe",
		Status:        StatusApproved,
		Amount:        mustDecimal("12.50"),
		Currency:      "USD",
	}
	srv, _ := newWSServer(t, staticCache{ev: cached})

	conn := dialWS(t, srv, "txn_cached")
	ev := readEvent(t, conn)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, StatusApproved, ev.Status)
	assert.True(t, ev.Amount.Equal(mustDecimal("12.5")))
}

func TestWebSocketDeliversPublishedEvents(t *testing.T) {
	srv, ws := newWSServer(t, nil)

	conn := dialWS(t, srv, "txn_live")
	require.Eventually(t, func() bool { return ws.subscribers("txn_live") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ws.Publish(context.Background(), TransactionEvent{TransactionID: "txn_other", Type: EventPaymentProcessed}))
	require.NoError(t, ws.Publish(context.Background(), TransactionEvent{
		ID:            "evt_2",
		TransactionID: "txn_live",
		Type:          EventRefundProcessed,
		Status:        StatusRefunded,
	}))

	ev := readEvent(t, conn)
	assert.Equal(t, "evt_2", ev.ID)
	assert.Equal(t, EventRefundProcessed, ev.Type)

	conn.Close()
	assert.Eventually(t, func() bool { return ws.subscribers("txn_live") == 0 }, 2*time.Second, 10*time.Millisecond)
}

// gatedCache holds Latest until release is closed
type gatedCache struct {
	nopResultCache
	entered chan struct{}
	release chan struct{}
	ev      TransactionEvent
}

func (c *gatedCache) Latest(ctx context.Context, id string) (TransactionEvent, bool, error) {
	close(c.entered)
	<-c.release
	return c.ev, true, nil
}

func TestWebSocketLiveEventDuringReplayLookup(t *testing.T) {
	cache := &gatedCache{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		ev:      TransactionEvent{ID: "evt_stale", TransactionID: "txn_gate", Type: EventPaymentProcessed},
	}
	srv, ws := newWSServer(t, cache)

	conn := dialWS(t, srv, "txn_gate")
	<-cache.entered

	// already subscribed while the cache lookup is in flight
	assert.Equal(t, 1, ws.subscribers("txn_gate"))
	require.NoError(t, ws.Publish(context.Background(), TransactionEvent{ID: "evt_live", TransactionID: "txn_gate", Type: EventRefundProcessed}))
	close(cache.release)

	assert.Equal(t, "evt_live", readEvent(t, conn).ID)

	// the older cached event is not sent after the live one
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocketPublishDoesNotWaitForSlowSubscriber(t *testing.T) {
	logs := &syncBuffer{}
	ws := NewWSManager(nil, NewStructuredLogger(LogLevelInfo, true, logs))

	// nothing drains this client's queue
	stalled := &wsClient{send: make(chan []byte, 1)}
	ws.clients["txn_slow"] = []*wsClient{stalled}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 3 {
			ws.Publish(context.Background(), TransactionEvent{TransactionID: "txn_slow"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled subscriber")
	}
	assert.Len(t, stalled.send, 1)
	assert.Contains(t, logs.String(), "Dropped WebSocket message")
}

func TestWebSocketPublishHonorsContext(t *testing.T) {
	ws := NewWSManager(nil, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ws.Publish(ctx, TransactionEvent{TransactionID: "txn_1"}), context.Canceled)
}
