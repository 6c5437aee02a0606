package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	wsWriteTimeout = 5 * time.Second
	wsSendBuffer   = 16
)

var errSubscriberBehind = errors.New("subscriber send buffer full")

// wsClient owns one connection. Messages are queued on send and written by
// writePump, so a slow reader never blocks the publisher.
type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	mu        sync.Mutex
	delivered bool
	closed    bool
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
}

func (c *wsClient) enqueue(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	select {
	case c.send <- msg:
		c.delivered = true
		return nil
	default:
		return errSubscriberBehind
	}
}

// replay queues msg unless a live event already went out; that one is newer
func (c *wsClient) replay(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.delivered {
		return
	}
	select {
	case c.send <- msg:
		c.delivered = true
	default:
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *wsClient) writePump() {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			// the read loop sees the closed conn and unregisters the client
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
}

// WSManager pushes transaction events to subscribers of a transaction id
type WSManager struct {
	clients map[string][]*wsClient
	mu      sync.RWMutex
	cache   ResultCache
	logger  *StructuredLogger
}

func NewWSManager(cache ResultCache, logger *StructuredLogger) *WSManager {
	if cache == nil {
		cache = nopResultCache{}
	}
	return &WSManager{
		clients: make(map[string][]*wsClient),
		cache:   cache,
		logger:  logger,
	}
}

func (m *WSManager) HandleWS(w http.ResponseWriter, r *http.Request) {
	transactionID := r.URL.Query().Get("transaction_id")
	if transactionID == "" {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse(ErrInvalidRequest, "transaction_id is required", ""))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("WebSocket upgrade failed", map[string]interface{}{
			"transaction_id": transactionID,
			"error":          err.Error(),
		})
		return
	}
	client := newWSClient(conn)
	go client.writePump()

	m.mu.Lock()
	m.clients[transactionID] = append(m.clients[transactionID], client)
	m.mu.Unlock()

	m.logger.Debug("WebSocket client subscribed", map[string]interface{}{
		"transaction_id": transactionID,
		"subscribers":    m.subscribers(transactionID),
	})

	rCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
	defer cancel()
	if ev, ok, err := m.cache.Latest(rCtx, transactionID); err != nil {
		m.logger.Warn("Cached result lookup failed", map[string]interface{}{
			"transaction_id": transactionID,
			"error":          err.Error(),
		})
	} else if ok {
		if msg, err := json.Marshal(ev); err == nil {
			client.replay(msg)
		}
	}

	go func() {
		defer m.remove(transactionID, client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (m *WSManager) remove(transactionID string, client *wsClient) {
	m.mu.Lock()
	conns := m.clients[transactionID]
	for i, c := range conns {
		if c == client {
			m.clients[transactionID] = append(conns[:i:i], conns[i+1:]...)
			break
		}
	}
	if len(m.clients[transactionID]) == 0 {
		delete(m.clients, transactionID)
	}
	m.mu.Unlock()
	client.close()
	client.conn.Close()
}

func (m *WSManager) subscribers(transactionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[transactionID])
}

// Publish queues the event for the subscribers of its transaction without
// waiting on their connections
func (m *WSManager) Publish(ctx context.Context, ev TransactionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	conns := append([]*wsClient(nil), m.clients[ev.TransactionID]...)
	m.mu.RUnlock()

	if len(conns) == 0 {
		return nil
	}

	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	for _, c := range conns {
		if err := c.enqueue(msg); err != nil {
			m.logger.Warn("Dropped WebSocket message", map[string]interface{}{
				"transaction_id": ev.TransactionID,
				"error":          err.Error(),
			})
		}
	}
	return nil
}
