package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	serviceName    = "Payment Gateway Simulator"
	serviceVersion = "1.0.0"
)

// PaymentHandler serves the /payments API
type PaymentHandler struct {
	registry *GatewayRegistry
	store    *TransactionStore
	events   *EventPublisher
	metrics  *MetricsRegistry
	ws       *WSManager
	recorder *SQLRecorder
	breakers []*CircuitBreaker
	logger   *StructuredLogger
}

type HandlerDeps struct {
	Registry *GatewayRegistry
	Store    *TransactionStore
	Events   *EventPublisher
	Metrics  *MetricsRegistry
	WS       *WSManager
	// Recorder is nil when the SQL event log is disabled
	Recorder *SQLRecorder
	// Breakers guard the optional sinks and are reported by the health check
	Breakers []*CircuitBreaker
	Logger   *StructuredLogger
}

func NewPaymentHandler(deps HandlerDeps) *PaymentHandler {
	h := &PaymentHandler{
		registry: deps.Registry,
		store:    deps.Store,
		events:   deps.Events,
		metrics:  deps.Metrics,
		ws:       deps.WS,
		recorder: deps.Recorder,
		breakers: deps.Breakers,
		logger:   deps.Logger,
	}
	if h.logger == nil {
		h.logger = GetLogger()
	}
	if h.metrics == nil {
		h.metrics = NewMetricsRegistry(h.registry.IDs()...)
	}
	if h.ws == nil {
		h.ws = NewWSManager(nil, h.logger)
	}
	if h.events == nil {
		h.events = NewEventPublisher(h.logger, h.metrics, h.ws)
	}
	return h
}

// Routes registers the API on mux
func (h *PaymentHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /payments/process", h.ProcessPayment)
	mux.HandleFunc("GET /payments/gateways", h.Gateways)
	mux.HandleFunc("GET /payments/health", h.Health)
	mux.HandleFunc("GET /payments/metrics", h.Metrics)
	mux.HandleFunc("GET /payments/ws", h.ws.HandleWS)
	mux.HandleFunc("GET /payments/{id}", h.GetTransaction)
	mux.HandleFunc("GET /payments/{id}/events", h.TransactionEvents)
	mux.HandleFunc("POST /payments/{id}/refund", h.Refund)
}

// Handler returns the API wrapped in the standard middleware chain
func (h *PaymentHandler) Handler(maxBodyBytes int64) http.Handler {
	mux := http.NewServeMux()
	h.Routes(mux)
	return Chain(mux,
		CorrelationIDMiddleware,
		AccessLogMiddleware(h.logger),
		RecoveryMiddleware(h.logger),
		RequestValidationMiddleware(maxBodyBytes),
	)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody reports io.EOF for an empty body
func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationIDFrom(r.Context())

	var req PaymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse(ErrInvalidJSON, "Invalid JSON body", err.Error()))
		return
	}

	if err := req.Validate(); err != nil {
		var verrs ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, NewValidationErrorResponse(verrs))
			return
		}
		writeJSON(w, http.StatusBadRequest, NewErrorResponse(ErrInvalidRequest, err.Error(), ""))
		return
	}

	sim, err := h.registry.Resolve(req.Gateway)
	if err != nil {
		h.logger.Warn("Unsupported gateway requested", map[string]interface{}{
			"correlation_id": correlationID,
			"operation":      "payment",
			"gateway":        string(req.Gateway),
		})
		writeJSON(w, http.StatusBadRequest, NewErrorResponse(ErrGatewayNotSupported,
			fmt.Sprintf("Gateway '%s' is not supported", req.Gateway), err.Error()))
		return
	}

	resp := sim.ProcessPayment(req)
	h.events.Publish(r.Context(), paymentEvent(resp))

	writeJSON(w, http.StatusOK, resp)
}

func (h *PaymentHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, ok := h.store.Get(id)
	if !ok {
		h.notFound(w, id)
		return
	}

	writeJSON(w, http.StatusOK, newTransactionStatusResponse(rec))
}

func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, ok := h.store.Get(id)
	if !ok {
		h.notFound(w, id)
		return
	}

	var req RefundRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse(ErrInvalidJSON, "Invalid JSON body", err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		var verrs ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, NewValidationErrorResponse(verrs))
			return
		}
		writeJSON(w, http.StatusBadRequest, NewErrorResponse(ErrInvalidRequest, err.Error(), ""))
		return
	}

	// refunds go back through the provider that took the payment
	sim, err := h.registry.Resolve(rec.Provider)
	if err != nil {
		h.logger.Error("Transaction references unknown gateway", map[string]interface{}{
			"correlation_id": correlationIDFrom(r.Context()),
			"transaction_id": id,
			"provider":       string(rec.Provider),
			"error_code":     string(ErrInternalError),
		})
		writeJSON(w, http.StatusInternalServerError, NewErrorResponse(ErrInternalError, "Internal server error", ""))
		return
	}

	resp := sim.ProcessRefund(id, req)
	h.events.Publish(r.Context(), refundEvent(sim.ID(), resp))

	status := http.StatusOK
	if resp.Status != StatusRefunded {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (h *PaymentHandler) Gateways(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.ListAll())
}

type HealthResponse struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Health stays 200 while a dependency is down; the simulator works without
// its sinks.
func (h *PaymentHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Service:   serviceName,
		Timestamp: time.Now().UTC(),
		Version:   serviceVersion,
	}
	if len(h.breakers) > 0 {
		resp.Dependencies = make(map[string]string, len(h.breakers))
		for _, b := range h.breakers {
			resp.Dependencies[b.Name()] = b.GetState().String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PaymentHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot(h.store.Len()))
}

func (h *PaymentHandler) TransactionEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, ok := h.store.Get(id); !ok {
		h.notFound(w, id)
		return
	}
	if h.recorder == nil {
		writeJSON(w, http.StatusServiceUnavailable, NewErrorResponse(ErrInternalError, "Event log is not enabled", ""))
		return
	}

	events, err := h.recorder.History(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to read event history", map[string]interface{}{
			"correlation_id": correlationIDFrom(r.Context()),
			"transaction_id": id,
			"error":          err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, NewErrorResponse(ErrInternalError, "Failed to read event history", ""))
		return
	}

	writeJSON(w, http.StatusOK, events)
}

func (h *PaymentHandler) notFound(w http.ResponseWriter, id string) {
	resp := NewErrorResponse(ErrTransactionMissing, "Transaction not found", "")
	resp.TransactionID = id
	writeJSON(w, http.StatusNotFound, resp)
}
