package main

import (
	"context"
	"sync"
	"time"
)

const latencyWindow = 1000

// GatewayMetrics counts outcomes for one provider
type GatewayMetrics struct {
	Gateway ProviderID

	TotalPayments  int64
	Approved       int64
	Declined       int64
	Failed         int64
	Refunded       int64
	RefundRejected int64

	LastPayment time.Time
	latency     *LatencyTracker

	mu sync.RWMutex
}

func NewGatewayMetrics(gateway ProviderID) *GatewayMetrics {
	return &GatewayMetrics{
		Gateway: gateway,
		latency: NewLatencyTracker(latencyWindow),
	}
}

func (gm *GatewayMetrics) RecordPayment(status PaymentStatus, latency time.Duration, at time.Time) {
	gm.mu.Lock()
	gm.TotalPayments++
	switch status {
	case StatusApproved:
		gm.Approved++
	case StatusDeclined:
		gm.Declined++
	case StatusFailed:
		gm.Failed++
	}
	gm.LastPayment = at
	gm.mu.Unlock()

	gm.latency.AddSample(latency)
}

func (gm *GatewayMetrics) RecordRefund(success bool) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if success {
		gm.Refunded++
	} else {
		gm.RefundRejected++
	}
}

// GatewayMetricsSnapshot is the JSON view of GatewayMetrics
type GatewayMetricsSnapshot struct {
	Gateway        ProviderID `json:"gateway"`
	TotalPayments  int64      `json:"totalPayments"`
	Approved       int64      `json:"approved"`
	Declined       int64      `json:"declined"`
	Failed         int64      `json:"failed"`
	Refunded       int64      `json:"refunded"`
	RefundRejected int64      `json:"refundRejected"`
	ApprovalRate   float64    `json:"approvalRate"`
	LatencyP50Ms   int64      `json:"latencyP50Ms"`
	LatencyP95Ms   int64      `json:"latencyP95Ms"`
	LatencyP99Ms   int64      `json:"latencyP99Ms"`
	LatencyAvgMs   int64      `json:"latencyAvgMs"`
	LastPayment    *time.Time `json:"lastPayment,omitempty"`
}

func (gm *GatewayMetrics) Snapshot() GatewayMetricsSnapshot {
	p := gm.latency.GetPercentiles()
	avg := gm.latency.GetAverage()

	gm.mu.RLock()
	defer gm.mu.RUnlock()

	s := GatewayMetricsSnapshot{
		Gateway:        gm.Gateway,
		TotalPayments:  gm.TotalPayments,
		Approved:       gm.Approved,
		Declined:       gm.Declined,
		Failed:         gm.Failed,
		Refunded:       gm.Refunded,
		RefundRejected: gm.RefundRejected,
		LatencyP50Ms:   p.P50.Milliseconds(),
		LatencyP95Ms:   p.P95.Milliseconds(),
		LatencyP99Ms:   p.P99.Milliseconds(),
		LatencyAvgMs:   avg.Milliseconds(),
	}
	if gm.TotalPayments > 0 {
		s.ApprovalRate = float64(gm.Approved) / float64(gm.TotalPayments)
	}
	if !gm.LastPayment.IsZero() {
		last := gm.LastPayment
		s.LastPayment = &last
	}
	return s
}

// MetricsRegistry holds one GatewayMetrics per provider and consumes
// transaction events
type MetricsRegistry struct {
	order    []ProviderID
	gateways map[ProviderID]*GatewayMetrics
	mu       sync.RWMutex
}

func NewMetricsRegistry(ids ...ProviderID) *MetricsRegistry {
	mr := &MetricsRegistry{gateways: make(map[ProviderID]*GatewayMetrics)}
	for _, id := range ids {
		mr.get(id)
	}
	return mr
}

func (mr *MetricsRegistry) get(id ProviderID) *GatewayMetrics {
	mr.mu.RLock()
	gm, ok := mr.gateways[id]
	mr.mu.RUnlock()
	if ok {
		return gm
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()
	if gm, ok = mr.gateways[id]; !ok {
		gm = NewGatewayMetrics(id)
		mr.gateways[id] = gm
		mr.order = append(mr.order, id)
	}
	return gm
}

func (mr *MetricsRegistry) Publish(_ context.Context, ev TransactionEvent) error {
	gm := mr.get(ev.Gateway)
	switch ev.Type {
	case EventPaymentProcessed:
		gm.RecordPayment(ev.Status, time.Duration(ev.ProcessingTimeMs)*time.Millisecond, ev.Timestamp)
	case EventRefundProcessed:
		gm.RecordRefund(true)
	case EventRefundRejected:
		gm.RecordRefund(false)
	}
	return nil
}

type MetricsSnapshot struct {
	Transactions int                      `json:"transactions"`
	Gateways     []GatewayMetricsSnapshot `json:"gateways"`
	Timestamp    time.Time                `json:"timestamp"`
}

func (mr *MetricsRegistry) Snapshot(transactions int) MetricsSnapshot {
	mr.mu.RLock()
	order := append([]ProviderID(nil), mr.order...)
	mr.mu.RUnlock()

	out := MetricsSnapshot{
		Transactions: transactions,
		Gateways:     make([]GatewayMetricsSnapshot, 0, len(order)),
		Timestamp:    time.Now().UTC(),
	}
	for _, id := range order {
		out.Gateways = append(out.Gateways, mr.get(id).Snapshot())
	}
	return out
}
