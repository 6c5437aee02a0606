package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway answers like the simulator for the cards the scenarios use
type fakeGateway struct {
	payments atomic.Int64
	mu       sync.Mutex
	refunded map[string]bool
	wrongFor string
}

func newFakeGateway(t *testing.T) (*fakeGateway, LoadTestConfig) {
	t.Helper()
	fg := &fakeGateway{refunded: make(map[string]bool)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /payments/process", fg.process)
	mux.HandleFunc("POST /payments/{id}/refund", fg.refund)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return fg, LoadTestConfig{
		BaseURL:       srv.URL,
		TotalRequests: 40,
		Concurrency:   8,
		Gateway:       "Stripe",
		Currency:      "USD",
	}
}

func (fg *fakeGateway) process(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Card struct {
			Number string `json:"number"`
		} `json:"card"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	status := "Approved"
	for _, tc := range expectedCardOutcomes {
		if tc.Number == req.Card.Number {
			status = tc.Status
		}
	}
	if req.Card.Number == fg.wrongFor {
		status = "Failed"
	}

	n := fg.payments.Add(1)
	json.NewEncoder(w).Encode(paymentResult{TransactionID: fmt.Sprintf("txn_%d", n), Status: status})
}

func (fg *fakeGateway) refund(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	fg.mu.Lock()
	already := fg.refunded[id]
	fg.refunded[id] = true
	fg.mu.Unlock()

	if already {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(refundResult{Status: "Failed", Message: "Only approved transactions can be refunded"})
		return
	}
	json.NewEncoder(w).Encode(refundResult{RefundID: "ref_1", Status: "Refunded"})
}

func TestLoadTestStats(t *testing.T) {
	stats := NewLoadTestStats()
	for i := 1; i <= 100; i++ {
		stats.RecordRequest(http.StatusOK, "Approved", time.Duration(i)*time.Millisecond)
	}
	stats.RecordRequest(http.StatusBadRequest, "", 500*time.Millisecond)
	stats.RecordRequest(0, "error", 0)

	assert.EqualValues(t, 102, stats.TotalRequests)
	assert.EqualValues(t, 100, stats.SuccessCount)
	assert.EqualValues(t, 2, stats.FailureCount)
	assert.EqualValues(t, 500, stats.MaxLatency)
	assert.EqualValues(t, 100, stats.Outcomes["Approved"])
	assert.EqualValues(t, 1, stats.Outcomes["error"])
	assert.EqualValues(t, 1, stats.StatusCodes[0])

	p50, p95, p99 := stats.CalculatePercentiles()
	assert.EqualValues(t, 51, p50)
	assert.EqualValues(t, 96, p95)
	assert.EqualValues(t, 100, p99)
}

func TestLoadTestStatsKeepsZeroMinimum(t *testing.T) {
	stats := NewLoadTestStats()
	stats.RecordRequest(http.StatusOK, "Approved", 0)
	stats.RecordRequest(http.StatusOK, "Approved", 7*time.Millisecond)
	stats.RecordRequest(http.StatusOK, "Approved", 3*time.Millisecond)

	assert.EqualValues(t, 0, stats.MinLatency)
	assert.EqualValues(t, 7, stats.MaxLatency)
}

func TestCalculatePercentilesEmpty(t *testing.T) {
	p50, p95, p99 := NewLoadTestStats().CalculatePercentiles()
	assert.Zero(t, p50)
	assert.Zero(t, p95)
	assert.Zero(t, p99)
}

func TestPrintStats(t *testing.T) {
	var out bytes.Buffer
	NewLoadTestStats().PrintStats(&out, time.Second)
	assert.Equal(t, "No requests recorded\n", out.String())

	stats := NewLoadTestStats()
	stats.RecordRequest(http.StatusOK, "Declined", 20*time.Millisecond)
	out.Reset()
	stats.PrintStats(&out, time.Second)
	assert.Contains(t, out.String(), "LOAD TEST RESULTS")
	assert.Contains(t, out.String(), "Declined")
}

func TestNormalLoadScenario(t *testing.T) {
	fg, cfg := newFakeGateway(t)

	stats := normalLoadScenario(context.Background(), cfg, io.Discard)
	assert.EqualValues(t, 40, stats.TotalRequests)
	assert.EqualValues(t, 40, stats.SuccessCount)
	assert.EqualValues(t, 40, fg.payments.Load())
	assert.EqualValues(t, 40, stats.Outcomes["Approved"])
}

func TestCardsScenario(t *testing.T) {
	_, cfg := newFakeGateway(t)

	var out bytes.Buffer
	checks, mismatches := cardsScenario(context.Background(), cfg, &out)
	assert.Zero(t, mismatches, out.String())
	require.Len(t, checks, len(expectedCardOutcomes))
	for _, c := range checks {
		assert.True(t, c.OK(), c.Number)
	}
	assert.NotContains(t, out.String(), "MISMATCH")
}

func TestCardsScenarioReportsMismatch(t *testing.T) {
	fg, cfg := newFakeGateway(t)
	fg.wrongFor = "4242424242424242"

	var out bytes.Buffer
	_, mismatches := cardsScenario(context.Background(), cfg, &out)
	assert.Equal(t, 1, mismatches)
	assert.Equal(t, 1, strings.Count(out.String(), "MISMATCH"))
}

func TestRefundRaceScenario(t *testing.T) {
	_, cfg := newFakeGateway(t)

	res, err := refundRaceScenario(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, cfg.Concurrency-1, res.Rejected)
	assert.Zero(t, res.Errors)
	assert.Equal(t, "txn_1", res.TransactionID)
}

func TestRefundRaceScenarioNeedsApproval(t *testing.T) {
	fg, cfg := newFakeGateway(t)
	fg.wrongFor = "4242424242424242"

	_, err := refundRaceScenario(context.Background(), cfg, io.Discard)
	assert.ErrorContains(t, err, "not approved")
}
