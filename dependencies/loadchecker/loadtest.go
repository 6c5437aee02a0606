package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type LoadTestConfig struct {
	BaseURL       string
	TotalRequests int
	Concurrency   int
	Gateway       string
	Currency      string
}

type LoadTestStats struct {
	TotalRequests int64
	SuccessCount  int64
	FailureCount  int64
	TotalLatency  int64
	MinLatency    int64
	MaxLatency    int64
	StatusCodes   map[int]int64
	Outcomes      map[string]int64
	Latencies     []int64
	mu            sync.Mutex
}

func NewLoadTestStats() *LoadTestStats {
	return &LoadTestStats{
		MinLatency:  math.MaxInt64,
		StatusCodes: make(map[int]int64),
		Outcomes:    make(map[string]int64),
	}
}

// RecordRequest counts one HTTP exchange. statusCode 0 means a transport error.
func (s *LoadTestStats) RecordRequest(statusCode int, outcome string, latency time.Duration) {
	atomic.AddInt64(&s.TotalRequests, 1)
	latencyMs := latency.Milliseconds()
	atomic.AddInt64(&s.TotalLatency, latencyMs)

	if statusCode >= 200 && statusCode < 300 {
		atomic.AddInt64(&s.SuccessCount, 1)
	} else {
		atomic.AddInt64(&s.FailureCount, 1)
	}

	for {
		oldMin := atomic.LoadInt64(&s.MinLatency)
		if latencyMs >= oldMin {
			break
		}
		if atomic.CompareAndSwapInt64(&s.MinLatency, oldMin, latencyMs) {
			break
		}
	}

	for {
		oldMax := atomic.LoadInt64(&s.MaxLatency)
		if latencyMs <= oldMax {
			break
		}
		if atomic.CompareAndSwapInt64(&s.MaxLatency, oldMax, latencyMs) {
			break
		}
	}

	s.mu.Lock()
	s.Latencies = append(s.Latencies, latencyMs)
	s.StatusCodes[statusCode]++
	if outcome != "" {
		s.Outcomes[outcome]++
	}
	s.mu.Unlock()
}

// CalculatePercentiles uses nearest rank on the recorded latencies
func (s *LoadTestStats) CalculatePercentiles() (p50, p95, p99 int64) {
	s.mu.Lock()
	sorted := slices.Clone(s.Latencies)
	s.mu.Unlock()

	if len(sorted) == 0 {
		return 0, 0, 0
	}
	slices.Sort(sorted)

	rank := func(p float64) int64 {
		return sorted[min(int(float64(len(sorted))*p), len(sorted)-1)]
	}
	return rank(0.50), rank(0.95), rank(0.99)
}

func (s *LoadTestStats) PrintStats(out io.Writer, duration time.Duration) {
	total := atomic.LoadInt64(&s.TotalRequests)
	success := atomic.LoadInt64(&s.SuccessCount)
	failure := atomic.LoadInt64(&s.FailureCount)
	totalLatency := atomic.LoadInt64(&s.TotalLatency)
	minLatency := atomic.LoadInt64(&s.MinLatency)
	maxLatency := atomic.LoadInt64(&s.MaxLatency)

	if total == 0 {
		fmt.Fprintln(out, "No requests recorded")
		return
	}

	p50, p95, p99 := s.CalculatePercentiles()

	fmt.Fprintln(out, "\n╔═══════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║          LOAD TEST RESULTS                            ║")
	fmt.Fprintln(out, "╠═══════════════════════════════════════════════════════╣")
	fmt.Fprintf(out, "║ Total Requests:    %-30d     ║\n", total)
	fmt.Fprintf(out, "║ HTTP 2xx:          %-15d (%6.2f%%)           ║\n", success, pct(success, total))
	fmt.Fprintf(out, "║ Other:             %-15d (%6.2f%%)           ║\n", failure, pct(failure, total))
	fmt.Fprintln(out, "╠═══════════════════════════════════════════════════════╣")
	fmt.Fprintln(out, "║ Latency (ms):                                         ║")
	fmt.Fprintf(out, "║   Min:             %-30d     ║\n", minLatency)
	fmt.Fprintf(out, "║   P50:             %-30d     ║\n", p50)
	fmt.Fprintf(out, "║   P95:             %-30d     ║\n", p95)
	fmt.Fprintf(out, "║   P99:             %-30d     ║\n", p99)
	fmt.Fprintf(out, "║   Max:             %-30d     ║\n", maxLatency)
	fmt.Fprintf(out, "║   Average:         %-30d     ║\n", totalLatency/total)
	fmt.Fprintln(out, "╠═══════════════════════════════════════════════════════╣")
	fmt.Fprintln(out, "║ Status Code Distribution:                             ║")
	s.mu.Lock()
	for _, code := range sortedKeys(s.StatusCodes) {
		count := s.StatusCodes[code]
		fmt.Fprintf(out, "║   %-4d %-15d (%6.2f%%)                      ║\n", code, count, pct(count, total))
	}
	fmt.Fprintln(out, "║ Outcome Distribution:                                 ║")
	for _, outcome := range sortedKeys(s.Outcomes) {
		count := s.Outcomes[outcome]
		fmt.Fprintf(out, "║   %-10s %-10d (%6.2f%%)                      ║\n", outcome, count, pct(count, total))
	}
	s.mu.Unlock()
	fmt.Fprintln(out, "╠═══════════════════════════════════════════════════════╣")
	fmt.Fprintf(out, "║ Total Duration:    %-30v     ║\n", duration.Round(time.Millisecond))
	fmt.Fprintf(out, "║ Requests/sec:      %-30.2f     ║\n", float64(total)/duration.Seconds())
	fmt.Fprintln(out, "╚═══════════════════════════════════════════════════════╝")
}

func pct(n, total int64) float64 {
	return float64(n) / float64(total) * 100
}

func sortedKeys[K int | string](m map[K]int64) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

type paymentResult struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	ErrorCode     string `json:"errorCode"`
}

type refundResult struct {
	RefundID string `json:"refundId"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) postJSON(ctx context.Context, path string, body, out interface{}) (int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

func paymentBody(cfg LoadTestConfig, cardNumber string, amount float64) map[string]interface{} {
	return map[string]interface{}{
		"amount":   amount,
		"currency": cfg.Currency,
		"gateway":  cfg.Gateway,
		"card": map[string]interface{}{
			"number":      cardNumber,
			"expiryMonth": 12,
			"expiryYear":  2030,
			"cvc":         "123",
			"holderName":  "Load Test",
		},
		"description": "loadcheck",
	}
}

func (c *apiClient) pay(ctx context.Context, cfg LoadTestConfig, cardNumber string, amount float64) (paymentResult, int, error) {
	var res paymentResult
	code, err := c.postJSON(ctx, "/payments/process", paymentBody(cfg, cardNumber, amount), &res)
	return res, code, err
}

func (c *apiClient) refund(ctx context.Context, transactionID string) (refundResult, int, error) {
	var res refundResult
	code, err := c.postJSON(ctx, "/payments/"+transactionID+"/refund", nil, &res)
	return res, code, err
}

// randomCard has no fixed outcome, so the server draws one
const randomCard = "4111111111111111"

// normalLoadScenario sends concurrent payments with non-test cards
func normalLoadScenario(ctx context.Context, cfg LoadTestConfig, out io.Writer) *LoadTestStats {
	fmt.Fprintln(out, "\nStarting scenario: NORMAL LOAD")
	fmt.Fprintf(out, "   Requests: %d | Concurrency: %d | Gateway: %s\n", cfg.TotalRequests, cfg.Concurrency, cfg.Gateway)

	client := newAPIClient(cfg.BaseURL)
	stats := NewLoadTestStats()
	startTime := time.Now()

	sem := make(chan struct{}, max(cfg.Concurrency, 1))
	var wg sync.WaitGroup

	for i := 1; i <= cfg.TotalRequests; i++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(reqNum int) {
			defer wg.Done()
			defer func() { <-sem }()

			reqStart := time.Now()
			res, code, err := client.pay(ctx, cfg, randomCard, 10+float64(reqNum%100))
			latency := time.Since(reqStart)
			if err != nil {
				stats.RecordRequest(code, "error", latency)
				return
			}
			stats.RecordRequest(code, res.Status, latency)
		}(i)
	}

	wg.Wait()
	stats.PrintStats(out, time.Since(startTime))
	return stats
}

// expectedCardOutcomes lists the test cards and the status the server must
// answer with
var expectedCardOutcomes = []struct {
	Number string
	Status string
}{
	{"4242424242424242", "Approved"},
	{"4000000000000002", "Declined"},
	{"4000000000000069", "Declined"},
	{"4000000000000127", "Declined"},
	{"4000000000000119", "Failed"},
	{"4000000000009995", "Declined"},
	{"5555555555554444", "Approved"},
	{"378282246310005", "Approved"},
}

type CardCheck struct {
	Number   string
	Expected string
	Got      string
	Err      error
}

func (c CardCheck) OK() bool { return c.Err == nil && c.Expected == c.Got }

// cardsScenario sends every test card once and compares the status
func cardsScenario(ctx context.Context, cfg LoadTestConfig, out io.Writer) ([]CardCheck, int) {
	fmt.Fprintln(out, "\nStarting scenario: TEST CARDS")

	client := newAPIClient(cfg.BaseURL)
	checks := make([]CardCheck, 0, len(expectedCardOutcomes))
	mismatches := 0

	for _, tc := range expectedCardOutcomes {
		check := CardCheck{Number: tc.Number, Expected: tc.Status}
		res, code, err := client.pay(ctx, cfg, tc.Number, 25)
		switch {
		case err != nil:
			check.Err = err
		case code != http.StatusOK:
			check.Err = fmt.Errorf("unexpected HTTP status %d", code)
		default:
			check.Got = res.Status
		}

		mark := "ok"
		if !check.OK() {
			mark = "MISMATCH"
			mismatches++
		}
		fmt.Fprintf(out, "   %-17s expected %-9s got %-9s %s\n", tc.Number, tc.Status, check.Got, mark)
		checks = append(checks, check)
	}

	return checks, mismatches
}

type RaceResult struct {
	TransactionID string
	Succeeded     int
	Rejected      int
	Errors        int
}

// refundRaceScenario approves one payment and then refunds it from many
// goroutines at once. Exactly one refund may succeed.
func refundRaceScenario(ctx context.Context, cfg LoadTestConfig, out io.Writer) (RaceResult, error) {
	fmt.Fprintln(out, "\nStarting scenario: REFUND RACE")

	client := newAPIClient(cfg.BaseURL)
	payment, code, err := client.pay(ctx, cfg, "4242424242424242", 100)
	if err != nil {
		return RaceResult{}, fmt.Errorf("create payment: %w", err)
	}
	if code != http.StatusOK || payment.Status != "Approved" {
		return RaceResult{}, fmt.Errorf("payment not approved: HTTP %d status %q", code, payment.Status)
	}

	result := RaceResult{TransactionID: payment.TransactionID}
	workers := max(cfg.Concurrency, 2)
	fmt.Fprintf(out, "   Transaction %s, %d concurrent refunds\n", payment.TransactionID, workers)

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			res, code, err := client.refund(ctx, payment.TransactionID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Errors++
			case code == http.StatusOK && res.Status == "Refunded":
				result.Succeeded++
			default:
				result.Rejected++
			}
		}()
	}
	close(start)
	wg.Wait()

	fmt.Fprintf(out, "   Succeeded: %d | Rejected: %d | Errors: %d\n", result.Succeeded, result.Rejected, result.Errors)
	if result.Succeeded != 1 {
		return result, fmt.Errorf("expected exactly one successful refund, got %d", result.Succeeded)
	}
	return result, nil
}
