package main

import (
	"slices"
	"sync"
	"time"
)

type LatencyPercentiles struct {
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// LatencyTracker keeps the most recent latency samples in a sliding window
type LatencyTracker struct {
	samples    []time.Duration
	maxSamples int
	mu         sync.RWMutex
}

func NewLatencyTracker(maxSamples int) *LatencyTracker {
	if maxSamples <= 0 {
		maxSamples = 1
	}
	return &LatencyTracker{
		samples:    make([]time.Duration, 0, maxSamples),
		maxSamples: maxSamples,
	}
}

func (lt *LatencyTracker) AddSample(latency time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.samples = append(lt.samples, latency)
	if excess := len(lt.samples) - lt.maxSamples; excess > 0 {
		lt.samples = lt.samples[excess:]
	}
}

func (lt *LatencyTracker) GetPercentiles() LatencyPercentiles {
	lt.mu.RLock()
	sorted := slices.Clone(lt.samples)
	lt.mu.RUnlock()

	if len(sorted) == 0 {
		return LatencyPercentiles{}
	}
	slices.Sort(sorted)

	return LatencyPercentiles{
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile interpolates linearly between the two closest ranks
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	p = min(max(p, 0), 100)

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return time.Duration(float64(sorted[lower])*(1-weight) + float64(sorted[upper])*weight)
}

func (lt *LatencyTracker) GetAverage() time.Duration {
	lt.mu.RLock()
	defer lt.mu.RUnlock()

	if len(lt.samples) == 0 {
		return 0
	}

	var total time.Duration
	for _, sample := range lt.samples {
		total += sample
	}
	return total / time.Duration(len(lt.samples))
}

func (lt *LatencyTracker) GetSampleCount() int {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	return len(lt.samples)
}
