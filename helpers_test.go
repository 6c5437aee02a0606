package main

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fixedRandom always draws the same value, capped to the requested range
type fixedRandom int

func (f fixedRandom) IntN(n int) int {
	return min(int(f), n-1)
}

func discardLogger() *StructuredLogger {
	return NewStructuredLogger(LogLevelError, true, io.Discard)
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestSimulator(t *testing.T, id ProviderID, store *TransactionStore, opts ...SimulatorOption) *GatewaySimulator {
	t.Helper()
	base := []SimulatorOption{
		WithLatency(NoLatency{}),
		WithLogger(discardLogger()),
		WithRandom(NewLockedRandom(42)),
	}
	desc := GatewayDescriptor{
		Gateway:             id,
		Name:                string(id),
		SupportedCurrencies: []string{"USD", "EUR"},
		SupportedCardTypes:  []CardBrand{CardVisa, CardMasterCard, CardAmericanExpress},
		IsActive:            true,
		IsSimulated:         true,
	}
	return NewGatewaySimulator(desc, store, append(base, opts...)...)
}

func newTestRegistry(t *testing.T, store *TransactionStore, opts ...SimulatorOption) *GatewayRegistry {
	t.Helper()
	descs, err := LoadGatewayDescriptors("")
	require.NoError(t, err)

	sims := make([]*GatewaySimulator, 0, len(descs))
	for _, d := range descs {
		base := []SimulatorOption{
			WithLatency(NoLatency{}),
			WithLogger(discardLogger()),
			WithRandom(NewLockedRandom(7)),
		}
		sims = append(sims, NewGatewaySimulator(d, store, append(base, opts...)...))
	}
	reg, err := NewGatewayRegistry(sims...)
	require.NoError(t, err)
	return reg
}

func validPaymentRequest(gateway ProviderID, card string) PaymentRequest {
	return PaymentRequest{
		Amount:   mustDecimal("100.00"),
		Currency: "USD",
		Gateway:  gateway,
		Card: &CardInfo{
			Number:      card,
			ExpiryMonth: 12,
			ExpiryYear:  2030,
			CVC:         "123",
			HolderName:  "Ada Lovelace",
		},
	}
}
