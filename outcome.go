package main

import (
	"math/rand/v2"
	"strconv"
	"sync"
)

// Outcome is the result the simulated processor gives for a card
type Outcome struct {
	Status            PaymentStatus
	Message           string
	ErrorCode         string
	AuthorizationCode string
}

// RandomSource draws uniform integers in [0, n). Implementations must be safe
// for concurrent use.
type RandomSource interface {
	IntN(n int) int
}

type globalRandom struct{}

func (globalRandom) IntN(n int) int {
	return rand.IntN(n)
}

// DefaultRandom is backed by the math/rand/v2 global generator
var DefaultRandom RandomSource = globalRandom{}

// LockedRandom is a seeded generator guarded by a mutex, for reproducible runs
type LockedRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewLockedRandom(seed uint64) *LockedRandom {
	return &LockedRandom{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (r *LockedRandom) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

const (
	msgApproved       = "Payment approved successfully"
	msgBankDeclined   = "Card declined by bank"
	msgGatewayFailure = "Connection error with the payment processor"

	ErrCodeCardDeclined      = "card_declined"
	ErrCodeExpiredCard       = "expired_card"
	ErrCodeIncorrectCVC      = "incorrect_cvc"
	ErrCodeProcessingError   = "processing_error"
	ErrCodeInsufficientFunds = "insufficient_funds"
	ErrCodeGatewayError      = "gateway_error"
)

// testCards are the well known numbers with a fixed outcome. Approved entries
// get a fresh authorization code on every call.
var testCards = map[string]Outcome{
	"4242424242424242": {Status: StatusApproved, Message: msgApproved},
	"4000000000000002": {Status: StatusDeclined, Message: "Card declined", ErrorCode: ErrCodeCardDeclined},
	"4000000000000069": {Status: StatusDeclined, Message: "Card expired", ErrorCode: ErrCodeExpiredCard},
	"4000000000000127": {Status: StatusDeclined, Message: "Incorrect CVC", ErrorCode: ErrCodeIncorrectCVC},
	"4000000000000119": {Status: StatusFailed, Message: "Processing error", ErrorCode: ErrCodeProcessingError},
	"4000000000009995": {Status: StatusDeclined, Message: "Insufficient funds", ErrorCode: ErrCodeInsufficientFunds},
	"5555555555554444": {Status: StatusApproved, Message: msgApproved},
	"378282246310005":  {Status: StatusApproved, Message: msgApproved},
}

// cumulative thresholds over [0, 100)
const (
	approveBelow = 80
	declineBelow = 95
)

// ResolveOutcome decides what the processor answers for number. Known test
// cards are deterministic, anything else is an 80/15/5 draw.
func ResolveOutcome(number string, rnd RandomSource) Outcome {
	if out, ok := testCards[cleanCardNumber(number)]; ok {
		if out.Status == StatusApproved {
			out.AuthorizationCode = authorizationCode(rnd)
		}
		return out
	}

	chance := rnd.IntN(100)
	switch {
	case chance < approveBelow:
		return Outcome{Status: StatusApproved, Message: msgApproved, AuthorizationCode: authorizationCode(rnd)}
	case chance < declineBelow:
		return Outcome{Status: StatusDeclined, Message: msgBankDeclined, ErrorCode: ErrCodeCardDeclined}
	default:
		return Outcome{Status: StatusFailed, Message: msgGatewayFailure, ErrorCode: ErrCodeGatewayError}
	}
}

// authorizationCode is uniform in [100000, 999999)
func authorizationCode(rnd RandomSource) string {
	return strconv.Itoa(100000 + rnd.IntN(899999))
}
