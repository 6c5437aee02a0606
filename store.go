package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrNotApproved          = errors.New("transaction is not approved")
	ErrDuplicateTransaction = errors.New("transaction already exists")
)

// TransactionRecord is the stored state of one payment attempt. Amount,
// Currency, Provider and CreatedAt never change after Create.
type TransactionRecord struct {
	ID        string
	Status    PaymentStatus
	Amount    decimal.Decimal
	Currency  string
	Provider  ProviderID
	CreatedAt time.Time
	UpdatedAt *time.Time
	RefundID  string
}

// RefundOutcome is what ApplyRefund settled on
type RefundOutcome struct {
	Amount   decimal.Decimal
	Currency string
	RefundID string
}

// TransactionStore keeps every transaction for the life of the process.
// There is no eviction.
type TransactionStore struct {
	mu      sync.RWMutex
	records map[string]*TransactionRecord
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		records: make(map[string]*TransactionRecord),
	}
}

// Create inserts a freshly resolved payment attempt
func (s *TransactionStore) Create(rec TransactionRecord) error {
	if !StatusPending.CanTransitionTo(rec.Status) || !rec.Status.IsResolved() {
		return fmt.Errorf("create %s with status %s: %w", rec.ID, rec.Status, ErrInvalidStateChange)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("create %s: %w", rec.ID, ErrDuplicateTransaction)
	}

	stored := rec
	s.records[rec.ID] = &stored
	return nil
}

// Get returns a copy of the record
func (s *TransactionStore) Get(id string) (TransactionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return TransactionRecord{}, false
	}
	return *rec, true
}

// ApplyRefund moves an approved transaction to Refunded. The check and the
// write happen under one lock so concurrent refunds of the same id cannot both
// succeed. A requested amount that is not positive or exceeds the original is
// replaced by the full amount.
func (s *TransactionStore) ApplyRefund(id string, requested *decimal.Decimal, refundID string, now time.Time) (RefundOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return RefundOutcome{}, fmt.Errorf("refund %s: %w", id, ErrTransactionNotFound)
	}
	if !rec.Status.CanTransitionTo(StatusRefunded) {
		return RefundOutcome{}, fmt.Errorf("refund %s in status %s: %w", id, rec.Status, ErrNotApproved)
	}

	amount := rec.Amount
	if requested != nil && requested.IsPositive() && requested.LessThanOrEqual(rec.Amount) {
		amount = *requested
	}

	updated := now
	rec.Status = StatusRefunded
	rec.UpdatedAt = &updated
	rec.RefundID = refundID

	return RefundOutcome{
		Amount:   amount,
		Currency: rec.Currency,
		RefundID: refundID,
	}, nil
}

// Len returns the number of stored transactions
func (s *TransactionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
