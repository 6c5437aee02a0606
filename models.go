package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// amounts go over the wire as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true
}

var (
	minAmount = decimal.RequireFromString("0.01")
	maxAmount = decimal.NewFromInt(1_000_000)
)

// PaymentRequest is the body of POST /payments/process
type PaymentRequest struct {
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency"`
	Gateway     ProviderID        `json:"gateway"`
	Card        *CardInfo         `json:"card"`
	Description string            `json:"description,omitempty"`
	CustomerID  string            `json:"customerId,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CardInfo carries simulated card data. Only the number drives the outcome.
type CardInfo struct {
	Number      string `json:"number"`
	ExpiryMonth int    `json:"expiryMonth"`
	ExpiryYear  int    `json:"expiryYear"`
	CVC         string `json:"cvc"`
	HolderName  string `json:"holderName"`
}

// PaymentResponse is returned for every payment attempt, whatever the outcome
type PaymentResponse struct {
	TransactionID     string          `json:"transactionId"`
	Status            PaymentStatus   `json:"status"`
	Message           string          `json:"message"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Gateway           ProviderID      `json:"gateway"`
	AuthorizationCode string          `json:"authorizationCode,omitempty"`
	CardLastFour      string          `json:"cardLastFour,omitempty"`
	CardType          CardBrand       `json:"cardType,omitempty"`
	ErrorCode         string          `json:"errorCode,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
	ProcessingTimeMs  int64           `json:"processingTimeMs"`
}

// TransactionStatusResponse is the body of GET /payments/{id}
type TransactionStatusResponse struct {
	TransactionID string          `json:"transactionId"`
	Status        PaymentStatus   `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Gateway       ProviderID      `json:"gateway"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     *time.Time      `json:"updatedAt,omitempty"`
	RefundID      string          `json:"refundId,omitempty"`
}

func newTransactionStatusResponse(rec TransactionRecord) TransactionStatusResponse {
	return TransactionStatusResponse{
		TransactionID: rec.ID,
		Status:        rec.Status,
		Amount:        rec.Amount,
		Currency:      rec.Currency,
		Gateway:       rec.Provider,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
		RefundID:      rec.RefundID,
	}
}

// RefundRequest is the optional body of POST /payments/{id}/refund. A nil
// Amount refunds the whole transaction.
type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason,omitempty"`
}

// RefundResponse reports a refund attempt. It is never stored.
type RefundResponse struct {
	RefundID              string          `json:"refundId"`
	OriginalTransactionID string          `json:"originalTransactionId"`
	Status                PaymentStatus   `json:"status"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Message               string          `json:"message"`
	Timestamp             time.Time       `json:"timestamp"`
}

// ValidationErrors maps a JSON field path to its problems
type ValidationErrors map[string][]string

func (v ValidationErrors) add(field, format string, args ...interface{}) {
	v[field] = append(v[field], fmt.Sprintf(format, args...))
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for field, msgs := range v {
		parts = append(parts, field+": "+strings.Join(msgs, ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validate checks the request shape. The gateway value itself is checked by
// the registry.
func (r *PaymentRequest) Validate() error {
	errs := ValidationErrors{}

	if r.Amount.LessThan(minAmount) || r.Amount.GreaterThan(maxAmount) {
		errs.add("amount", "must be between %s and %s", minAmount, maxAmount)
	}
	if len(r.Currency) != 3 {
		errs.add("currency", "must be a 3 character code")
	}
	if strings.TrimSpace(string(r.Gateway)) == "" {
		errs.add("gateway", "is required")
	}
	if len(r.Description) > 500 {
		errs.add("description", "must be at most 500 characters")
	}

	if r.Card == nil {
		errs.add("card", "is required")
	} else {
		c := r.Card
		if n := len(c.Number); n < 13 || n > 19 {
			errs.add("card.number", "must be between 13 and 19 characters")
		}
		if c.ExpiryMonth < 1 || c.ExpiryMonth > 12 {
			errs.add("card.expiryMonth", "must be between 1 and 12")
		}
		if c.ExpiryYear < 2024 || c.ExpiryYear > 2050 {
			errs.add("card.expiryYear", "must be between 2024 and 2050")
		}
		if n := len(c.CVC); n < 3 || n > 4 {
			errs.add("card.cvc", "must be 3 or 4 characters")
		}
		if strings.TrimSpace(c.HolderName) == "" {
			errs.add("card.holderName", "is required")
		} else if len(c.HolderName) > 100 {
			errs.add("card.holderName", "must be at most 100 characters")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Validate checks the optional refund fields
func (r *RefundRequest) Validate() error {
	errs := ValidationErrors{}

	if r.Amount != nil && (r.Amount.LessThan(minAmount) || r.Amount.GreaterThan(maxAmount)) {
		errs.add("amount", "must be between %s and %s", minAmount, maxAmount)
	}
	if len(r.Reason) > 500 {
		errs.add("reason", "must be at most 500 characters")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
