package main

import (
	"errors"
)

// PaymentStatus is the lifecycle state of a transaction
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "Pending"
	StatusProcessing PaymentStatus = "Processing"
	StatusApproved   PaymentStatus = "Approved"
	StatusDeclined   PaymentStatus = "Declined"
	StatusFailed     PaymentStatus = "Failed"
	StatusRefunded   PaymentStatus = "Refunded"
	StatusCancelled  PaymentStatus = "Cancelled"
)

var ErrInvalidStateChange = errors.New("invalid state change request")

// PENDING -> PROCESSING,APPROVED,DECLINED,FAILED
// PROCESSING -> APPROVED,DECLINED,FAILED
// APPROVED -> REFUNDED
//
// Processing only exists while the simulated latency elapses, records are
// written already resolved.
var transitions = map[PaymentStatus][]PaymentStatus{
	StatusPending:    {StatusProcessing, StatusApproved, StatusDeclined, StatusFailed},
	StatusProcessing: {StatusApproved, StatusDeclined, StatusFailed},
	StatusApproved:   {StatusRefunded},
}

// CanTransitionTo reports whether next is reachable from s in one step
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsResolved reports whether s is a status a payment attempt can be stored with
func (s PaymentStatus) IsResolved() bool {
	return s == StatusApproved || s == StatusDeclined || s == StatusFailed
}

func (s PaymentStatus) String() string {
	return string(s)
}
