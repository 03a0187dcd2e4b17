package domain

import "time"

// Source is the channel a payment arrived through (spec §3).
type Source string

const (
	SourceACH        Source = "ach"
	SourceWire       Source = "wire"
	SourceCheck      Source = "check"
	SourceLockbox    Source = "lockbox"
	SourceCard       Source = "card"
	SourceCashier    Source = "cashier"
	SourceMoneyOrder Source = "money_order"
)

// PaymentState is a node of the payment FSM (spec §3).
type PaymentState string

const (
	PaymentReceived                  PaymentState = "received"
	PaymentValidated                 PaymentState = "validated"
	PaymentRejected                  PaymentState = "rejected"
	PaymentPostedPendingSettlement   PaymentState = "posted_pending_settlement"
	PaymentProcessing                PaymentState = "processing"
	PaymentSettled                   PaymentState = "settled"
	PaymentReturned                  PaymentState = "returned"
	PaymentReversed                  PaymentState = "reversed"
	PaymentClosed                    PaymentState = "closed"
)

// transitions enumerates every edge the FSM allows (spec §3). Anything not
// listed here is an OrderingError.
var transitions = map[PaymentState]map[PaymentState]bool{
	PaymentReceived:                {PaymentValidated: true, PaymentRejected: true},
	PaymentValidated:               {PaymentPostedPendingSettlement: true},
	PaymentPostedPendingSettlement: {PaymentProcessing: true},
	PaymentProcessing:              {PaymentSettled: true},
	PaymentSettled:                 {PaymentReturned: true},
	PaymentReturned:                {PaymentReversed: true},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge
// of the payment FSM.
func CanTransition(from, to PaymentState) bool {
	return transitions[from][to]
}

// IsTerminal reports whether a state has no outgoing edges other than the
// documented returned/reversed branch off settled.
func IsTerminal(s PaymentState) bool {
	switch s {
	case PaymentSettled, PaymentRejected, PaymentReversed, PaymentClosed:
		return true
	default:
		return false
	}
}

// Payment is the core aggregate (spec §3).
type Payment struct {
	PaymentID      string
	LoanID         string
	Source         Source
	ExternalRef    string
	AmountCents    int64
	Currency       string
	ReceivedAt     time.Time
	EffectiveDate  time.Time
	State          PaymentState
	IdempotencyKey string
	Metadata       map[string]any
}

// StateTransition is a row of payment_state_transitions (spec §3).
type StateTransition struct {
	PaymentID     string
	PreviousState PaymentState
	NewState      PaymentState
	OccurredAt    time.Time
	Actor         string
	Reason        string
}
