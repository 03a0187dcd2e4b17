// Package validation implements the validation consumer (spec §4.6, C6):
// per-source checks, duplicate detection by a recomputed business
// idempotency key, and the received→validated|rejected transition.
package validation

import "time"

// ACHFields carries the subset of an ACH payment's wire format this
// consumer validates (spec §4.6).
type ACHFields struct {
	RoutingNumber string `json:"routing_number"`
	TraceNumber   string `json:"trace_number"`
	SECCode       string `json:"sec_code"`
}

// WireFields carries wire-specific fields.
type WireFields struct {
	WireRef string `json:"wire_ref"`
}

// CheckFields carries check/lockbox-specific fields.
type CheckFields struct {
	CheckNumber  string    `json:"check_number"`
	PayerAccount string    `json:"payer_account"`
	IssueDate    time.Time `json:"issue_date"`
}

// PaymentReceived is the payload of a payment.<source>.received envelope
// (spec §4.6 input).
type PaymentReceived struct {
	PaymentID     string         `json:"payment_id"`
	LoanID        string         `json:"loan_id"`
	Source        string         `json:"source"`
	ExternalRef   string         `json:"external_ref"`
	AmountCents   int64          `json:"amount_cents"`
	Currency      string         `json:"currency"`
	ReceivedAt    time.Time      `json:"received_at"`
	EffectiveDate time.Time      `json:"effective_date"`
	Metadata      map[string]any `json:"metadata,omitempty"`

	ACH   *ACHFields   `json:"ach,omitempty"`
	Wire  *WireFields  `json:"wire,omitempty"`
	Check *CheckFields `json:"check,omitempty"`
}
