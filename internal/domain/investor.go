package domain

import "time"

// InvestorPosition is a row of investor_positions (spec §3).
type InvestorPosition struct {
	LoanID        string
	InvestorID    string
	PctBps        int64
	EffectiveFrom time.Time
}

// DistributionStatus is the lifecycle of a Distribution row (spec §3).
type DistributionStatus string

const (
	DistributionCalculated     DistributionStatus = "calculated"
	DistributionPosted         DistributionStatus = "posted"
	DistributionClawbackPending DistributionStatus = "clawback_pending"
)

// Distribution is a row of payment_distributions (spec §3).
type Distribution struct {
	PaymentID        string
	InvestorID       string
	AmountCents      int64
	ServicingFeeCents int64
	Tranche          string
	EffectiveDate    time.Time
	Status           DistributionStatus
	ClawbackID       string
}
