package domain

import "time"

// LoanStatus is the servicing status the classifier (C7) reads policy from
// (spec §4.7).
type LoanStatus string

const (
	LoanStatusApplication   LoanStatus = "application"
	LoanStatusUnderwriting  LoanStatus = "underwriting"
	LoanStatusApproved      LoanStatus = "approved"
	LoanStatusActive        LoanStatus = "active"
	LoanStatusCurrent       LoanStatus = "current"
	LoanStatusLate          LoanStatus = "late"
	LoanStatusDelinquent    LoanStatus = "delinquent"
	LoanStatusDefault       LoanStatus = "default"
	LoanStatusChargedOff    LoanStatus = "charged_off"
	LoanStatusForeclosure   LoanStatus = "foreclosure"
	LoanStatusREO           LoanStatus = "reo"
	LoanStatusForbearance   LoanStatus = "forbearance"
	LoanStatusModification  LoanStatus = "modification"
	LoanStatusClosed        LoanStatus = "closed"
	LoanStatusPaidOff       LoanStatus = "paid_off"
)

// Loan is the subset of loan state the payment pipeline reads (spec §4.6,
// §4.7, §4.8); the full servicing record lives outside this core.
type Loan struct {
	LoanID                string
	Status                LoanStatus
	DaysPastDue           int
	AcceptPartialPayments bool
	LateFeeBalance        int64
	AccruedInterest       int64
	PrincipalBalance      int64
	NextPaymentDate       time.Time
}
