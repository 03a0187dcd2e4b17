// Package classifier implements policy selection from loan state and the
// publish to saga.payment.start (spec §4.7, C7).
package classifier

import "github.com/cschwartz85032/loanserve-sub010/internal/domain"

// statusFirstStatuses are the loan statuses that override days-past-due
// rather than falling beneath it: a loan under an active forbearance or
// modification agreement stays conservative no matter how far past due it
// ran before the agreement, per spec §9's resolved Open Question ("status
// wins for forbearance|modification, days-past-due otherwise").
var statusFirstStatuses = map[domain.LoanStatus]bool{
	domain.LoanStatusForbearance:  true,
	domain.LoanStatusModification: true,
}

// SelectPolicy implements the ordered policy-selection rules of spec §4.7.
// A nil loan (not found, or loan_id missing upstream) always yields
// conservative — the caller is responsible for opening the accompanying
// reconcile_variance exception case.
func SelectPolicy(loan *domain.Loan) domain.Policy {
	if loan == nil {
		return domain.PolicyConservative
	}

	if statusFirstStatuses[loan.Status] {
		return domain.PolicyConservative
	}

	switch {
	case loan.DaysPastDue > 180:
		return domain.PolicyChargedOff
	case loan.DaysPastDue > 90:
		return domain.PolicyDefault
	case loan.DaysPastDue > 0:
		return domain.PolicyDelinquent
	}

	switch loan.Status {
	case domain.LoanStatusActive, domain.LoanStatusCurrent:
		return domain.PolicyCurrent
	case domain.LoanStatusLate, domain.LoanStatusDelinquent:
		return domain.PolicyDelinquent
	case domain.LoanStatusDefault:
		return domain.PolicyDefault
	case domain.LoanStatusChargedOff, domain.LoanStatusForeclosure, domain.LoanStatusREO:
		return domain.PolicyChargedOff
	case domain.LoanStatusForbearance, domain.LoanStatusModification:
		return domain.PolicyConservative
	case domain.LoanStatusApplication, domain.LoanStatusUnderwriting, domain.LoanStatusApproved,
		domain.LoanStatusClosed, domain.LoanStatusPaidOff:
		return domain.PolicySuspense
	default:
		return domain.PolicyConservative
	}
}
