package classifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cschwartz85032/loanserve-sub010/internal/classifier"
	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
)

func TestSelectPolicy_nilLoanIsConservative(t *testing.T) {
	assert.Equal(t, domain.PolicyConservative, classifier.SelectPolicy(nil))
}

func TestSelectPolicy_daysPastDueTakesPrecedenceOverStatus(t *testing.T) {
	assert.Equal(t, domain.PolicyChargedOff, classifier.SelectPolicy(&domain.Loan{Status: domain.LoanStatusCurrent, DaysPastDue: 181}))
	assert.Equal(t, domain.PolicyDefault, classifier.SelectPolicy(&domain.Loan{Status: domain.LoanStatusCurrent, DaysPastDue: 91}))
	assert.Equal(t, domain.PolicyDelinquent, classifier.SelectPolicy(&domain.Loan{Status: domain.LoanStatusCurrent, DaysPastDue: 1}))
}

func TestSelectPolicy_forbearanceWinsOverNoDaysPastDue(t *testing.T) {
	assert.Equal(t, domain.PolicyConservative, classifier.SelectPolicy(&domain.Loan{Status: domain.LoanStatusForbearance, DaysPastDue: 0}))
	assert.Equal(t, domain.PolicyConservative, classifier.SelectPolicy(&domain.Loan{Status: domain.LoanStatusModification, DaysPastDue: 0}))
}

func TestSelectPolicy_forbearanceWinsOverDaysPastDue(t *testing.T) {
	assert.Equal(t, domain.PolicyConservative, classifier.SelectPolicy(&domain.Loan{Status: domain.LoanStatusForbearance, DaysPastDue: 200}))
	assert.Equal(t, domain.PolicyConservative, classifier.SelectPolicy(&domain.Loan{Status: domain.LoanStatusModification, DaysPastDue: 200}))
}

func TestSelectPolicy_byStatusFallback(t *testing.T) {
	cases := map[domain.LoanStatus]domain.Policy{
		domain.LoanStatusActive:        domain.PolicyCurrent,
		domain.LoanStatusCurrent:       domain.PolicyCurrent,
		domain.LoanStatusLate:          domain.PolicyDelinquent,
		domain.LoanStatusDelinquent:    domain.PolicyDelinquent,
		domain.LoanStatusDefault:       domain.PolicyDefault,
		domain.LoanStatusChargedOff:    domain.PolicyChargedOff,
		domain.LoanStatusForeclosure:   domain.PolicyChargedOff,
		domain.LoanStatusREO:           domain.PolicyChargedOff,
		domain.LoanStatusApplication:   domain.PolicySuspense,
		domain.LoanStatusUnderwriting:  domain.PolicySuspense,
		domain.LoanStatusApproved:      domain.PolicySuspense,
		domain.LoanStatusClosed:        domain.PolicySuspense,
		domain.LoanStatusPaidOff:       domain.PolicySuspense,
	}

	for status, want := range cases {
		loan := &domain.Loan{Status: status}
		assert.Equal(t, want, classifier.SelectPolicy(loan), "status=%s", status)
	}
}

func TestSelectPolicy_unknownStatusIsConservative(t *testing.T) {
	assert.Equal(t, domain.PolicyConservative, classifier.SelectPolicy(&domain.Loan{Status: domain.LoanStatus("bogus")}))
}
