package reversal

import (
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
)

// MirrorLedger writes a debit<->credit mirror of every original entry,
// linked back to the original payment (spec §4.10 step 2).
func MirrorLedger(original []domain.LedgerEntry) []domain.LedgerEntry {
	mirrors := make([]domain.LedgerEntry, len(original))

	for i, e := range original {
		mirrors[i] = domain.LedgerEntry{
			LoanID:        e.LoanID,
			PaymentID:     e.PaymentID,
			Account:       e.Account,
			DebitCents:    e.CreditCents,
			CreditCents:   e.DebitCents,
			EffectiveDate: e.EffectiveDate,
			ReversalOf:    e.PaymentID,
		}
	}

	return mirrors
}

// PrincipalRestored sums the principal_receivable debits in a mirrored set,
// i.e. how much principal balance the reversal restores to the loan.
func PrincipalRestored(mirrors []domain.LedgerEntry) int64 {
	var total int64
	for _, e := range mirrors {
		if e.Account == domain.AccountPrincipalReceivable {
			total += e.DebitCents
		}
	}
	return total
}

// AssessLateFee returns the flat late fee to charge when a scheduled
// payment has gone unpaid past the grace period (spec §4.10 step 5,
// LATE_FEE_GRACE_DAYS default 15, LATE_FEE_FLAT_CENTS default 5000). A zero
// nextPaymentDate means there is no schedule to assess against.
func AssessLateFee(nextPaymentDate, now time.Time, graceDays int, flatFeeCents int64) int64 {
	if nextPaymentDate.IsZero() {
		return 0
	}

	lateDays := int(now.Sub(nextPaymentDate).Hours() / 24)
	if lateDays > graceDays {
		return flatFeeCents
	}

	return 0
}

// delinquencyThresholdDays is the days-past-due boundary between "late"
// and "delinquent" loan status (spec §4.10 step 6), set to double the
// late-fee grace period — a loan that's gone twice as long unpaid as the
// grace window tolerates is reported delinquent, not merely late.
const delinquencyThresholdDays = 2 * lateFeeGraceDays

// DeriveLoanStatus picks current, late, or delinquent from the recomputed
// next_payment_date (spec §4.10 step 6: "derive from next_payment_date,
// current | late | delinquent"). A loan within the late-fee grace period
// stays current; past grace it's late; past delinquencyThresholdDays it's
// delinquent.
func DeriveLoanStatus(nextPaymentDate, now time.Time) domain.LoanStatus {
	if nextPaymentDate.IsZero() || !now.After(nextPaymentDate) {
		return domain.LoanStatusCurrent
	}

	daysPastDue := int(now.Sub(nextPaymentDate).Hours() / 24)

	switch {
	case daysPastDue > delinquencyThresholdDays:
		return domain.LoanStatusDelinquent
	case daysPastDue > lateFeeGraceDays:
		return domain.LoanStatusLate
	default:
		return domain.LoanStatusCurrent
	}
}
