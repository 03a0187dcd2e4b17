package validation

import (
	"fmt"
	"regexp"
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	loanerrors "github.com/cschwartz85032/loanserve-sub010/internal/errors"
)

var achRoutingNumber = regexp.MustCompile(`^\d{9}$`)

var achSECCodes = map[string]bool{
	"PPD": true, "CCD": true, "WEB": true, "TEL": true,
}

// ACHReturnWindowDays maps SEC code to the ACH return window length (spec
// §4.6): 2 days for PPD/CCD, 60 for WEB/TEL, 5 otherwise.
func ACHReturnWindowDays(secCode string) int {
	switch secCode {
	case "PPD", "CCD":
		return 2
	case "WEB", "TEL":
		return 60
	default:
		return 5
	}
}

// maxCardAmountCents is the card source's hard ceiling (spec §4.6).
const maxCardAmountCents = 1_000_000

// checkMaxAgeDays bounds how old a check's issue_date may be (spec §4.6:
// "within [now-180d, now]").
const checkMaxAgeDays = 180

// IdempotencyKey computes the business-meaningful dedup key for a received
// payment, recomputed per source from its own fields (spec §4.6 step 1),
// independent of whatever idempotency_key the ingress adapter attached.
func IdempotencyKey(p PaymentReceived) (string, error) {
	switch p.Source {
	case "ach":
		if p.ACH == nil {
			return "", loanerrors.ValidationError{Field: "ach", Reason: "missing", Message: "ach payment missing ach fields"}
		}

		return fmt.Sprintf("ach:%s:%s:%d", p.ACH.TraceNumber, p.EffectiveDate.Format("2006-01-02"), p.AmountCents), nil
	case "wire":
		if p.Wire == nil {
			return "", loanerrors.ValidationError{Field: "wire", Reason: "missing", Message: "wire payment missing wire fields"}
		}

		return fmt.Sprintf("wire:%s", p.Wire.WireRef), nil
	case "check", "lockbox":
		if p.Check == nil {
			return "", loanerrors.ValidationError{Field: "check", Reason: "missing", Message: "check payment missing check fields"}
		}

		return fmt.Sprintf("%s:%s:%s:%d", p.Source, p.Check.CheckNumber, p.Check.PayerAccount, p.AmountCents), nil
	case "card", "cashier", "money_order":
		return fmt.Sprintf("%s:%s", p.Source, p.ExternalRef), nil
	default:
		return "", loanerrors.ValidationError{Field: "source", Reason: "unknown", Message: "unknown payment source " + p.Source}
	}
}

// CheckLoanEligible enforces the loan-state preconditions common to every
// source (spec §4.6 step 3).
func CheckLoanEligible(loan *domain.Loan, p PaymentReceived) error {
	if loan == nil {
		return loanerrors.BusinessRejectionError{Reason: "loan_not_found", Message: "loan " + p.LoanID + " does not exist"}
	}

	if loan.Status == domain.LoanStatusPaidOff || loan.Status == domain.LoanStatusChargedOff {
		return loanerrors.BusinessRejectionError{
			Reason:  "loan_not_payable",
			Message: fmt.Sprintf("loan %s is %s", loan.LoanID, loan.Status),
		}
	}

	if !loan.AcceptPartialPayments && p.AmountCents < loan.PrincipalBalance+loan.AccruedInterest+loan.LateFeeBalance {
		return loanerrors.BusinessRejectionError{
			Reason:  "partial_payment_not_accepted",
			Message: "loan does not accept partial payments and amount is short of full payoff",
		}
	}

	return nil
}

// ValidateSource runs the source-specific checks (spec §4.6 step 4).
func ValidateSource(p PaymentReceived, now time.Time) error {
	switch p.Source {
	case "ach":
		return validateACH(p)
	case "wire":
		return validateWire(p)
	case "check", "lockbox":
		return validateCheck(p, now)
	case "card":
		return validateCard(p)
	case "cashier", "money_order":
		return nil
	default:
		return loanerrors.ValidationError{Field: "source", Reason: "unknown", Message: "unknown payment source " + p.Source}
	}
}

func validateACH(p PaymentReceived) error {
	if p.ACH == nil {
		return loanerrors.ValidationError{Field: "ach", Reason: "missing", Message: "ach payment missing ach fields"}
	}

	if !achRoutingNumber.MatchString(p.ACH.RoutingNumber) {
		return loanerrors.BusinessRejectionError{Reason: "invalid_routing_number", Message: "ach routing number must be 9 digits"}
	}

	if !achSECCodes[p.ACH.SECCode] {
		return loanerrors.BusinessRejectionError{Reason: "invalid_sec_code", Message: "unsupported ach sec code " + p.ACH.SECCode}
	}

	return nil
}

func validateWire(p PaymentReceived) error {
	if p.Wire == nil || p.Wire.WireRef == "" {
		return loanerrors.BusinessRejectionError{Reason: "missing_wire_ref", Message: "wire payment requires a non-empty wire_ref"}
	}

	return nil
}

func validateCheck(p PaymentReceived, now time.Time) error {
	if p.Check == nil {
		return loanerrors.ValidationError{Field: "check", Reason: "missing", Message: "check payment missing check fields"}
	}

	earliest := now.AddDate(0, 0, -checkMaxAgeDays)

	if p.Check.IssueDate.Before(earliest) || p.Check.IssueDate.After(now) {
		return loanerrors.BusinessRejectionError{
			Reason:  "check_issue_date_out_of_range",
			Message: "check issue_date must fall within the last 180 days",
		}
	}

	return nil
}

func validateCard(p PaymentReceived) error {
	if p.AmountCents > maxCardAmountCents {
		return loanerrors.BusinessRejectionError{
			Reason:  "card_amount_exceeds_limit",
			Message: fmt.Sprintf("card payment of %d cents exceeds the %d cent limit", p.AmountCents, maxCardAmountCents),
		}
	}

	return nil
}
