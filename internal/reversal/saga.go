package reversal

import "github.com/cschwartz85032/loanserve-sub010/internal/domain"

// Step names the saga's linear sequence (spec §4.10). Each step is emitted
// as `saga.reversal.<step>` and carries causation_id back to the previous
// step's message_id.
type Step string

const (
	StepMarkReturned   Step = "mark_returned"
	StepReverseLedger  Step = "reverse_ledger"
	StepReverseEscrow  Step = "reverse_escrow"
	StepClawback       Step = "clawback"
	StepRecomputeFees  Step = "recompute_fees"
	StepUpdateStatus   Step = "update_status"
	StepNotify         Step = "notify"
	StepFinalize       Step = "finalize"
)

// stepOrder is the fixed sequence; Next returns "" after the last step.
var stepOrder = []Step{
	StepMarkReturned,
	StepReverseLedger,
	StepReverseEscrow,
	StepClawback,
	StepRecomputeFees,
	StepUpdateStatus,
	StepNotify,
	StepFinalize,
}

// Next returns the step following s, or "" if s is the last step or
// unrecognized.
func Next(s Step) Step {
	for i, step := range stepOrder {
		if step == s && i+1 < len(stepOrder) {
			return stepOrder[i+1]
		}
	}

	return ""
}

// severityForStep implements spec §4.10: "severity derived from step
// (medium for notifications, high for ledger/escrow)".
func severityForStep(s Step) domain.ExceptionSeverity {
	switch s {
	case StepReverseLedger, StepReverseEscrow:
		return domain.SeverityHigh
	default:
		return domain.SeverityMedium
	}
}
