package reversal

import "testing"

func TestSeverityForStep_ledgerAndEscrowAreHigh(t *testing.T) {
	for _, s := range []Step{StepReverseLedger, StepReverseEscrow} {
		if got := severityForStep(s); got != "high" {
			t.Errorf("severityForStep(%s) = %q, want high", s, got)
		}
	}
}

func TestSeverityForStep_othersAreMedium(t *testing.T) {
	for _, s := range []Step{StepMarkReturned, StepClawback, StepRecomputeFees, StepUpdateStatus, StepNotify, StepFinalize} {
		if got := severityForStep(s); got != "medium" {
			t.Errorf("severityForStep(%s) = %q, want medium", s, got)
		}
	}
}
