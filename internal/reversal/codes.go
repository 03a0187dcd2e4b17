// Package reversal implements the reversal saga (C10): a linear sequence of
// step events, each produced by the previous via the outbox, compensating a
// settled payment back out of the ledger, escrow, and investor
// distributions.
package reversal

// ACHDisposition is the outcome of mapping an ACH return code (spec §6.3,
// §4.10).
type ACHDisposition struct {
	Code         string
	Retryable    bool
	Reverse      bool
	PermanentBan bool
	Dispute      bool
}

var achRetryable = map[string]bool{"R01": true, "R09": true}
var achPermanentBan = map[string]bool{"R02": true, "R07": true, "R10": true, "R16": true}
var achDispute = map[string]bool{"R05": true, "R07": true, "R10": true, "R29": true}

// ClassifyACHReturn implements the fixed code table of spec §6.3: retryable
// codes schedule a retry instead of reversing; every other code reverses,
// additionally flagged for a ban and/or a dispute case where the table
// names it.
func ClassifyACHReturn(code string) ACHDisposition {
	if achRetryable[code] {
		return ACHDisposition{Code: code, Retryable: true}
	}

	return ACHDisposition{
		Code:         code,
		Reverse:      true,
		PermanentBan: achPermanentBan[code],
		Dispute:      achDispute[code],
	}
}

// WireAction is the disposition of a wire recall code (spec §6.3).
type WireAction string

const (
	WireActionHold    WireAction = "hold"
	WireActionReverse WireAction = "reverse"
)

var wireRecallActions = map[string]WireAction{
	"FRAUD":                  WireActionHold,
	"DUPLICATE":              WireActionReverse,
	"INCORRECT_BENEFICIARY":  WireActionReverse,
	"INCORRECT_AMOUNT":       WireActionHold,
	"CUSTOMER_REQUEST":       WireActionReverse,
}

// ClassifyWireRecall implements the wire recall table of spec §6.3.
// Unrecognized codes default to hold pending manual review.
func ClassifyWireRecall(code string) WireAction {
	if action, ok := wireRecallActions[code]; ok {
		return action
	}

	return WireActionHold
}
