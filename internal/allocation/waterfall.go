// Package allocation implements the waterfall posting step of the pipeline
// (C8): per-loan advisory locking, rule resolution, and double-entry ledger
// writes for the validated → posted_pending_settlement transition.
package allocation

import (
	"sort"
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
)

// Result is the outcome of running the waterfall against one payment.
type Result struct {
	Entries        []domain.LedgerEntry
	UnappliedCents int64
}

// escrowTargets is the restricted walk order for escrow-only remittances
// (spec §4.8).
var escrowTargets = map[domain.AllocationTarget]bool{
	domain.TargetEscrowShortage: true,
	domain.TargetCurrentEscrow:  true,
}

// Allocate walks rules in priority order, taking min(remaining,
// target_balance(rule)) cents per enabled rule and appending a debit-cash /
// credit-target ledger pair. Any tail is credited to unapplied_funds (spec
// §4.8). Rules are assumed pre-resolved (loan-specific preferred over
// DEFAULT) and are sorted here by ascending Priority.
func Allocate(loanID, paymentID string, effectiveDate time.Time, amountCents int64, escrowOnly bool, rules []domain.AllocationRule, balances domain.LoanBalances) Result {
	ordered := make([]domain.AllocationRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	remaining := amountCents
	var entries []domain.LedgerEntry

	for _, rule := range ordered {
		if remaining <= 0 {
			break
		}

		if !rule.Enabled {
			continue
		}

		if escrowOnly && !escrowTargets[rule.Target] {
			continue
		}

		target := balances.BalanceFor(rule.Target)
		if target <= 0 {
			continue
		}

		take := remaining
		if target < take {
			take = target
		}

		entries = append(entries, pair(loanID, paymentID, rule.Target, take, effectiveDate)...)
		remaining -= take
	}

	if remaining > 0 {
		entries = append(entries, pair(loanID, paymentID, domain.TargetUnappliedFunds, remaining, effectiveDate)...)
	}

	return Result{Entries: entries, UnappliedCents: remaining}
}

// DirectPost routes the entire payment to a single account, bypassing the
// waterfall. Used by policies that carry a DirectAccount instead of a
// Waterfall (charged_off → recovery, suspense/conservative → suspense).
func DirectPost(loanID, paymentID string, account domain.Account, amountCents int64, effectiveDate time.Time) Result {
	return Result{Entries: []domain.LedgerEntry{
		{LoanID: loanID, PaymentID: paymentID, Account: domain.AccountCash, DebitCents: amountCents, EffectiveDate: effectiveDate},
		{LoanID: loanID, PaymentID: paymentID, Account: account, CreditCents: amountCents, EffectiveDate: effectiveDate},
	}}
}

func pair(loanID, paymentID string, target domain.AllocationTarget, cents int64, effectiveDate time.Time) []domain.LedgerEntry {
	return []domain.LedgerEntry{
		{LoanID: loanID, PaymentID: paymentID, Account: domain.AccountCash, DebitCents: cents, EffectiveDate: effectiveDate},
		{LoanID: loanID, PaymentID: paymentID, Account: domain.AccountFor(target), CreditCents: cents, EffectiveDate: effectiveDate},
	}
}

// ResolveRules prefers loan-specific rules over the DEFAULT set (spec
// §4.8: "load rules preferring loan-specific over DEFAULT").
func ResolveRules(loanSpecific, defaults []domain.AllocationRule) []domain.AllocationRule {
	if len(loanSpecific) > 0 {
		return loanSpecific
	}

	return defaults
}

// WaterfallToRules turns a policy's frozen waterfall into priority-ordered
// DEFAULT rules, used when no allocation_rules override exists for the loan.
func WaterfallToRules(waterfall []domain.AllocationTarget) []domain.AllocationRule {
	rules := make([]domain.AllocationRule, len(waterfall))
	for i, target := range waterfall {
		rules[i] = domain.AllocationRule{Priority: i, Target: target, Enabled: true}
	}

	return rules
}
