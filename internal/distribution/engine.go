// Package distribution implements the investor-distribution step of the
// pipeline (C9): pro-rata split of a posted payment's interest and
// principal across effective investor positions, with largest-remainder
// rounding for both the investor split and the servicing-fee split.
package distribution

import (
	"sort"
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
)

// DefaultServicingBps is SERVICING_BPS (spec §6.6).
const DefaultServicingBps = 25

// Calculate computes the per-investor distribution rows for one posted
// payment (spec §4.9). positions must already be the effective set as of
// effectiveDate and their PctBps must sum to 10000.
func Calculate(paymentID string, effectiveDate time.Time, interestCents, principalCents int64, positions []domain.InvestorPosition, servicingBps int64) []domain.Distribution {
	if servicingBps <= 0 {
		servicingBps = DefaultServicingBps
	}

	distributable := interestCents + principalCents
	servicingFeeTotal := interestCents * servicingBps / 10000
	distributableAfterFee := distributable - servicingFeeTotal

	weights := make([]Weight, len(positions))
	for i, p := range positions {
		weights[i] = Weight{Key: p.InvestorID, PctBps: p.PctBps}
	}

	amounts := LargestRemainder(distributableAfterFee, weights)
	fees := LargestRemainder(servicingFeeTotal, weights)

	ids := make([]string, len(positions))
	for i, p := range positions {
		ids[i] = p.InvestorID
	}
	sort.Strings(ids)

	rows := make([]domain.Distribution, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, domain.Distribution{
			PaymentID:         paymentID,
			InvestorID:        id,
			AmountCents:       amounts[id],
			ServicingFeeCents: fees[id],
			EffectiveDate:     effectiveDate,
			Status:            domain.DistributionCalculated,
		})
	}

	return rows
}

// Clawback builds the negative mirror rows for a reversed payment's
// distributions, linked by a shared clawback_id (spec §4.9, §4.10).
func Clawback(posted []domain.Distribution, clawbackID string) []domain.Distribution {
	rows := make([]domain.Distribution, len(posted))
	for i, d := range posted {
		rows[i] = domain.Distribution{
			PaymentID:         d.PaymentID,
			InvestorID:        d.InvestorID,
			AmountCents:       -d.AmountCents,
			ServicingFeeCents: -d.ServicingFeeCents,
			Tranche:           d.Tranche,
			EffectiveDate:     d.EffectiveDate,
			Status:            domain.DistributionClawbackPending,
			ClawbackID:        clawbackID,
		}
	}

	return rows
}
