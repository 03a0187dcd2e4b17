package distribution_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cschwartz85032/loanserve-sub010/internal/distribution"
)

func sumAmounts(m map[string]int64) int64 {
	var total int64
	for _, v := range m {
		total += v
	}
	return total
}

func TestLargestRemainder_sumsExactlyToTotal(t *testing.T) {
	weights := []distribution.Weight{
		{Key: "inv-a", PctBps: 3334},
		{Key: "inv-b", PctBps: 3333},
		{Key: "inv-c", PctBps: 3333},
	}

	got := distribution.LargestRemainder(10001, weights)
	assert.Equal(t, int64(10001), sumAmounts(got))
}

func TestLargestRemainder_evenSplitNeedsNoRounding(t *testing.T) {
	weights := []distribution.Weight{
		{Key: "inv-a", PctBps: 5000},
		{Key: "inv-b", PctBps: 5000},
	}

	got := distribution.LargestRemainder(10000, weights)
	assert.Equal(t, int64(5000), got["inv-a"])
	assert.Equal(t, int64(5000), got["inv-b"])
}

func TestLargestRemainder_tieBrokenByInvestorIDAscending(t *testing.T) {
	// inv-a and inv-m tie for the largest remainder; only one shortfall
	// cent is available, so it must go to the lexicographically smaller
	// investor_id.
	weights := []distribution.Weight{
		{Key: "inv-m", PctBps: 4000},
		{Key: "inv-a", PctBps: 4000},
		{Key: "inv-z", PctBps: 2000},
	}

	got := distribution.LargestRemainder(1, weights)
	assert.Equal(t, int64(1), got["inv-a"])
	assert.Equal(t, int64(0), got["inv-m"])
	assert.Equal(t, int64(0), got["inv-z"])
}

func TestLargestRemainder_zeroTotalYieldsZeroForAll(t *testing.T) {
	weights := []distribution.Weight{{Key: "inv-a", PctBps: 10000}}
	got := distribution.LargestRemainder(0, weights)
	assert.Equal(t, int64(0), got["inv-a"])
}
