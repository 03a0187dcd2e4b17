package distribution

import "sort"

// Weight is one investor's share of a pool being split (spec §4.9).
type Weight struct {
	Key    string
	PctBps int64
}

// LargestRemainder splits total cents across weights whose PctBps must sum
// to 10000, using floor division with the shortfall cents handed to the
// largest remainders first (spec §4.9, §8 "largest-remainder rounding").
// Ties are broken by ascending Key for determinism.
func LargestRemainder(total int64, weights []Weight) map[string]int64 {
	amounts := make(map[string]int64, len(weights))
	remainders := make(map[string]int64, len(weights))

	var floorSum int64
	for _, w := range weights {
		product := total * w.PctBps
		amounts[w.Key] = product / 10000
		remainders[w.Key] = product % 10000
		floorSum += amounts[w.Key]
	}

	shortfall := total - floorSum
	if shortfall <= 0 {
		return amounts
	}

	ordered := make([]Weight, len(weights))
	copy(ordered, weights)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := remainders[ordered[i].Key], remainders[ordered[j].Key]
		if ri != rj {
			return ri > rj
		}
		return ordered[i].Key < ordered[j].Key
	})

	for i := int64(0); i < shortfall; i++ {
		amounts[ordered[i].Key]++
	}

	return amounts
}
