package utils

import (
	"math"
	"sort"
)

// Round2 rounds x to cents, half away from zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// ProRata splits amount across weights in whole cents with the largest remainder
// method: every share is floored, then the leftover cents go to the largest
// fractional parts, later shares first on ties. Shares add up to Round2(amount)
// and a non-negative amount never yields a negative share. weights must sum to total > 0.
func ProRata(amount float64, weights []float64, total float64) []float64 {
	cents := int64(math.Round(amount * 100))
	floors := make([]int64, len(weights))
	rems := make([]float64, len(weights))
	var allocated int64
	for i, w := range weights {
		exact := float64(cents) * w / total
		floors[i] = int64(math.Floor(exact))
		rems[i] = exact - float64(floors[i])
		allocated += floors[i]
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if rems[order[a]] != rems[order[b]] {
			return rems[order[a]] > rems[order[b]]
		}
		return order[a] > order[b]
	})
	for k := 0; allocated < cents && len(order) > 0; k++ {
		floors[order[k%len(order)]]++
		allocated++
	}

	shares := make([]float64, len(weights))
	for i, c := range floors {
		shares[i] = float64(c) / 100
	}
	return shares
}
