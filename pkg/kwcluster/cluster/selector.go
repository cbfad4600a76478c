package cluster

import (
	"math"
	"math/rand"
)

// maxEvalK caps the number of candidate cluster counts evaluated during
// selection; the business minimum applied afterwards may exceed it.
const maxEvalK = 50

// earlyStopSilhouette aborts the candidate scan once quality degrades
// this far, provided enough candidates were tried.
const earlyStopSilhouette = 0.1

// Selection is the outcome of the k-selection scan.
type Selection struct {
	K          int
	Silhouette float64
	Inertia    float64
	Evaluated  int
}

// minK is max(2, floor(sqrt(n/100))).
func minK(n int) int {
	k := int(math.Floor(math.Sqrt(float64(n) / 100)))
	if k < 2 {
		k = 2
	}
	return k
}

// evalMaxK grows the candidate ceiling with corpus size, capped at
// maxEvalK for evaluation cost.
func evalMaxK(n int) int {
	var k int
	switch {
	case n <= 100:
		k = 10
	case n <= 500:
		k = 20
	case n <= 2000:
		k = 30
	case n <= 10000:
		k = 40
	default:
		k = maxEvalK
	}
	if k > maxEvalK {
		k = maxEvalK
	}
	if k > n {
		k = n
	}
	return k
}

// businessMinK is the content-strategy floor applied when n > 500:
// tiered 8/15/25 clusters, or n/100, whichever is larger.
func businessMinK(n int) int {
	if n <= 500 {
		return 0
	}
	tier := 8
	switch {
	case n > 5000:
		tier = 25
	case n > 2000:
		tier = 15
	}
	if m := n / 100; m > tier {
		tier = m
	}
	return tier
}

// selectK scans candidate cluster counts, scoring each by a blend of
// silhouette quality and elbow improvement plus granularity bonuses, and
// returns the best k raised to the business minimum for large corpora.
func selectK(vectors [][]float64, rng *rand.Rand) Selection {
	n := len(vectors)
	lo := minK(n)
	hi := evalMaxK(n)

	// Huge corpora can push the floor past the evaluation cap; skip the
	// scan and go straight to the floor.
	if lo > hi {
		k := lo
		if bm := businessMinK(n); bm > k {
			k = bm
		}
		if k > n {
			k = n
		}
		return Selection{K: k}
	}

	best := Selection{K: lo}
	bestScore := math.Inf(-1)
	prevInertia := 0.0
	evaluated := 0

	for k := lo; k <= hi; k++ {
		res := runKMeans(vectors, k, rng)
		sil := silhouetteScore(vectors, res.Assignments, k)
		evaluated++

		elbow := 0.0
		if prevInertia > 0 {
			elbow = (prevInertia - res.Inertia) / prevInertia
		}
		prevInertia = res.Inertia

		score := 0.5*sil + 0.3*elbow + balanceBonus(k, n) + granularityBonus(k, n)
		if score > bestScore {
			bestScore = score
			best = Selection{K: k, Silhouette: sil, Inertia: res.Inertia, Evaluated: evaluated}
		}

		if sil < earlyStopSilhouette && k >= lo+5 && k*100 >= n {
			break
		}
	}
	best.Evaluated = evaluated

	if bm := businessMinK(n); bm > best.K {
		best.K = bm
	}
	if best.K > n {
		best.K = n
	}
	return best
}

// balanceBonus rewards cluster counts that keep average cluster size in a
// workable range for content planning.
func balanceBonus(k, n int) float64 {
	if k*100 >= n {
		return 0.1
	}
	return 0
}

// granularityBonus rewards finer partitions on large corpora.
func granularityBonus(k, n int) float64 {
	if k*50 >= n && k >= 5 {
		return 0.1
	}
	return 0
}
