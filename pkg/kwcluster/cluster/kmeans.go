package cluster

import (
	"math"
	"math/rand"
)

const (
	kmeansMaxIterations = 100
	kmeansTolerance     = 1e-4
)

// kmeansResult is one complete k-means partition.
type kmeansResult struct {
	Assignments []int
	Centroids   [][]float64
	Inertia     float64
}

// runKMeans clusters vectors into k groups using k-means++ seeding and
// Lloyd iterations. Deterministic for a given rng state.
func runKMeans(vectors [][]float64, k int, rng *rand.Rand) kmeansResult {
	n := len(vectors)
	centroids := seedCentroids(vectors, k, rng)
	assignments := make([]int, n)

	for iter := 0; iter < kmeansMaxIterations; iter++ {
		for i, v := range vectors {
			assignments[i] = nearestCentroid(v, centroids)
		}

		next := recomputeCentroids(vectors, assignments, k, rng)

		moved := 0.0
		for c := range centroids {
			moved += euclidean(centroids[c], next[c])
		}
		centroids = next
		if moved < kmeansTolerance {
			break
		}
	}

	for i, v := range vectors {
		assignments[i] = nearestCentroid(v, centroids)
	}

	inertia := 0.0
	for i, v := range vectors {
		d := euclidean(v, centroids[assignments[i]])
		inertia += d * d
	}

	return kmeansResult{Assignments: assignments, Centroids: centroids, Inertia: inertia}
}

// seedCentroids implements k-means++: the first centroid is uniform, each
// further centroid is drawn with probability proportional to the squared
// distance from the nearest chosen centroid.
func seedCentroids(vectors [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(vectors)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, copyVec(vectors[rng.Intn(n)]))

	dist2 := make([]float64, n)
	for len(centroids) < k {
		total := 0.0
		for i, v := range vectors {
			best := math.Inf(1)
			for _, c := range centroids {
				if d := euclidean(v, c); d < best {
					best = d
				}
			}
			dist2[i] = best * best
			total += dist2[i]
		}

		if total == 0 {
			// All remaining points coincide with a centroid; pick uniformly.
			centroids = append(centroids, copyVec(vectors[rng.Intn(n)]))
			continue
		}

		target := rng.Float64() * total
		acc := 0.0
		chosen := n - 1
		for i, d := range dist2 {
			acc += d
			if acc >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, copyVec(vectors[chosen]))
	}
	return centroids
}

func recomputeCentroids(vectors [][]float64, assignments []int, k int, rng *rand.Rand) [][]float64 {
	dim := len(vectors[0])
	next := make([][]float64, k)
	counts := make([]int, k)
	for c := range next {
		next[c] = make([]float64, dim)
	}
	for i, v := range vectors {
		c := assignments[i]
		counts[c]++
		for j, x := range v {
			next[c][j] += x
		}
	}
	for c := range next {
		if counts[c] == 0 {
			// Empty cluster: reseed from a random point so k is preserved.
			next[c] = copyVec(vectors[rng.Intn(len(vectors))])
			continue
		}
		for j := range next[c] {
			next[c][j] /= float64(counts[c])
		}
	}
	return next
}

func nearestCentroid(v []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		if d := euclidean(v, centroid); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

// silhouetteScore is the mean over points of (b−a)/max(a,b), where a is
// the mean intra-cluster distance and b the minimum mean distance to any
// other cluster. Points in singleton clusters contribute 0.
func silhouetteScore(vectors [][]float64, assignments []int, k int) float64 {
	n := len(vectors)
	if n == 0 || k < 2 {
		return 0
	}

	sizes := make([]int, k)
	for _, c := range assignments {
		sizes[c]++
	}

	total := 0.0
	sums := make([]float64, k)
	for i, v := range vectors {
		own := assignments[i]
		if sizes[own] <= 1 {
			continue
		}

		for c := range sums {
			sums[c] = 0
		}
		for j, w := range vectors {
			if j == i {
				continue
			}
			sums[assignments[j]] += euclidean(v, w)
		}

		a := sums[own] / float64(sizes[own]-1)
		b := math.Inf(1)
		for c := 0; c < k; c++ {
			if c == own || sizes[c] == 0 {
				continue
			}
			if m := sums[c] / float64(sizes[c]); m < b {
				b = m
			}
		}
		if math.IsInf(b, 1) {
			continue
		}
		if m := math.Max(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	return total / float64(n)
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func copyVec(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
