package segment

import "math"

// silhouette computes the score for one point: 1 means well placed in its
// cluster, 0 on a boundary, -1 probably misassigned.
func silhouette(point int, assignments []int, distances [][]float64) float64 {
	own := assignments[point]
	a := meanIntra(point, own, assignments, distances)
	b := minInter(point, own, assignments, distances)
	switch {
	case a < b:
		return 1 - a/b
	case a > b:
		return b/a - 1
	default:
		return 0
	}
}

// meanIntra is the mean distance from point to the rest of its own cluster.
func meanIntra(point, cluster int, assignments []int, distances [][]float64) float64 {
	var sum float64
	var n int
	for i, label := range assignments {
		if i == point || label != cluster {
			continue
		}
		sum += distances[point][i]
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// minInter is the smallest mean distance from point to any other cluster.
func minInter(point, cluster int, assignments []int, distances [][]float64) float64 {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for i, label := range assignments {
		if label == cluster {
			continue
		}
		sums[label] += distances[point][i]
		counts[label]++
	}
	if len(counts) == 0 {
		return 1
	}
	min := math.Inf(1)
	for label, n := range counts {
		if mean := sums[label] / float64(n); mean < min {
			min = mean
		}
	}
	return min
}

// meanSilhouette averages the score over all points.
func meanSilhouette(assignments []int, distances [][]float64) float64 {
	if len(assignments) == 0 {
		return 0
	}
	var total float64
	for i := range assignments {
		total += silhouette(i, assignments, distances)
	}
	return total / float64(len(assignments))
}

// clusterSilhouettes averages per cluster.
func clusterSilhouettes(assignments []int, distances [][]float64) map[int]float64 {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for i, label := range assignments {
		sums[label] += silhouette(i, assignments, distances)
		counts[label]++
	}
	means := make(map[int]float64, len(counts))
	for label, n := range counts {
		means[label] = sums[label] / float64(n)
	}
	return means
}

// distanceMatrix precomputes pairwise cosine distances.
func distanceMatrix(vectors [][]float64) [][]float64 {
	n := len(vectors)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := cosineDistance(vectors[i], vectors[j])
			m[i][j], m[j][i] = d, d
		}
	}
	return m
}

// cosineDistance is 1 minus cosine similarity; incompatible or zero vectors
// are maximally distant.
func cosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(magA)*math.Sqrt(magB))
}
