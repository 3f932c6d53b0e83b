// Package segment groups stored companies into market segments by k-means
// clustering over their profile embeddings, with silhouette-scored automatic
// selection of the cluster count.
package segment

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"prospect/internal/core"
	"prospect/internal/docstore"
	"prospect/internal/logger"
)

// Config holds the clustering knobs.
type Config struct {
	MaxIterations int     // Iteration cap per k-means run
	MinK          int     // Smallest cluster count tried
	MaxK          int     // Largest cluster count tried
	MinSilhouette float64 // Below this the result is flagged as weak
}

// DefaultConfig returns the stock clustering configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 100,
		MinK:          2,
		MaxK:          8,
		MinSilhouette: 0.25,
	}
}

// Segment is one cluster of companies.
type Segment struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`       // Dominant industry, or a service keyword
	CompanyIDs []string `json:"company_ids"` // Members, insertion order
	Industries []string `json:"industries"`  // Industry labels by frequency
	Services   []string `json:"services"`    // Top service keywords by frequency
	Silhouette float64  `json:"silhouette"`  // Mean member silhouette score
}

// Result is a full segmentation of the stored companies.
type Result struct {
	Segments   []Segment `json:"segments"`
	K          int       `json:"k"`
	Silhouette float64   `json:"silhouette"` // Overall mean score
	Companies  int       `json:"companies"`  // Companies with embeddings
	Weak       bool      `json:"weak"`       // Overall score under the configured minimum
	ComputedAt time.Time `json:"computed_at"`
}

// Segmenter clusters the document store's companies.
type Segmenter struct {
	store *docstore.Store
	cfg   Config
	seed  int64
}

// Option customizes a Segmenter.
type Option func(*Segmenter)

// WithConfig replaces the clustering configuration.
func WithConfig(cfg Config) Option {
	return func(s *Segmenter) { s.cfg = cfg }
}

// WithSeed pins the k-means++ random source so runs are reproducible.
func WithSeed(seed int64) Option {
	return func(s *Segmenter) { s.seed = seed }
}

// New builds a Segmenter over the document store.
func New(store *docstore.Store, opts ...Option) *Segmenter {
	s := &Segmenter{
		store: store,
		cfg:   DefaultConfig(),
		seed:  time.Now().UnixNano(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Segment clusters every stored company that has an embedding. At least two
// such companies are required; with fewer than MinK the result is a single
// segment holding everything.
func (s *Segmenter) Segment(ctx context.Context) (*Result, error) {
	companies, err := s.store.ListCompanies()
	if err != nil {
		return nil, err
	}

	var members []*core.Company
	var vectors [][]float64
	for _, c := range companies {
		if len(c.Embedding) > 0 {
			members = append(members, c)
			vectors = append(vectors, c.Embedding)
		}
	}
	if len(members) < 2 {
		return nil, fmt.Errorf("segmentation needs at least 2 companies with embeddings, have %d", len(members))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	minK, maxK := s.cfg.MinK, s.cfg.MaxK
	if maxK > len(members) {
		maxK = len(members)
	}
	if minK > maxK {
		minK = maxK
	}

	distances := distanceMatrix(vectors)
	rng := rand.New(rand.NewSource(s.seed))

	bestK, bestScore := minK, -2.0
	var bestAssignments []int
	for k := minK; k <= maxK; k++ {
		assignments := s.runKMeans(vectors, k, rng)
		score := meanSilhouette(assignments, distances)
		logger.Debug("segmentation candidate", "k", k, "silhouette", score)
		if score > bestScore {
			bestK, bestScore = k, score
			bestAssignments = assignments
		}
	}

	result := &Result{
		K:          bestK,
		Silhouette: bestScore,
		Companies:  len(members),
		Weak:       bestScore < s.cfg.MinSilhouette,
		ComputedAt: time.Now().UTC(),
	}
	result.Segments = buildSegments(members, bestAssignments, bestK, distances)
	if result.Weak {
		logger.Warn("segment structure is weak", "silhouette", bestScore, "minimum", s.cfg.MinSilhouette)
	}
	return result, nil
}

// runKMeans executes one k-means run with k-means++ seeding and cosine
// distance, returning the final cluster assignment per vector.
func (s *Segmenter) runKMeans(vectors [][]float64, k int, rng *rand.Rand) []int {
	dim := len(vectors[0])
	centroids := seedCentroids(vectors, k, dim, rng)

	var assignments []int
	for iter := 0; iter < s.cfg.MaxIterations; iter++ {
		next := make([]int, len(vectors))
		for i, v := range vectors {
			next[i] = nearestCentroid(v, centroids)
		}

		if iter > 0 && equalAssignments(assignments, next) {
			return next
		}
		assignments = next
		centroids = recomputeCentroids(vectors, assignments, k, dim)
	}
	return assignments
}

// seedCentroids picks k starting centroids with k-means++ weighting: each
// subsequent centroid is drawn with probability proportional to its squared
// distance from the nearest one already chosen.
func seedCentroids(vectors [][]float64, k, dim int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, k)
	centroids[0] = append([]float64(nil), vectors[rng.Intn(len(vectors))]...)

	for i := 1; i < k; i++ {
		weights := make([]float64, len(vectors))
		var total float64
		for j, v := range vectors {
			min := math.Inf(1)
			for c := 0; c < i; c++ {
				if d := cosineDistance(v, centroids[c]); d < min {
					min = d
				}
			}
			weights[j] = min * min
			total += weights[j]
		}

		if total == 0 {
			centroids[i] = append([]float64(nil), vectors[rng.Intn(len(vectors))]...)
			continue
		}
		target := rng.Float64() * total
		var cumulative float64
		pick := 0
		for j, w := range weights {
			cumulative += w
			if cumulative >= target {
				pick = j
				break
			}
		}
		centroids[i] = append([]float64(nil), vectors[pick]...)
	}
	return centroids
}

func nearestCentroid(v []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centroids {
		if d := cosineDistance(v, c); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func recomputeCentroids(vectors [][]float64, assignments []int, k, dim int) [][]float64 {
	centroids := make([][]float64, k)
	counts := make([]int, k)
	for i := range centroids {
		centroids[i] = make([]float64, dim)
	}
	for i, v := range vectors {
		c := assignments[i]
		counts[c]++
		for j, x := range v {
			centroids[c][j] += x
		}
	}
	for i := range centroids {
		if counts[i] == 0 {
			continue
		}
		for j := range centroids[i] {
			centroids[i][j] /= float64(counts[i])
		}
	}
	return centroids
}

func equalAssignments(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// buildSegments turns assignments into labeled segments ordered by size.
func buildSegments(members []*core.Company, assignments []int, k int, distances [][]float64) []Segment {
	segments := make([]Segment, k)
	for i := range segments {
		segments[i] = Segment{ID: fmt.Sprintf("segment-%d", i)}
	}

	for i, c := range members {
		seg := &segments[assignments[i]]
		seg.CompanyIDs = append(seg.CompanyIDs, c.ID)
	}

	perCluster := clusterSilhouettes(assignments, distances)
	for i := range segments {
		segments[i].Silhouette = perCluster[i]
		segments[i].Industries = topIndustries(members, assignments, i)
		segments[i].Services = topServices(members, assignments, i)
		segments[i].Label = segmentLabel(segments[i])
	}

	// Empty clusters can fall out of k-means; drop them.
	kept := segments[:0]
	for _, seg := range segments {
		if len(seg.CompanyIDs) > 0 {
			kept = append(kept, seg)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return len(kept[i].CompanyIDs) > len(kept[j].CompanyIDs) })
	return kept
}

func segmentLabel(seg Segment) string {
	if len(seg.Industries) > 0 {
		if len(seg.Services) > 0 {
			return fmt.Sprintf("%s (%s)", seg.Industries[0], seg.Services[0])
		}
		return seg.Industries[0]
	}
	if len(seg.Services) > 0 {
		return seg.Services[0]
	}
	return "Unlabeled"
}

func topIndustries(members []*core.Company, assignments []int, cluster int) []string {
	counts := make(map[string]int)
	for i, c := range members {
		if assignments[i] != cluster || c.Industry == "" {
			continue
		}
		counts[strings.TrimSpace(c.Industry)]++
	}
	return topByCount(counts, 3)
}

func topServices(members []*core.Company, assignments []int, cluster int) []string {
	counts := make(map[string]int)
	for i, c := range members {
		if assignments[i] != cluster {
			continue
		}
		for _, svc := range c.KeyServices {
			svc = strings.ToLower(strings.TrimSpace(svc))
			if svc != "" {
				counts[svc]++
			}
		}
	}
	return topByCount(counts, 5)
}

func topByCount(counts map[string]int, limit int) []string {
	type entry struct {
		key   string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for k, v := range counts {
		entries = append(entries, entry{k, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.key
	}
	return out
}
