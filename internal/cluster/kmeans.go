// Package cluster implements k-means clustering and the elbow heuristics
// used to pick a cluster count automatically.
package cluster

import (
	"math"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// DefaultMaxIter bounds Lloyd's algorithm when no limit is configured.
const DefaultMaxIter = 300

// KMeans partitions samples into K clusters using Lloyd's algorithm with
// k-means++ initialization. The assignment step runs across GOMAXPROCS
// workers.
type KMeans struct {
	K       int
	MaxIter int

	rng *rand.Rand

	// Learned state, populated by Fit.
	Centroids [][]float64
	Inertia   float64
	fitted    bool
}

// KMeansOption configures a KMeans model.
type KMeansOption func(*KMeans)

// WithMaxIter overrides the iteration cap.
func WithMaxIter(n int) KMeansOption {
	return func(m *KMeans) {
		if n > 0 {
			m.MaxIter = n
		}
	}
}

// WithSeed makes initialization deterministic.
func WithSeed(seed uint64) KMeansOption {
	return func(m *KMeans) {
		m.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// NewKMeans creates a KMeans model for k clusters.
func NewKMeans(k int, opts ...KMeansOption) *KMeans {
	m := &KMeans{
		K:       k,
		MaxIter: DefaultMaxIter,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Fit learns K centroids from X.
func (m *KMeans) Fit(X mat.Matrix) error {
	rows := matrixRows(X)
	n := len(rows)
	if n == 0 {
		return eris.New("cluster: input data is empty")
	}
	if m.K <= 0 {
		return eris.Errorf("cluster: k must be positive, got %d", m.K)
	}
	if n < m.K {
		return eris.Errorf("cluster: %d samples is fewer than k=%d", n, m.K)
	}

	p := len(rows[0])
	m.initCentroids(rows)

	assign := make([]int, n)
	for it := 0; it < m.MaxIter; it++ {
		changed := m.assignParallel(rows, assign)

		// Update step: new centroid is the mean of its assigned points.
		sums := make([][]float64, m.K)
		counts := make([]int, m.K)
		for k := range sums {
			sums[k] = make([]float64, p)
		}
		for i, row := range rows {
			k := assign[i]
			counts[k]++
			for j, v := range row {
				sums[k][j] += v
			}
		}
		for k := 0; k < m.K; k++ {
			if counts[k] == 0 {
				continue // empty cluster keeps its centroid
			}
			for j := 0; j < p; j++ {
				m.Centroids[k][j] = sums[k][j] / float64(counts[k])
			}
		}

		if !changed {
			break
		}
	}

	// Final pass for inertia against the converged centroids.
	m.Inertia = 0
	for i, row := range rows {
		m.Inertia += euclidSquared(row, m.Centroids[assign[i]])
	}
	m.fitted = true
	return nil
}

// Predict assigns each sample in X to its nearest centroid.
func (m *KMeans) Predict(X mat.Matrix) ([]int, error) {
	if !m.fitted {
		return nil, eris.New("cluster: model is not fitted")
	}
	rows := matrixRows(X)
	if len(rows) == 0 {
		return nil, eris.New("cluster: input data is empty")
	}
	if len(rows[0]) != len(m.Centroids[0]) {
		return nil, eris.Errorf("cluster: input has %d features, centroids have %d", len(rows[0]), len(m.Centroids[0]))
	}
	assign := make([]int, len(rows))
	m.assignParallel(rows, assign)
	return assign, nil
}

// FitPredict fits the model and returns the training assignments.
func (m *KMeans) FitPredict(X mat.Matrix) ([]int, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Predict(X)
}

// assignParallel writes the nearest-centroid index for every row into assign
// and reports whether any assignment changed.
func (m *KMeans) assignParallel(rows [][]float64, assign []int) bool {
	n := len(rows)
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	per := (n + workers - 1) / workers

	var changed atomic.Bool
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * per
		end := min(start+per, n)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				best, bestDist := 0, math.MaxFloat64
				for k, c := range m.Centroids {
					if d := euclidSquared(rows[i], c); d < bestDist {
						best, bestDist = k, d
					}
				}
				if assign[i] != best {
					changed.Store(true)
				}
				assign[i] = best
			}
		}(start, end)
	}
	wg.Wait()
	return changed.Load()
}

// initCentroids seeds centroids with k-means++: the first centroid is drawn
// uniformly, each further centroid with probability proportional to its
// squared distance from the nearest existing centroid.
func (m *KMeans) initCentroids(rows [][]float64) {
	n := len(rows)
	m.Centroids = make([][]float64, m.K)
	m.Centroids[0] = append([]float64(nil), rows[m.rng.IntN(n)]...)

	for k := 1; k < m.K; k++ {
		distSq := make([]float64, n)
		total := 0.0
		for i, row := range rows {
			minDist := math.MaxFloat64
			for _, c := range m.Centroids[:k] {
				if d := euclidSquared(row, c); d < minDist {
					minDist = d
				}
			}
			distSq[i] = minDist
			total += minDist
		}

		if total == 0 {
			// All remaining points coincide with existing centroids.
			m.Centroids[k] = append([]float64(nil), rows[m.rng.IntN(n)]...)
			continue
		}

		r := m.rng.Float64() * total
		cumulative := 0.0
		picked := n - 1
		for i, d := range distSq {
			cumulative += d
			if cumulative >= r {
				picked = i
				break
			}
		}
		m.Centroids[k] = append([]float64(nil), rows[picked]...)
	}
}

// DistortionScore is the mean squared distance from each sample to its
// assigned centroid, the metric minimized by k-means.
func DistortionScore(X mat.Matrix, labels []int, centroids [][]float64) (float64, error) {
	rows := matrixRows(X)
	if len(rows) != len(labels) {
		return 0, eris.Errorf("cluster: %d samples but %d labels", len(rows), len(labels))
	}
	if len(rows) == 0 {
		return 0, eris.New("cluster: input data is empty")
	}
	var total float64
	for i, row := range rows {
		k := labels[i]
		if k < 0 || k >= len(centroids) {
			return 0, eris.Errorf("cluster: label %d out of range", k)
		}
		total += euclidSquared(row, centroids[k])
	}
	return total / float64(len(rows)), nil
}

func euclidSquared(a, b []float64) float64 {
	var d float64
	for j := range a {
		diff := a[j] - b[j]
		d += diff * diff
	}
	return d
}

func matrixRows(X mat.Matrix) [][]float64 {
	if X == nil {
		return nil
	}
	n, p := X.Dims()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, p)
		for j := 0; j < p; j++ {
			row[j] = X.At(i, j)
		}
		rows[i] = row
	}
	return rows
}
