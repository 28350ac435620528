// Package geospatial turns raw coordinate columns into cluster-label
// features that can stand in for longitude and latitude during training.
package geospatial

import (
	"runtime"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/halcyon-data/mlprep/internal/cluster"
	"github.com/halcyon-data/mlprep/internal/frame"
	"github.com/halcyon-data/mlprep/internal/transform"
)

// Default k search range, matching the usual spread for metro-scale
// coordinate data.
const (
	DefaultKMin = 4
	DefaultKMax = 12
)

// CoordinateTransformer replaces a (longitude, latitude) pair with a single
// column of k-means cluster labels. Fit sweeps a range of cluster counts,
// records the distortion score of each run, and picks the count at the elbow
// of the distortion curve.
type CoordinateTransformer struct {
	kMin        int
	kMax        int
	maxIter     int
	seed        uint64
	seeded      bool
	sensitivity float64

	// Learned by Fit.
	ks          []int
	distortions []float64
	optimalK    int
	kneeFound   bool
	fitted      bool

	// Populated by Transform.
	coords      *mat.Dense
	labels      []int
	km          *cluster.KMeans
	transformed bool
}

// CoordinateOption configures a CoordinateTransformer.
type CoordinateOption func(*CoordinateTransformer)

// WithKRange sets the inclusive range of cluster counts to sweep.
func WithKRange(lo, hi int) CoordinateOption {
	return func(t *CoordinateTransformer) {
		t.kMin, t.kMax = lo, hi
	}
}

// WithMaxIter caps the k-means iterations per run.
func WithMaxIter(n int) CoordinateOption {
	return func(t *CoordinateTransformer) { t.maxIter = n }
}

// WithSeed makes the sweep and the final fit deterministic.
func WithSeed(seed uint64) CoordinateOption {
	return func(t *CoordinateTransformer) {
		t.seed = seed
		t.seeded = true
	}
}

// WithSensitivity tunes the knee detector; larger values demand a sharper
// elbow.
func WithSensitivity(s float64) CoordinateOption {
	return func(t *CoordinateTransformer) { t.sensitivity = s }
}

// NewCoordinateTransformer creates a transformer with the given options.
func NewCoordinateTransformer(opts ...CoordinateOption) *CoordinateTransformer {
	t := &CoordinateTransformer{
		kMin:        DefaultKMin,
		kMax:        DefaultKMax,
		maxIter:     cluster.DefaultMaxIter,
		sensitivity: cluster.DefaultSensitivity,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DistortionScores returns the distortion of each k in the sweep, in order.
func (t *CoordinateTransformer) DistortionScores() []float64 {
	return append([]float64(nil), t.distortions...)
}

// KRange returns the swept cluster counts.
func (t *CoordinateTransformer) KRange() []int {
	return append([]int(nil), t.ks...)
}

// OptimalK returns the chosen cluster count. It is zero before Fit.
func (t *CoordinateTransformer) OptimalK() int { return t.optimalK }

// KneeFound reports whether the elbow search located a knee, as opposed to
// falling back to the middle of the range.
func (t *CoordinateTransformer) KneeFound() bool { return t.kneeFound }

// Fitted reports whether Fit has completed.
func (t *CoordinateTransformer) Fitted() bool { return t.fitted }

// Labels returns the cluster label of each coordinate from the most recent
// Transform.
func (t *CoordinateTransformer) Labels() []int {
	return append([]int(nil), t.labels...)
}

// Fit sweeps the k range on the coordinate matrix and selects the optimal
// cluster count. X must have exactly two columns: longitude and latitude.
func (t *CoordinateTransformer) Fit(X mat.Matrix) error {
	if err := transform.CheckMatrix(X, 2); err != nil {
		return err
	}
	if t.kMin <= 0 || t.kMax < t.kMin {
		return eris.Errorf("geospatial: invalid k range [%d, %d]", t.kMin, t.kMax)
	}
	n, _ := X.Dims()
	if n < t.kMax {
		return eris.Errorf("geospatial: %d samples cannot support k up to %d", n, t.kMax)
	}

	// Each k is seeded independently, so sweeping in parallel keeps the
	// results deterministic.
	t.ks = make([]int, 0, t.kMax-t.kMin+1)
	for k := t.kMin; k <= t.kMax; k++ {
		t.ks = append(t.ks, k)
	}
	t.distortions = make([]float64, len(t.ks))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, k := range t.ks {
		g.Go(func() error {
			km := cluster.NewKMeans(k, t.kmeansOptions(k)...)
			labels, err := km.FitPredict(X)
			if err != nil {
				return eris.Wrapf(err, "geospatial: k-means sweep at k=%d", k)
			}
			score, err := cluster.DistortionScore(X, labels, km.Centroids)
			if err != nil {
				return eris.Wrapf(err, "geospatial: distortion at k=%d", k)
			}
			t.distortions[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	xs := make([]float64, len(t.ks))
	for i, k := range t.ks {
		xs[i] = float64(k)
	}
	knee, ok, err := cluster.KneeLocator(xs, t.distortions, t.sensitivity)
	if err != nil {
		return eris.Wrap(err, "geospatial: locate knee")
	}
	t.kneeFound = ok
	if ok {
		t.optimalK = int(knee)
	} else {
		// No detectable elbow; the midpoint of the range is the least bad
		// default.
		t.optimalK = (t.kMin + t.kMax) / 2
	}
	t.fitted = true
	t.transformed = false
	return nil
}

// Transform clusters the coordinates with the optimal count and returns an
// (n x 1) matrix of cluster labels.
func (t *CoordinateTransformer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !t.fitted {
		return nil, &transform.NotFittedError{Estimator: "CoordinateTransformer"}
	}
	if err := transform.CheckMatrix(X, 2); err != nil {
		return nil, err
	}

	km := cluster.NewKMeans(t.optimalK, t.kmeansOptions(t.optimalK)...)
	labels, err := km.FitPredict(X)
	if err != nil {
		return nil, eris.Wrap(err, "geospatial: final k-means fit")
	}

	n, _ := X.Dims()
	t.coords = mat.DenseCopyOf(X)
	t.labels = labels
	t.km = km
	t.transformed = true

	out := mat.NewDense(n, 1, nil)
	for i, l := range labels {
		out.Set(i, 0, float64(l))
	}
	return out, nil
}

// FitTransform fits on X and transforms it in one call.
func (t *CoordinateTransformer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := t.Fit(X); err != nil {
		return nil, err
	}
	return t.Transform(X)
}

// TransformFrame applies the transformer to a frame: the label column is
// appended and the original coordinate columns are removed.
func (t *CoordinateTransformer) TransformFrame(f *frame.Frame, lonCol, latCol, labelCol string) (*frame.Frame, error) {
	if labelCol == "" {
		labelCol = "cluster"
	}
	X, err := f.Matrix(lonCol, latCol)
	if err != nil {
		return nil, err
	}
	labels, err := t.Transform(X)
	if err != nil {
		return nil, err
	}

	n := f.Len()
	c := &frame.Column{
		Name:    labelCol,
		Kind:    frame.Float,
		Floats:  make([]float64, n),
		Missing: make([]bool, n),
	}
	for i := 0; i < n; i++ {
		c.Floats[i] = labels.At(i, 0)
	}

	out, err := f.AppendColumn(c)
	if err != nil {
		return nil, err
	}
	return out.Drop(lonCol, latCol)
}

// Bounds returns the geographic bounding box of the most recently
// transformed coordinates.
func (t *CoordinateTransformer) Bounds() (*geom.Bounds, error) {
	if !t.transformed {
		return nil, eris.New("geospatial: this CoordinateTransformer instance is not transformed yet; call Transform with appropriate arguments before reading bounds")
	}
	n, _ := t.coords.Dims()
	flat := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		flat = append(flat, t.coords.At(i, 0), t.coords.At(i, 1))
	}
	b := geom.NewBounds(geom.XY)
	return b.Extend(geom.NewLineStringFlat(geom.XY, flat)), nil
}

// kmeansOptions derives per-run k-means options; seeding varies by k so the
// sweep runs stay independent but reproducible.
func (t *CoordinateTransformer) kmeansOptions(k int) []cluster.KMeansOption {
	opts := []cluster.KMeansOption{cluster.WithMaxIter(t.maxIter)}
	if t.seeded {
		opts = append(opts, cluster.WithSeed(t.seed+uint64(k)))
	}
	return opts
}

// MarshalJSON persists the fitted sweep so a run can be reloaded later.
func (t *CoordinateTransformer) MarshalJSON() ([]byte, error) {
	return marshalCoordinateParams(t)
}

// UnmarshalJSON restores a persisted transformer.
func (t *CoordinateTransformer) UnmarshalJSON(data []byte) error {
	return unmarshalCoordinateParams(t, data)
}
