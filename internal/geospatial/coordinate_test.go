package geospatial

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/halcyon-data/mlprep/internal/frame"
	"github.com/halcyon-data/mlprep/internal/transform"
)

// testCoords builds four tight coordinate blobs around bay-area-ish centers.
func testCoords() *mat.Dense {
	centers := [][2]float64{
		{-122.27, 37.80},
		{-121.89, 37.34},
		{-122.42, 37.77},
		{-121.49, 38.58},
	}
	offsets := []float64{-0.02, -0.01, 0, 0.01, 0.02}
	var data []float64
	for _, c := range centers {
		for _, dx := range offsets {
			for _, dy := range []float64{-0.01, 0, 0.01} {
				data = append(data, c[0]+dx, c[1]+dy)
			}
		}
	}
	return mat.NewDense(len(data)/2, 2, data)
}

func newTestTransformer() *CoordinateTransformer {
	return NewCoordinateTransformer(WithKRange(2, 8), WithSeed(11))
}

func TestCoordinateTransformerDefaults(t *testing.T) {
	tr := NewCoordinateTransformer()
	assert.Equal(t, DefaultKMin, tr.kMin)
	assert.Equal(t, DefaultKMax, tr.kMax)
	assert.Zero(t, tr.OptimalK())
}

func TestCoordinateTransformerFit(t *testing.T) {
	tr := newTestTransformer()
	require.NoError(t, tr.Fit(testCoords()))

	scores := tr.DistortionScores()
	require.Len(t, scores, 7) // k = 2..8 inclusive
	assert.Equal(t, []int{2, 3, 4, 5, 6, 7, 8}, tr.KRange())

	// Distortion shrinks as k grows across the sweep.
	assert.Greater(t, scores[0], scores[len(scores)-1])

	k := tr.OptimalK()
	assert.GreaterOrEqual(t, k, 2)
	assert.LessOrEqual(t, k, 8)
}

func TestCoordinateTransformerTransform(t *testing.T) {
	X := testCoords()
	tr := newTestTransformer()
	require.NoError(t, tr.Fit(X))

	out, err := tr.Transform(X)
	require.NoError(t, err)

	n, _ := X.Dims()
	r, c := out.Dims()
	assert.Equal(t, n, r)
	assert.Equal(t, 1, c)

	labels := tr.Labels()
	require.Len(t, labels, n)
	for i, l := range labels {
		assert.GreaterOrEqual(t, l, 0)
		assert.Less(t, l, tr.OptimalK())
		assert.Equal(t, float64(l), out.At(i, 0))
	}
}

func TestCoordinateTransformerFitTransform(t *testing.T) {
	X := testCoords()
	out, err := newTestTransformer().FitTransform(X)
	require.NoError(t, err)
	n, _ := X.Dims()
	r, _ := out.Dims()
	assert.Equal(t, n, r)
}

func TestCoordinateTransformerErrors(t *testing.T) {
	X := testCoords()

	// Transform before Fit.
	fresh := newTestTransformer()
	_, err := fresh.Transform(X)
	var notFitted *transform.NotFittedError
	require.ErrorAs(t, err, &notFitted)
	assert.Equal(t, "CoordinateTransformer", notFitted.Estimator)

	// Missing values.
	withNaN := mat.NewDense(10, 2, nil)
	withNaN.Copy(X.Slice(0, 10, 0, 2))
	withNaN.Set(3, 1, math.NaN())
	assert.ErrorContains(t, newTestTransformer().Fit(withNaN), "input contains NaN")

	// Wrong width.
	assert.ErrorContains(t, newTestTransformer().Fit(mat.NewDense(20, 3, nil)), "want 2")

	// Too few samples for the k range.
	few := mat.DenseCopyOf(X.Slice(0, 5, 0, 2))
	assert.ErrorContains(t, newTestTransformer().Fit(few), "cannot support")

	// Plot and bounds before transform.
	assert.ErrorContains(t, fresh.SavePlot("nowhere.png"), "not transformed yet")
	_, err = fresh.Bounds()
	assert.ErrorContains(t, err, "not transformed yet")
}

func TestTransformFrame(t *testing.T) {
	X := testCoords()
	n, _ := X.Dims()

	lon := &frame.Column{Name: "longitude", Kind: frame.Float, Floats: make([]float64, n), Missing: make([]bool, n)}
	lat := &frame.Column{Name: "latitude", Kind: frame.Float, Floats: make([]float64, n), Missing: make([]bool, n)}
	price := &frame.Column{Name: "price", Kind: frame.Float, Floats: make([]float64, n), Missing: make([]bool, n)}
	for i := 0; i < n; i++ {
		lon.Floats[i] = X.At(i, 0)
		lat.Floats[i] = X.At(i, 1)
		price.Floats[i] = float64(i)
	}
	f, err := frame.New(lon, lat, price)
	require.NoError(t, err)

	tr := newTestTransformer()
	require.NoError(t, tr.Fit(X))

	out, err := tr.TransformFrame(f, "longitude", "latitude", "")
	require.NoError(t, err)

	// Coordinate columns are gone, the label column is present.
	assert.False(t, out.Has("longitude"))
	assert.False(t, out.Has("latitude"))
	assert.True(t, out.Has("cluster"))
	assert.Equal(t, []string{"price", "cluster"}, out.Names())
	assert.Equal(t, n, out.Len())
}

func TestBounds(t *testing.T) {
	X := testCoords()
	tr := newTestTransformer()
	_, err := tr.FitTransform(X)
	require.NoError(t, err)

	b, err := tr.Bounds()
	require.NoError(t, err)
	assert.InDelta(t, -122.44, b.Min(0), 1e-9)
	assert.InDelta(t, -121.47, b.Max(0), 1e-9)
	assert.InDelta(t, 37.33, b.Min(1), 1e-9)
	assert.InDelta(t, 38.59, b.Max(1), 1e-9)
}

func TestSavePlot(t *testing.T) {
	X := testCoords()
	tr := newTestTransformer()
	_, err := tr.FitTransform(X)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "clusters.png")
	require.NoError(t, tr.SavePlot(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestCoordinateTransformerJSONRoundTrip(t *testing.T) {
	X := testCoords()
	tr := newTestTransformer()
	require.NoError(t, tr.Fit(X))

	data, err := json.Marshal(tr)
	require.NoError(t, err)

	var restored CoordinateTransformer
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, tr.OptimalK(), restored.OptimalK())
	assert.Equal(t, tr.DistortionScores(), restored.DistortionScores())

	// The restored transformer can transform without refitting the sweep.
	out, err := restored.Transform(X)
	require.NoError(t, err)
	r, _ := out.Dims()
	n, _ := X.Dims()
	assert.Equal(t, n, r)
}
