// Package transform defines the estimator contract shared by the
// preprocessing transformers: fit once, transform many times.
package transform

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// Transformer is a fit/transform estimator over dense numeric matrices.
type Transformer interface {
	// Fit learns the parameters needed for transformation.
	Fit(X mat.Matrix) error

	// Transform applies the learned transformation to X.
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform fits on X and transforms it in one call.
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// NotFittedError is returned when Transform is called before Fit.
type NotFittedError struct {
	Estimator string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("this %s instance is not fitted yet; call Fit with appropriate arguments before using this estimator", e.Estimator)
}

// CheckMatrix validates transformer input: X must be non-nil, non-empty, and
// free of NaN and Inf values. wantCols > 0 additionally pins the number of
// feature columns.
func CheckMatrix(X mat.Matrix, wantCols int) error {
	if X == nil {
		return eris.New("transform: input matrix is nil")
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return eris.Errorf("transform: input matrix is empty (%dx%d)", r, c)
	}
	if wantCols > 0 && c != wantCols {
		return eris.Errorf("transform: input has %d feature columns, want %d", c, wantCols)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := X.At(i, j)
			if math.IsNaN(v) {
				return eris.New("transform: input contains NaN")
			}
			if math.IsInf(v, 0) {
				return eris.New("transform: input contains infinity")
			}
		}
	}
	return nil
}
