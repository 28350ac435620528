package geospatial

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// PointsFromShapefile reads point geometries from a shapefile into an
// (n x 2) coordinate matrix of (longitude, latitude). Non-point shapes are
// skipped with a debug log rather than failing the load.
func PointsFromShapefile(path string) (*mat.Dense, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geospatial: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	var coords []float64
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		switch s := shape.(type) {
		case *shp.Point:
			coords = append(coords, s.X, s.Y)
		case *shp.PointZ:
			coords = append(coords, s.X, s.Y)
		case *shp.PointM:
			coords = append(coords, s.X, s.Y)
		default:
			skipped++
		}
	}
	if skipped > 0 {
		zap.L().Debug("geospatial: skipped non-point shapes",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	if len(coords) == 0 {
		return nil, eris.Errorf("geospatial: shapefile %s contains no point geometries", path)
	}
	return mat.NewDense(len(coords)/2, 2, coords), nil
}
