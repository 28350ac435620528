package geospatial

import (
	"fmt"
	"image/color"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SavePlot writes a scatter plot of the transformed coordinates, with marker
// colors denoting cluster membership, to path (PNG, SVG, or PDF by
// extension). Transform must have run first.
func (t *CoordinateTransformer) SavePlot(path string) error {
	if !t.transformed {
		return eris.New("geospatial: this CoordinateTransformer instance is not transformed yet; call Transform with appropriate arguments before plotting")
	}

	p := plot.New()
	p.Title.Text = "K-Means Clustered Map"
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"

	// Group points by cluster so each gets a color and a legend entry.
	byCluster := make(map[int]plotter.XYs)
	for i, label := range t.labels {
		byCluster[label] = append(byCluster[label], plotter.XY{
			X: t.coords.At(i, 0),
			Y: t.coords.At(i, 1),
		})
	}

	colors := clusterColors(t.optimalK)
	for k := 0; k < t.optimalK; k++ {
		pts, ok := byCluster[k]
		if !ok {
			continue
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return eris.Wrapf(err, "geospatial: scatter for cluster %d", k)
		}
		s.GlyphStyle.Color = colors[k]
		s.GlyphStyle.Radius = vg.Points(2)
		p.Add(s)
		p.Legend.Add(fmt.Sprintf("cluster %d", k), s)
	}

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return eris.Wrapf(err, "geospatial: save plot %s", path)
	}
	return nil
}

// clusterColors spreads n distinct hues around the color wheel.
func clusterColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	out := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.65, 0.5)
		out[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return out
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
