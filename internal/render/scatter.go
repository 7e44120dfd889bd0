package render

import (
	"fmt"
	"image"

	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/woozymasta/lidardsm/internal/colormap"
	"github.com/woozymasta/lidardsm/internal/geo"
	"github.com/woozymasta/lidardsm/internal/points"
)

// ScatterOptions controls the quick-look point map.
type ScatterOptions struct {
	Title    string
	Decimate int        // keep every Nth point; <= 1 keeps all
	Region   geo.Region // zero means the cloud extent
	Color    ColorRange // zero range means the data z range
	Width    int        // pixels
	Radius   float64    // glyph radius in points
}

// Scatter draws points coloured by elevation with a colorbar.
func Scatter(c points.Cloud, opts ScatterOptions) (image.Image, error) {
	if opts.Decimate > 1 {
		c = c.Decimate(opts.Decimate)
	}
	if c.Len() == 0 {
		return nil, fmt.Errorf("%w: no points to plot", ErrRender)
	}

	region := opts.Region
	if region.IsZero() {
		region, _ = c.Region()
	}
	if region.Width() <= 0 || region.Height() <= 0 {
		return nil, fmt.Errorf("%w: degenerate plot region %s", ErrRender, region)
	}

	lo, hi, _ := c.ZRange()
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	cm, err := opts.Color.resolve(lo, hi)
	if err != nil {
		return nil, err
	}

	xys := make(plotter.XYs, c.Len())
	for i, p := range c.Points {
		xys[i].X, xys[i].Y = p.X, p.Y
	}
	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	radius := opts.Radius
	if radius <= 0 {
		radius = 1
	}
	sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		return draw.GlyphStyle{
			Color:  colormap.Clamped(cm, c.Points[i].Z),
			Radius: vg.Points(radius),
			Shape:  draw.CircleGlyph{},
		}
	}

	p := newMapPlot(opts.Title, region)
	p.Add(sc)

	w, h := mapSize(opts.Width, region)
	return withColorBar(p, cm, w, h), nil
}
