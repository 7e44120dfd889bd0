package render

import (
	"fmt"
	"image"
	"image/color"

	"gonum.org/v1/plot/plotter"

	"github.com/woozymasta/lidardsm/internal/colormap"
	"github.com/woozymasta/lidardsm/internal/geo"
	"github.com/woozymasta/lidardsm/internal/grid"
)

// MapOptions controls the 2D gridded elevation map.
type MapOptions struct {
	Title  string
	Region geo.Region // optional sub-region; zero means the whole grid
	Color  ColorRange
	Width  int
}

// Map draws the grid as a colour-shaded raster with an elevation colorbar.
// Values outside the colour range take the end colours; NaN nodes are transparent.
func Map(g *grid.Grid, opts MapOptions) (image.Image, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	if !opts.Region.IsZero() {
		sub, err := g.Crop(opts.Region)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRender, err)
		}
		g = sub
	}
	if g.NX < 2 || g.NY < 2 {
		return nil, fmt.Errorf("%w: grid %dx%d too small to map", ErrRender, g.NX, g.NY)
	}

	lo, hi, ok := g.Range()
	if !ok {
		return nil, fmt.Errorf("%w: grid holds no values", ErrRender)
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	cm, err := opts.Color.resolve(lo, hi)
	if err != nil {
		return nil, err
	}

	hm := plotter.NewHeatMap(grid.Plot{Grid: g}, cm.Palette(255))
	hm.Min, hm.Max = cm.Min(), cm.Max()
	hm.Underflow = colormap.Clamped(cm, cm.Min())
	hm.Overflow = colormap.Clamped(cm, cm.Max())
	hm.NaN = color.Transparent
	hm.Rasterized = true

	// Cells are centred on nodes, so the extent reaches half a cell past the outer nodes.
	half := g.Spacing / 2
	extent := geo.Region{
		West:  g.Region.West - half,
		East:  g.Region.East + half,
		South: g.Region.South - half,
		North: g.Region.North + half,
	}

	p := newMapPlot(opts.Title, extent)
	p.Add(hm)

	w, h := mapSize(opts.Width, extent)
	return withColorBar(p, cm, w, h), nil
}
