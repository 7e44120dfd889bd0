package render

import (
	"fmt"
	"image"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/woozymasta/lidardsm/internal/geo"
)

const (
	dpi          = 96
	defaultWidth = 1200
	colorBarPx   = 110
	marginPx     = 90
)

func px(n int) vg.Length { return vg.Length(n) * vg.Inch / dpi }

// newMapPlot returns a plot with easting/northing axes fixed to r.
func newMapPlot(title string, r geo.Region) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Easting (m)"
	p.Y.Label.Text = "Northing (m)"
	p.X.Min, p.X.Max = r.West, r.East
	p.Y.Min, p.Y.Max = r.South, r.North
	p.X.Tick.Marker = plot.TickerFunc(plainTicks)
	p.Y.Tick.Marker = plot.TickerFunc(plainTicks)
	return p
}

// plainTicks avoids exponent labels on projected coordinates.
func plainTicks(lo, hi float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(lo, hi)
	for i := range ticks {
		if ticks[i].Label != "" {
			ticks[i].Label = fmt.Sprintf("%.0f", ticks[i].Value)
		}
	}
	return ticks
}

// mapSize picks a canvas height keeping one data unit equal on both axes.
func mapSize(width int, r geo.Region) (int, int) {
	if width <= 0 {
		width = defaultWidth
	}
	inner := width - colorBarPx - marginPx
	if inner < 1 {
		inner = 1
	}
	height := int(float64(inner)*r.Height()/r.Width()) + marginPx
	return width, max(height, 2*marginPx)
}

// withColorBar draws p beside a vertical colorbar for cm and returns the image.
func withColorBar(p *plot.Plot, cm palette.ColorMap, width, height int) image.Image {
	bar := plot.New()
	bar.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true})
	bar.HideX()
	bar.Y.Padding = 0
	bar.Y.Label.Text = ElevationLabel

	w, h := px(width), px(height)
	c := vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi))
	dc := draw.New(c)
	barW := px(colorBarPx)

	p.Draw(draw.Crop(dc, 0, -barW, 0, 0))
	// Align the bar with the data area below the title.
	bar.Draw(draw.Crop(dc, w-barW+vg.Points(6), 0, px(40), -px(30)))

	return c.Image()
}
