// Package colormap provides named elevation color maps implementing
// gonum/plot's palette.ColorMap.
package colormap

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// ErrColorMap is returned for unknown names or invalid value ranges.
var ErrColorMap = errors.New("invalid color map")

// Stop is a color anchored at a normalized position in [0, 1].
type Stop struct {
	Pos   float64
	Color color.NRGBA
}

// bukavu approximates the Crameri topo-bathymetry map: blues below the hinge,
// greens through tan to white above it.
var bukavu = []Stop{
	{0.000, color.NRGBA{25, 25, 76, 255}},
	{0.200, color.NRGBA{33, 82, 150, 255}},
	{0.400, color.NRGBA{72, 146, 196, 255}},
	{0.499, color.NRGBA{164, 214, 230, 255}},
	{0.500, color.NRGBA{23, 68, 33, 255}},
	{0.620, color.NRGBA{68, 112, 52, 255}},
	{0.750, color.NRGBA{137, 144, 84, 255}},
	{0.870, color.NRGBA{196, 176, 137, 255}},
	{1.000, color.NRGBA{250, 245, 240, 255}},
}

var viridis = []Stop{
	{0.00, color.NRGBA{68, 1, 84, 255}},
	{0.25, color.NRGBA{59, 82, 139, 255}},
	{0.50, color.NRGBA{33, 145, 140, 255}},
	{0.75, color.NRGBA{94, 201, 98, 255}},
	{1.00, color.NRGBA{253, 231, 37, 255}},
}

var gray = []Stop{
	{0, color.NRGBA{0, 0, 0, 255}},
	{1, color.NRGBA{255, 255, 255, 255}},
}

// Names lists the supported color map names.
func Names() []string {
	return []string{"bukavu", "viridis", "gray", "moreland", "blackbody"}
}

// Get returns the named color map spanning [lo, hi].
// Bukavu places its land/sea hinge at zero when zero lies inside the range.
func Get(name string, lo, hi float64) (palette.ColorMap, error) {
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) || lo >= hi {
		return nil, fmt.Errorf("%w: range [%g, %g] must satisfy min < max", ErrColorMap, lo, hi)
	}

	var cm palette.ColorMap
	switch strings.ToLower(name) {
	case "bukavu":
		cm = NewStops(bukavu, 0)
	case "viridis":
		cm = NewStops(viridis, math.NaN())
	case "gray", "grey":
		cm = NewStops(gray, math.NaN())
	case "moreland":
		cm = moreland.SmoothBlueRed()
	case "blackbody":
		cm = moreland.ExtendedBlackBody()
	default:
		return nil, fmt.Errorf("%w: unknown name %q (have %s)", ErrColorMap, name, strings.Join(Names(), ", "))
	}

	// Set max first so SetMin never sees min > max.
	cm.SetMax(hi)
	cm.SetMin(lo)
	return cm, nil
}

// Clamped returns the color for v with out-of-range values clamped to the ends.
// NaN maps to transparent.
func Clamped(cm palette.ColorMap, v float64) color.Color {
	if math.IsNaN(v) {
		return color.Transparent
	}
	v = math.Max(cm.Min(), math.Min(cm.Max(), v))
	c, err := cm.At(v)
	if err != nil {
		return color.Transparent
	}
	return c
}

// Stops is a piecewise linear color map.
type Stops struct {
	stops    []Stop
	hinge    float64
	min, max float64
	alpha    float64
}

// NewStops builds a color map from stops sorted by position. When hinge is
// not NaN and falls inside [min, max], values below it use the stops in
// [0, 0.5] and values above it the stops in [0.5, 1].
func NewStops(stops []Stop, hinge float64) *Stops {
	s := append([]Stop(nil), stops...)
	sort.Slice(s, func(i, j int) bool { return s[i].Pos < s[j].Pos })
	return &Stops{stops: s, hinge: hinge, min: 0, max: 1, alpha: 1}
}

// At implements palette.ColorMap.
func (s *Stops) At(v float64) (color.Color, error) {
	switch {
	case math.IsNaN(v):
		return nil, palette.ErrNaN
	case v < s.min:
		return nil, palette.ErrUnderflow
	case v > s.max:
		return nil, palette.ErrOverflow
	}
	return s.lookup(s.normalize(v)), nil
}

func (s *Stops) normalize(v float64) float64 {
	if !math.IsNaN(s.hinge) && s.hinge > s.min && s.hinge < s.max {
		if v <= s.hinge {
			return 0.5 * (v - s.min) / (s.hinge - s.min)
		}
		return 0.5 + 0.5*(v-s.hinge)/(s.max-s.hinge)
	}
	if s.max == s.min {
		return 0
	}
	return (v - s.min) / (s.max - s.min)
}

func (s *Stops) lookup(t float64) color.Color {
	st := s.stops
	if t <= st[0].Pos {
		return s.withAlpha(st[0].Color)
	}
	for i := 1; i < len(st); i++ {
		if t <= st[i].Pos {
			a, b := st[i-1], st[i]
			f := (t - a.Pos) / (b.Pos - a.Pos)
			return s.withAlpha(color.NRGBA{
				R: lerp(a.Color.R, b.Color.R, f),
				G: lerp(a.Color.G, b.Color.G, f),
				B: lerp(a.Color.B, b.Color.B, f),
				A: 255,
			})
		}
	}
	return s.withAlpha(st[len(st)-1].Color)
}

func (s *Stops) withAlpha(c color.NRGBA) color.NRGBA {
	c.A = uint8(math.Round(255 * s.alpha))
	return c
}

func lerp(a, b uint8, f float64) uint8 {
	return uint8(math.Round(float64(a) + f*(float64(b)-float64(a))))
}

// Max implements palette.ColorMap.
func (s *Stops) Max() float64 { return s.max }

// SetMax implements palette.ColorMap.
func (s *Stops) SetMax(v float64) { s.max = v }

// Min implements palette.ColorMap.
func (s *Stops) Min() float64 { return s.min }

// SetMin implements palette.ColorMap.
func (s *Stops) SetMin(v float64) { s.min = v }

// Alpha implements palette.ColorMap.
func (s *Stops) Alpha() float64 { return s.alpha }

// SetAlpha implements palette.ColorMap.
func (s *Stops) SetAlpha(a float64) {
	if a < 0 || a > 1 {
		panic("colormap: alpha out of range")
	}
	s.alpha = a
}

// Palette implements palette.ColorMap.
func (s *Stops) Palette(colors int) palette.Palette {
	out := make(colorList, colors)
	for i := range out {
		t := 0.0
		if colors > 1 {
			t = float64(i) / float64(colors-1)
		}
		out[i] = s.lookup(t)
	}
	return out
}

type colorList []color.Color

func (c colorList) Colors() []color.Color { return c }
