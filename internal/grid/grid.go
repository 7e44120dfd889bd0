// Package grid defines the regular elevation grid produced by interpolation.
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/woozymasta/lidardsm/internal/geo"
)

// ErrShape is returned when values do not match the grid dimensions.
var ErrShape = errors.New("grid shape mismatch")

// Grid is a gridline-registered elevation lattice. Node (c, r) sits at
// (West + c*Spacing, South + r*Spacing); Values is row-major with row 0 south.
type Grid struct {
	NX, NY  int
	Spacing float64
	Region  geo.Region
	CRS     geo.CRS
	NoData  float64
	Values  []float64
}

// New allocates a grid covering region at spacing, filled with NaN.
func New(region geo.Region, spacing float64, crs geo.CRS) (*Grid, error) {
	if !(spacing > 0) {
		return nil, fmt.Errorf("%w: spacing %g must be positive", ErrShape, spacing)
	}
	if err := region.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShape, err)
	}

	nx, ny := geo.Nodes(region, spacing)
	g := &Grid{
		NX:      nx,
		NY:      ny,
		Spacing: spacing,
		Region:  region,
		CRS:     crs,
		NoData:  math.NaN(),
		Values:  make([]float64, nx*ny),
	}
	for i := range g.Values {
		g.Values[i] = math.NaN()
	}
	return g, nil
}

// Validate checks the value count matches NX*NY and the spacing is positive.
func (g *Grid) Validate() error {
	if g == nil || g.NX <= 0 || g.NY <= 0 {
		return fmt.Errorf("%w: empty grid", ErrShape)
	}
	if len(g.Values) != g.NX*g.NY {
		return fmt.Errorf("%w: %d values for %dx%d nodes", ErrShape, len(g.Values), g.NX, g.NY)
	}
	if !(g.Spacing > 0) {
		return fmt.Errorf("%w: spacing %g must be positive", ErrShape, g.Spacing)
	}
	return nil
}

// Index returns the offset of node (c, r) in Values.
func (g *Grid) Index(c, r int) int { return r*g.NX + c }

// At returns the value of node (c, r).
func (g *Grid) At(c, r int) float64 { return g.Values[r*g.NX+c] }

// Set stores v at node (c, r).
func (g *Grid) Set(c, r int, v float64) { g.Values[r*g.NX+c] = v }

// X returns the easting of column c.
func (g *Grid) X(c int) float64 { return g.Region.West + float64(c)*g.Spacing }

// Y returns the northing of row r.
func (g *Grid) Y(r int) float64 { return g.Region.South + float64(r)*g.Spacing }

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	out := *g
	out.Values = append([]float64(nil), g.Values...)
	return &out
}

// Range returns the minimum and maximum of the non-NaN values.
func (g *Grid) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range g.Values {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		ok = true
	}
	return lo, hi, ok
}

// Missing returns the number of NaN nodes.
func (g *Grid) Missing() int {
	n := 0
	for _, v := range g.Values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Crop returns the sub-grid of nodes inside r.
func (g *Grid) Crop(r geo.Region) (*Grid, error) {
	in, ok := g.Region.Intersect(r)
	if !ok {
		return nil, fmt.Errorf("%w: region %s does not overlap grid %s", ErrShape, r, g.Region)
	}

	c0 := int(math.Ceil((in.West-g.Region.West)/g.Spacing - 1e-9))
	c1 := int(math.Floor((in.East-g.Region.West)/g.Spacing + 1e-9))
	r0 := int(math.Ceil((in.South-g.Region.South)/g.Spacing - 1e-9))
	r1 := int(math.Floor((in.North-g.Region.South)/g.Spacing + 1e-9))
	if c1 < c0 || r1 < r0 {
		return nil, fmt.Errorf("%w: region %s holds no grid nodes", ErrShape, r)
	}

	out := &Grid{
		NX:      c1 - c0 + 1,
		NY:      r1 - r0 + 1,
		Spacing: g.Spacing,
		CRS:     g.CRS,
		NoData:  g.NoData,
	}
	out.Region = geo.Region{West: g.X(c0), East: g.X(c1), South: g.Y(r0), North: g.Y(r1)}
	out.Values = make([]float64, 0, out.NX*out.NY)
	for row := r0; row <= r1; row++ {
		out.Values = append(out.Values, g.Values[g.Index(c0, row):g.Index(c1, row)+1]...)
	}
	return out, nil
}

// Plot adapts the grid to gonum/plot's GridXYZ interface.
type Plot struct{ *Grid }

// Dims implements plotter.GridXYZ.
func (p Plot) Dims() (c, r int) { return p.NX, p.NY }

// Z implements plotter.GridXYZ.
func (p Plot) Z(c, r int) float64 { return p.At(c, r) }

// X implements plotter.GridXYZ.
func (p Plot) X(c int) float64 { return p.Grid.X(c) }

// Y implements plotter.GridXYZ.
func (p Plot) Y(r int) float64 { return p.Grid.Y(r) }
