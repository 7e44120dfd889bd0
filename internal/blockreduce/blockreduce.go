// Package blockreduce thins a point cloud to at most one point per grid cell,
// keeping a chosen quantile of the elevations that fall in each cell.
package blockreduce

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/woozymasta/lidardsm/internal/geo"
	"github.com/woozymasta/lidardsm/internal/points"
)

// ErrReduction is returned for invalid reduction parameters.
var ErrReduction = errors.New("invalid block reduction")

// Options configures Reduce.
type Options struct {
	// Spacing is the cell size; cells are centred on gridline nodes of Region.
	Spacing float64
	Region  geo.Region
	// Quantile in [0, 1]; 0.5 is the median, 0.99 approximates the top surface.
	Quantile float64
}

// Validate checks the spacing, region and quantile.
func (o Options) Validate() error {
	if !(o.Spacing > 0) || math.IsInf(o.Spacing, 0) {
		return fmt.Errorf("%w: spacing %g must be positive", ErrReduction, o.Spacing)
	}
	if err := o.Region.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrReduction, err)
	}
	if !(o.Quantile >= 0 && o.Quantile <= 1) {
		return fmt.Errorf("%w: quantile %g outside [0, 1]", ErrReduction, o.Quantile)
	}
	return nil
}

// Point is the representative of one occupied cell, placed on the cell node.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Count int     `json:"n"`
}

// Reduce bins pts into cells of opts.Spacing over opts.Region and emits one
// point per occupied cell with Z set to the lower-rank quantile of the cell's
// elevations: sorted[floor(q*(n-1))]. Points outside the outer half-cell
// margin are dropped. Output is ordered by row, then column.
func Reduce(pts []points.Point, opts Options) ([]Point, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	r := opts.Region
	inc := opts.Spacing
	nx, ny := geo.Nodes(r, inc)

	cells := make(map[int][]float64)
	for _, p := range pts {
		col := int(math.Floor((p.X-r.West)/inc + 0.5))
		row := int(math.Floor((p.Y-r.South)/inc + 0.5))
		if col < 0 || col >= nx || row < 0 || row >= ny {
			continue
		}
		key := row*nx + col
		cells[key] = append(cells[key], p.Z)
	}

	keys := make([]int, 0, len(cells))
	for k := range cells {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]Point, 0, len(keys))
	for _, k := range keys {
		zs := cells[k]
		out = append(out, Point{
			X:     r.West + float64(k%nx)*inc,
			Y:     r.South + float64(k/nx)*inc,
			Z:     Quantile(zs, opts.Quantile),
			Count: len(zs),
		})
	}
	return out, nil
}

// Quantile returns the lower-rank q-quantile of v without modifying it.
// It returns NaN for an empty slice.
func Quantile(v []float64, q float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(v)
	slices.Sort(sorted)
	idx := int(math.Floor(q * float64(len(sorted)-1)))
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

// Columns splits reduced points into X, Y and Z slices.
func Columns(pts []Point) (xs, ys, zs []float64) {
	xs = make([]float64, len(pts))
	ys = make([]float64, len(pts))
	zs = make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
	}
	return xs, ys, zs
}
