// Package points holds the in-memory point record table and the pure
// transformations applied to it before gridding.
package points

import (
	"slices"

	"github.com/woozymasta/lidardsm/internal/geo"

	"gonum.org/v1/gonum/floats"
)

// ASPRS LAS 1.4 classification codes (Table 17) referenced by the pipeline.
const (
	ClassUnclassified uint8 = 1
	ClassGround       uint8 = 2
	ClassLowNoise     uint8 = 7
	ClassWater        uint8 = 9
	ClassHighNoise    uint8 = 18
)

// Point is a single LiDAR return in projected coordinates.
type Point struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Z              float64 `json:"z"`
	Classification uint8   `json:"classification"`
}

// Cloud is an ordered collection of points sharing one CRS.
// Methods never modify the receiver; they return new clouds.
type Cloud struct {
	Points []Point
	CRS    geo.CRS
}

// Len returns the number of points.
func (c Cloud) Len() int { return len(c.Points) }

// Exclude returns a new cloud without the points whose classification is in codes.
func (c Cloud) Exclude(codes ...uint8) Cloud {
	out := Cloud{CRS: c.CRS, Points: make([]Point, 0, len(c.Points))}
	for _, p := range c.Points {
		if !slices.Contains(codes, p.Classification) {
			out.Points = append(out.Points, p)
		}
	}
	return out
}

// CountClass returns how many points carry one of the given classification codes.
func (c Cloud) CountClass(codes ...uint8) int {
	n := 0
	for _, p := range c.Points {
		if slices.Contains(codes, p.Classification) {
			n++
		}
	}
	return n
}

// Classes returns the number of points per classification code.
func (c Cloud) Classes() map[uint8]int {
	counts := make(map[uint8]int)
	for _, p := range c.Points {
		counts[p.Classification]++
	}
	return counts
}

// Decimate keeps every n-th point starting with the first. n <= 1 copies the cloud.
func (c Cloud) Decimate(n int) Cloud {
	if n <= 1 {
		return Cloud{CRS: c.CRS, Points: slices.Clone(c.Points)}
	}
	out := Cloud{CRS: c.CRS, Points: make([]Point, 0, len(c.Points)/n+1)}
	for i := 0; i < len(c.Points); i += n {
		out.Points = append(out.Points, c.Points[i])
	}
	return out
}

// Concat returns a new cloud with the points of other appended.
// The receiver CRS wins unless it is unknown.
func (c Cloud) Concat(other Cloud) Cloud {
	crs := c.CRS
	if crs.IsZero() {
		crs = other.CRS
	}
	pts := make([]Point, 0, len(c.Points)+len(other.Points))
	pts = append(pts, c.Points...)
	pts = append(pts, other.Points...)
	return Cloud{CRS: crs, Points: pts}
}

// Region returns the min/max extents of X and Y. ok is false for an empty cloud.
func (c Cloud) Region() (geo.Region, bool) {
	if len(c.Points) == 0 {
		return geo.Region{}, false
	}
	xs, ys, _ := c.Columns()
	return geo.Region{
		West:  floats.Min(xs),
		East:  floats.Max(xs),
		South: floats.Min(ys),
		North: floats.Max(ys),
	}, true
}

// ZRange returns the minimum and maximum elevation. ok is false for an empty cloud.
func (c Cloud) ZRange() (lo, hi float64, ok bool) {
	if len(c.Points) == 0 {
		return 0, 0, false
	}
	_, _, zs := c.Columns()
	return floats.Min(zs), floats.Max(zs), true
}

// Columns splits the cloud into X, Y and Z slices.
func (c Cloud) Columns() (xs, ys, zs []float64) {
	xs = make([]float64, len(c.Points))
	ys = make([]float64, len(c.Points))
	zs = make([]float64, len(c.Points))
	for i, p := range c.Points {
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
	}
	return xs, ys, zs
}
