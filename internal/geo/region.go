// Package geo holds the planar geometry shared by the pipeline stages:
// bounding regions, grid spacing, coordinate reference systems and footprints.
package geo

import (
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"
)

// Region is a rectangular West/East/South/North extent in projected units.
type Region struct {
	West  float64 `json:"west"`
	East  float64 `json:"east"`
	South float64 `json:"south"`
	North float64 `json:"north"`
}

// Validate reports whether the region is well-formed (West <= East, South <= North).
func (r Region) Validate() error {
	for _, v := range []float64{r.West, r.East, r.South, r.North} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("region %s has non-finite bounds", r)
		}
	}
	if r.West > r.East {
		return fmt.Errorf("region west %g is greater than east %g", r.West, r.East)
	}
	if r.South > r.North {
		return fmt.Errorf("region south %g is greater than north %g", r.South, r.North)
	}
	return nil
}

// IsZero reports whether all four bounds are zero.
func (r Region) IsZero() bool {
	return r == Region{}
}

// Width returns East - West.
func (r Region) Width() float64 { return r.East - r.West }

// Height returns North - South.
func (r Region) Height() float64 { return r.North - r.South }

// Contains reports whether (x, y) lies inside the region, edges included.
func (r Region) Contains(x, y float64) bool {
	return x >= r.West && x <= r.East && y >= r.South && y <= r.North
}

// Snap rounds the region outward to multiples of inc.
// A non-positive inc returns the region unchanged.
func (r Region) Snap(inc float64) Region {
	if inc <= 0 {
		return r
	}
	return Region{
		West:  math.Floor(r.West/inc) * inc,
		East:  math.Ceil(r.East/inc) * inc,
		South: math.Floor(r.South/inc) * inc,
		North: math.Ceil(r.North/inc) * inc,
	}
}

// Intersect returns the overlap of two regions and whether it is non-empty.
func (r Region) Intersect(o Region) (Region, bool) {
	out := Region{
		West:  math.Max(r.West, o.West),
		East:  math.Min(r.East, o.East),
		South: math.Max(r.South, o.South),
		North: math.Min(r.North, o.North),
	}
	if out.West > out.East || out.South > out.North {
		return Region{}, false
	}
	return out, true
}

// Bound converts the region to an orb.Bound.
func (r Region) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{r.West, r.South},
		Max: orb.Point{r.East, r.North},
	}
}

// RegionFromBound converts an orb.Bound to a Region.
func RegionFromBound(b orb.Bound) Region {
	return Region{West: b.Min[0], East: b.Max[0], South: b.Min[1], North: b.Max[1]}
}

// Slice returns the bounds as [west, east, south, north].
func (r Region) Slice() []float64 {
	return []float64{r.West, r.East, r.South, r.North}
}

func (r Region) String() string {
	return formatFloat(r.West) + "/" + formatFloat(r.East) + "/" +
		formatFloat(r.South) + "/" + formatFloat(r.North)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// UnmarshalYAML accepts a [west, east, south, north] sequence or a mapping.
func (r *Region) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var v []float64
		if err := node.Decode(&v); err != nil {
			return err
		}
		if len(v) != 4 {
			return fmt.Errorf("line %d: region needs 4 values [west, east, south, north], got %d", node.Line, len(v))
		}
		*r = Region{West: v[0], East: v[1], South: v[2], North: v[3]}
		return nil
	}

	type plain Region
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = Region(p)
	return nil
}

// MarshalYAML writes the region as a [west, east, south, north] sequence.
func (r Region) MarshalYAML() (any, error) {
	return r.Slice(), nil
}
