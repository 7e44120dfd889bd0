package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SpacingMode selects how a Spacing is reconciled with a Region.
type SpacingMode int

const (
	// SpacingFit keeps the region and shrinks the increment so the region
	// divides into whole intervals.
	SpacingFit SpacingMode = iota
	// SpacingExact (suffix "+e") keeps the increment and moves East/North
	// so the region divides into whole intervals.
	SpacingExact
	// SpacingNodes (suffix "+n") treats the value as a node count per axis.
	SpacingNodes
)

// ErrSpacing is returned for malformed or non-positive spacing values.
var ErrSpacing = errors.New("invalid spacing")

// relative tolerance when deciding whether a region is already an exact multiple.
const fitEpsilon = 1e-9

// Spacing is a grid increment in the "1", "1+e", "500+n" notation.
type Spacing struct {
	Value float64
	Mode  SpacingMode
}

// ParseSpacing parses a spacing string such as "1+e".
func ParseSpacing(s string) (Spacing, error) {
	raw := strings.TrimSpace(s)
	mode := SpacingFit
	switch {
	case strings.HasSuffix(raw, "+e"):
		mode = SpacingExact
		raw = strings.TrimSuffix(raw, "+e")
	case strings.HasSuffix(raw, "+n"):
		mode = SpacingNodes
		raw = strings.TrimSuffix(raw, "+n")
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Spacing{}, fmt.Errorf("%w: %q: %v", ErrSpacing, s, err)
	}
	sp := Spacing{Value: v, Mode: mode}
	if err := sp.Validate(); err != nil {
		return Spacing{}, err
	}
	return sp, nil
}

// MustParseSpacing is ParseSpacing that panics on error, for constants.
func MustParseSpacing(s string) Spacing {
	sp, err := ParseSpacing(s)
	if err != nil {
		panic(err)
	}
	return sp
}

// Validate checks the value is positive and finite, and a whole count >= 2 for node mode.
func (s Spacing) Validate() error {
	if !(s.Value > 0) || math.IsInf(s.Value, 0) {
		return fmt.Errorf("%w: %g must be positive", ErrSpacing, s.Value)
	}
	if s.Mode == SpacingNodes && (s.Value < 2 || s.Value != math.Trunc(s.Value)) {
		return fmt.Errorf("%w: node count %g must be a whole number >= 2", ErrSpacing, s.Value)
	}
	return nil
}

// Resolve returns the grid increment and the (possibly adjusted) region
// with which a gridline-registered lattice covers r.
func (s Spacing) Resolve(r Region) (float64, Region, error) {
	if err := s.Validate(); err != nil {
		return 0, Region{}, err
	}
	if err := r.Validate(); err != nil {
		return 0, Region{}, err
	}

	switch s.Mode {
	case SpacingNodes:
		span := math.Max(r.Width(), r.Height())
		if span == 0 {
			return 0, Region{}, fmt.Errorf("%w: cannot divide an empty region into %g nodes", ErrSpacing, s.Value)
		}
		inc := span / (s.Value - 1)
		return inc, fitRegion(inc, r), nil
	case SpacingExact:
		return s.Value, fitRegion(s.Value, r), nil
	default:
		inc := s.Value
		if span := math.Max(r.Width(), r.Height()); span > 0 {
			n := math.Max(1, math.Round(span/inc))
			inc = span / n
		}
		return inc, fitRegion(inc, r), nil
	}
}

// fitRegion moves East and North outward so both extents are whole multiples of inc.
func fitRegion(inc float64, r Region) Region {
	out := r
	out.East = r.West + intervals(r.Width(), inc)*inc
	out.North = r.South + intervals(r.Height(), inc)*inc
	return out
}

func intervals(span, inc float64) float64 {
	n := span / inc
	if math.Abs(n-math.Round(n)) <= fitEpsilon*math.Max(1, n) {
		return math.Round(n)
	}
	return math.Ceil(n)
}

// Nodes returns the node counts of a gridline-registered lattice over r at inc.
func Nodes(r Region, inc float64) (nx, ny int) {
	nx = int(math.Round(r.Width()/inc)) + 1
	ny = int(math.Round(r.Height()/inc)) + 1
	return nx, ny
}

func (s Spacing) String() string {
	v := strconv.FormatFloat(s.Value, 'f', -1, 64)
	switch s.Mode {
	case SpacingExact:
		return v + "+e"
	case SpacingNodes:
		return v + "+n"
	default:
		return v
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Spacing) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler; yaml.v3 uses it for scalars.
func (s *Spacing) UnmarshalText(text []byte) error {
	sp, err := ParseSpacing(string(text))
	if err != nil {
		return err
	}
	*s = sp
	return nil
}
