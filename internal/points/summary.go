package points

import (
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats describes one column of the point table.
type Stats struct {
	Count int     `json:"count" yaml:"count"`
	Mean  float64 `json:"mean" yaml:"mean"`
	Std   float64 `json:"std" yaml:"std"`
	Min   float64 `json:"min" yaml:"min"`
	P25   float64 `json:"p25" yaml:"p25"`
	P50   float64 `json:"p50" yaml:"p50"`
	P75   float64 `json:"p75" yaml:"p75"`
	Max   float64 `json:"max" yaml:"max"`
}

// Summary holds column statistics for X, Y and Z.
type Summary struct {
	X Stats `json:"x" yaml:"x"`
	Y Stats `json:"y" yaml:"y"`
	Z Stats `json:"z" yaml:"z"`
}

// Summary computes count, mean, sample standard deviation, min, quartiles and max
// of each coordinate column. Quartiles interpolate linearly between order statistics.
func (c Cloud) Summary() Summary {
	xs, ys, zs := c.Columns()
	return Summary{X: describe(xs), Y: describe(ys), Z: describe(zs)}
}

func describe(v []float64) Stats {
	s := Stats{Count: len(v)}
	if len(v) == 0 {
		return s
	}

	sorted := slices.Clone(v)
	slices.Sort(sorted)

	s.Mean, s.Std = stat.MeanStdDev(sorted, nil)
	if len(v) == 1 {
		s.Std = 0
	}
	s.Min = floats.Min(sorted)
	s.Max = floats.Max(sorted)
	s.P25 = linearQuantile(sorted, 0.25)
	s.P50 = linearQuantile(sorted, 0.50)
	s.P75 = linearQuantile(sorted, 0.75)
	return s
}

// linearQuantile interpolates between the order statistics of a sorted slice.
func linearQuantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
