// Package surface grids scattered elevations with continuous curvature
// splines in tension.
//
// The solver works on the gridline-registered node lattice and relaxes
//
//	(1 - T) ∇⁴z - T ∇²z = 0
//
// at every node that is not pinned by data. The data trend (a least-squares
// plane) is removed first and restored at the end. Relaxation starts on a
// coarse sub-lattice and refines by halving the node stride, seeding new
// nodes by bilinear interpolation of the previous level. Boundaries mirror
// the interior, which gives zero normal gradient at the edges.
package surface

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/woozymasta/lidardsm/internal/blockreduce"
	"github.com/woozymasta/lidardsm/internal/geo"
	"github.com/woozymasta/lidardsm/internal/grid"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInput is returned for unusable input points or options.
	ErrInput = errors.New("invalid surface input")
	// ErrConvergence is returned when a level does not converge within MaxIterations.
	ErrConvergence = errors.New("surface did not converge")
)

// MinPoints is the smallest number of data points accepted.
const MinPoints = 4

const (
	defaultMaxIterations = 500
	defaultRelaxation    = 1.4
	defaultLimitFactor   = 1e-4
	minCoarseIntervals   = 4
)

// Options configures Grid.
type Options struct {
	Spacing float64
	Region  geo.Region
	// Tension in [0, 1]: 0 is a minimum curvature surface, 1 a harmonic one.
	Tension float64
	// MaxIterations per refinement level; 0 selects 500.
	MaxIterations int
	// ConvergenceLimit on the largest node update of a sweep; 0 selects
	// 1e-4 of the data z range.
	ConvergenceLimit float64
	// Relaxation is the over-relaxation factor in (0, 2); 0 selects 1.4.
	Relaxation float64
	CRS        geo.CRS
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = defaultMaxIterations
	}
	if o.Relaxation == 0 {
		o.Relaxation = defaultRelaxation
	}
	return o
}

func (o Options) validate() error {
	if !(o.Spacing > 0) || math.IsInf(o.Spacing, 0) {
		return fmt.Errorf("%w: spacing %g must be positive", ErrInput, o.Spacing)
	}
	if err := o.Region.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInput, err)
	}
	if !(o.Tension >= 0 && o.Tension <= 1) {
		return fmt.Errorf("%w: tension %g outside [0, 1]", ErrInput, o.Tension)
	}
	if !(o.Relaxation > 0 && o.Relaxation < 2) {
		return fmt.Errorf("%w: relaxation %g outside (0, 2)", ErrInput, o.Relaxation)
	}
	if o.ConvergenceLimit < 0 {
		return fmt.Errorf("%w: convergence limit %g is negative", ErrInput, o.ConvergenceLimit)
	}
	return nil
}

// Grid interpolates pts onto a grid covering opts.Region at opts.Spacing.
// Every node of the result is populated.
func Grid(pts []blockreduce.Point, opts Options) (*grid.Grid, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	g, err := grid.New(opts.Region, opts.Spacing, opts.CRS)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInput, err)
	}

	data := inside(pts, opts.Region, opts.Spacing)
	if len(data) < MinPoints {
		return nil, fmt.Errorf("%w: %d points inside region %s, need at least %d",
			ErrInput, len(data), opts.Region, MinPoints)
	}

	start := time.Now()
	s := newSolver(g, data, opts)
	if err := s.run(); err != nil {
		return nil, err
	}

	log.Debug().
		Int("nx", g.NX).
		Int("ny", g.NY).
		Int("points", len(data)).
		Float64("tension", opts.Tension).
		Int("iterations", s.iterations).
		Dur("duration", time.Since(start)).
		Msg("Surface converged")

	return g, nil
}

// inside keeps points within half a cell of the region.
func inside(pts []blockreduce.Point, r geo.Region, inc float64) []blockreduce.Point {
	h := inc / 2
	out := make([]blockreduce.Point, 0, len(pts))
	for _, p := range pts {
		if math.IsNaN(p.Z) || math.IsInf(p.Z, 0) {
			continue
		}
		if p.X < r.West-h || p.X > r.East+h || p.Y < r.South-h || p.Y > r.North+h {
			continue
		}
		out = append(out, p)
	}
	return out
}

// plane is z = a + b*u + c*v in grid units (u, v measured in nodes).
type plane struct{ a, b, c float64 }

func (p plane) at(u, v float64) float64 { return p.a + p.b*u + p.c*v }

// fitPlane solves the least-squares trend; collinear data fall back to the mean.
func fitPlane(pts []blockreduce.Point, r geo.Region, inc float64) plane {
	n := len(pts)
	a := mat.NewDense(n, 3, nil)
	b := mat.NewVecDense(n, nil)
	mean := 0.0
	for i, p := range pts {
		a.Set(i, 0, 1)
		a.Set(i, 1, (p.X-r.West)/inc)
		a.Set(i, 2, (p.Y-r.South)/inc)
		b.SetVec(i, p.Z)
		mean += p.Z
	}
	mean /= float64(n)

	var coef mat.VecDense
	if err := coef.SolveVec(a, b); err != nil {
		log.Trace().Err(err).Msg("Trend plane fit failed, using mean")
		return plane{a: mean}
	}
	pl := plane{a: coef.AtVec(0), b: coef.AtVec(1), c: coef.AtVec(2)}
	if math.IsNaN(pl.a) || math.IsNaN(pl.b) || math.IsNaN(pl.c) {
		return plane{a: mean}
	}
	return pl
}
