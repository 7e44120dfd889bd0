package surface

import (
	"fmt"
	"math"

	"github.com/woozymasta/lidardsm/internal/blockreduce"
	"github.com/woozymasta/lidardsm/internal/grid"

	"github.com/rs/zerolog/log"
)

type tap struct {
	da, db int
	coef   float64
}

type solver struct {
	g          *grid.Grid
	opts       Options
	trend      plane
	u, v, res  []float64
	zRange     float64
	limit      float64
	taps       []tap
	center     float64
	iterations int
}

func newSolver(g *grid.Grid, data []blockreduce.Point, opts Options) *solver {
	trend := fitPlane(data, g.Region, g.Spacing)

	s := &solver{
		g:     g,
		opts:  opts,
		trend: trend,
		u:     make([]float64, len(data)),
		v:     make([]float64, len(data)),
		res:   make([]float64, len(data)),
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i, p := range data {
		s.u[i] = (p.X - g.Region.West) / g.Spacing
		s.v[i] = (p.Y - g.Region.South) / g.Spacing
		s.res[i] = p.Z - trend.at(s.u[i], s.v[i])
		lo = math.Min(lo, p.Z)
		hi = math.Max(hi, p.Z)
	}
	s.zRange = hi - lo

	s.limit = opts.ConvergenceLimit
	if s.limit == 0 {
		s.limit = defaultLimitFactor * s.zRange
	}

	// 13-point stencil of (1-T)∇⁴ - T∇² in node units.
	a := 1 - opts.Tension
	t := opts.Tension
	s.center = 20*a + 4*t
	s.taps = []tap{
		{1, 0, -8*a - t}, {-1, 0, -8*a - t}, {0, 1, -8*a - t}, {0, -1, -8*a - t},
		{1, 1, 2 * a}, {-1, 1, 2 * a}, {1, -1, 2 * a}, {-1, -1, 2 * a},
		{2, 0, a}, {-2, 0, a}, {0, 2, a}, {0, -2, a},
	}
	return s
}

func (s *solver) run() error {
	g := s.g
	nx, ny := g.NX, g.NY
	z := g.Values

	if s.zRange == 0 {
		for i := range z {
			z[i] = s.trend.a
		}
		return nil
	}

	stride := 1
	for (nx-1)/(2*stride) >= minCoarseIntervals && (ny-1)/(2*stride) >= minCoarseIntervals {
		stride *= 2
	}

	for r := 0; r < ny; r += stride {
		for c := 0; c < nx; c += stride {
			z[r*nx+c] = 0
		}
	}

	for st := stride; st >= 1; st /= 2 {
		if st != stride {
			s.refine(2*st, st)
		}
		fixed, mx, my := s.constrain(st)
		if err := s.relax(st, fixed, mx, my); err != nil {
			return err
		}
	}

	for r := 0; r < ny; r++ {
		for c := 0; c < nx; c++ {
			z[r*nx+c] += s.trend.at(float64(c), float64(r))
		}
	}
	return nil
}

// constrain pins the lattice nodes nearest to data at stride st to the mean residual.
func (s *solver) constrain(st int) ([]bool, int, int) {
	nx := s.g.NX
	mx := (s.g.NX-1)/st + 1
	my := (s.g.NY-1)/st + 1

	sum := make([]float64, mx*my)
	cnt := make([]int, mx*my)
	for i := range s.res {
		a := clampInt(int(math.Round(s.u[i]/float64(st))), 0, mx-1)
		b := clampInt(int(math.Round(s.v[i]/float64(st))), 0, my-1)
		sum[b*mx+a] += s.res[i]
		cnt[b*mx+a]++
	}

	fixed := make([]bool, mx*my)
	for k, n := range cnt {
		if n == 0 {
			continue
		}
		a, b := k%mx, k/mx
		s.g.Values[b*st*nx+a*st] = sum[k] / float64(n)
		fixed[k] = true
	}
	return fixed, mx, my
}

// refine seeds nodes of stride `to` that are missing from stride `from` by
// bilinear interpolation of the coarser lattice.
func (s *solver) refine(from, to int) {
	nx, ny := s.g.NX, s.g.NY
	z := s.g.Values
	cmx := (nx-1)/from + 1
	cmy := (ny-1)/from + 1

	coarse := func(a, b int) float64 { return z[b*from*nx+a*from] }

	for r := 0; r < ny; r += to {
		fy := float64(r) / float64(from)
		b0 := clampInt(int(fy), 0, cmy-1)
		b1 := clampInt(b0+1, 0, cmy-1)
		ty := clampFloat(fy-float64(b0), 0, 1)
		if b0 == b1 {
			ty = 0
		}

		for c := 0; c < nx; c += to {
			if r%from == 0 && c%from == 0 {
				continue
			}
			fx := float64(c) / float64(from)
			a0 := clampInt(int(fx), 0, cmx-1)
			a1 := clampInt(a0+1, 0, cmx-1)
			tx := clampFloat(fx-float64(a0), 0, 1)
			if a0 == a1 {
				tx = 0
			}

			top := coarse(a0, b1)*(1-tx) + coarse(a1, b1)*tx
			bottom := coarse(a0, b0)*(1-tx) + coarse(a1, b0)*tx
			z[r*nx+c] = bottom*(1-ty) + top*ty
		}
	}
}

// relax runs over-relaxed Gauss-Seidel sweeps on the stride-st lattice until
// the largest update drops to the convergence limit. On the finest lattice it
// keeps sweeping, within the same budget, until the geometric tail of the
// remaining updates, maxDelta*rate/(1-rate), is below the limit as well.
func (s *solver) relax(st int, fixed []bool, mx, my int) error {
	free := 0
	for _, f := range fixed {
		if !f {
			free++
		}
	}

	reached := 0
	prev := math.Inf(1)
	maxDelta := 0.0
	for it := 1; it <= s.opts.MaxIterations; it++ {
		maxDelta = s.sweep(st, fixed, mx, my)
		s.iterations++
		rate := maxDelta / prev
		prev = maxDelta

		if maxDelta > s.limit {
			continue
		}
		if reached == 0 {
			reached = it
		}
		if st > 1 || maxDelta == 0 || (rate < 1 && maxDelta*rate/(1-rate) <= s.limit) {
			log.Trace().
				Int("stride", st).
				Int("nodes", mx*my).
				Int("free", free).
				Int("iterations", it).
				Float64("max_delta", maxDelta).
				Msg("Surface level converged")
			return nil
		}
	}

	if reached > 0 {
		log.Trace().
			Int("stride", st).
			Int("nodes", mx*my).
			Int("free", free).
			Int("reached", reached).
			Float64("max_delta", maxDelta).
			Msg("Surface level stopped at iteration budget")
		return nil
	}

	return fmt.Errorf("%w: stride %d lattice %dx%d exceeded %d iterations (limit %g)",
		ErrConvergence, st, mx, my, s.opts.MaxIterations, s.limit)
}

// sweep updates every free node of the stride-st lattice once and returns
// the largest absolute change.
func (s *solver) sweep(st int, fixed []bool, mx, my int) float64 {
	nx := s.g.NX
	z := s.g.Values
	w := s.opts.Relaxation

	maxDelta := 0.0
	for b := 0; b < my; b++ {
		for a := 0; a < mx; a++ {
			if fixed[b*mx+a] {
				continue
			}

			self := s.center
			sum := 0.0
			for _, tp := range s.taps {
				na := mirror(a+tp.da, mx)
				nb := mirror(b+tp.db, my)
				if na == a && nb == b {
					self += tp.coef
					continue
				}
				sum += tp.coef * z[nb*st*nx+na*st]
			}
			if self == 0 {
				continue
			}

			idx := b*st*nx + a*st
			d := w * (-sum/self - z[idx])
			z[idx] += d
			maxDelta = math.Max(maxDelta, math.Abs(d))
		}
	}
	return maxDelta
}

// mirror reflects an index about the lattice edges.
func mirror(i, m int) int {
	if m == 1 {
		return 0
	}
	if i < 0 {
		i = -i
	}
	if i > m-1 {
		i = 2*(m-1) - i
	}
	return clampInt(i, 0, m-1)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
