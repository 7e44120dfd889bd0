package blockreduce

import (
	"math"
	"testing"

	"github.com/woozymasta/lidardsm/internal/geo"
	"github.com/woozymasta/lidardsm/internal/points"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduce_SingleCellQuantile(t *testing.T) {
	var pts []points.Point
	for z := 1; z <= 10; z++ {
		pts = append(pts, points.Point{X: 5.1, Y: 5.2, Z: float64(z)})
	}

	out, err := Reduce(pts, Options{
		Spacing:  1,
		Region:   geo.Region{West: 0, East: 10, South: 0, North: 10},
		Quantile: 0.99,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 9.0, out[0].Z)
	assert.Equal(t, 5.0, out[0].X)
	assert.Equal(t, 5.0, out[0].Y)
	assert.Equal(t, 10, out[0].Count)
}

func TestReduce_OnePointPerCell(t *testing.T) {
	region := geo.Region{West: 0, East: 3, South: 0, North: 3}
	var pts []points.Point
	for i := 0; i < 400; i++ {
		x := math.Mod(float64(i)*0.37, 3)
		y := math.Mod(float64(i)*0.53, 3)
		pts = append(pts, points.Point{X: x, Y: y, Z: float64(i % 17)})
	}

	out, err := Reduce(pts, Options{Spacing: 1, Region: region, Quantile: 0.5})
	require.NoError(t, err)

	seen := make(map[[2]float64]bool)
	total := 0
	for _, p := range out {
		key := [2]float64{p.X, p.Y}
		assert.False(t, seen[key], "duplicate cell %v", key)
		seen[key] = true
		total += p.Count

		// Recompute the expected quantile from the raw points of that cell.
		var zs []float64
		for _, q := range pts {
			if math.Floor(q.X+0.5) == p.X && math.Floor(q.Y+0.5) == p.Y {
				zs = append(zs, q.Z)
			}
		}
		assert.Equal(t, Quantile(zs, 0.5), p.Z)
	}
	assert.Equal(t, len(pts), total)
	assert.LessOrEqual(t, len(out), 16)

	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1], out[i]
		assert.True(t, prev.Y < cur.Y || (prev.Y == cur.Y && prev.X < cur.X), "output not row-major")
	}
}

func TestReduce_DropsOutside(t *testing.T) {
	pts := []points.Point{
		{X: -0.6, Y: 0, Z: 1},
		{X: -0.4, Y: 0, Z: 2},
		{X: 10.6, Y: 0, Z: 3},
	}
	out, err := Reduce(pts, Options{Spacing: 1, Region: geo.Region{West: 0, East: 10, South: 0, North: 0}, Quantile: 1})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2.0, out[0].Z)
}

func TestReduce_EmptyInput(t *testing.T) {
	out, err := Reduce(nil, Options{Spacing: 1, Region: geo.Region{East: 1, North: 1}, Quantile: 0.99})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReduce_InvalidOptions(t *testing.T) {
	good := geo.Region{West: 0, East: 10, South: 0, North: 10}
	tests := []struct {
		name string
		opts Options
	}{
		{"west > east", Options{Spacing: 1, Region: geo.Region{West: 10, East: 0, South: 0, North: 10}, Quantile: 0.5}},
		{"south > north", Options{Spacing: 1, Region: geo.Region{West: 0, East: 10, South: 10, North: 0}, Quantile: 0.5}},
		{"zero spacing", Options{Spacing: 0, Region: good, Quantile: 0.5}},
		{"negative spacing", Options{Spacing: -1, Region: good, Quantile: 0.5}},
		{"quantile high", Options{Spacing: 1, Region: good, Quantile: 1.5}},
		{"quantile nan", Options{Spacing: 1, Region: good, Quantile: math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reduce([]points.Point{{X: 1, Y: 1, Z: 1}}, tt.opts)
			assert.ErrorIs(t, err, ErrReduction)
		})
	}
}

func TestQuantile(t *testing.T) {
	v := []float64{4, 1, 3, 2}
	assert.Equal(t, 1.0, Quantile(v, 0))
	assert.Equal(t, 2.0, Quantile(v, 0.5))
	assert.Equal(t, 4.0, Quantile(v, 1))
	assert.Equal(t, []float64{4, 1, 3, 2}, v)
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}
