package grid

import (
	"math"
	"testing"

	"github.com/woozymasta/lidardsm/internal/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	g, err := New(geo.Region{West: 0, East: 4, South: 10, North: 12}, 1, geo.EPSG(2193))
	require.NoError(t, err)
	assert.Equal(t, 5, g.NX)
	assert.Equal(t, 3, g.NY)
	assert.Len(t, g.Values, 15)
	assert.Equal(t, 15, g.Missing())
	assert.True(t, math.IsNaN(g.NoData))
	assert.Equal(t, 4.0, g.X(4))
	assert.Equal(t, 12.0, g.Y(2))

	_, err = New(geo.Region{West: 1, East: 0}, 1, geo.CRS{})
	assert.ErrorIs(t, err, ErrShape)
	_, err = New(geo.Region{East: 1, North: 1}, 0, geo.CRS{})
	assert.ErrorIs(t, err, ErrShape)
}

func TestRangeAndClone(t *testing.T) {
	g, err := New(geo.Region{East: 1, North: 1}, 1, geo.CRS{})
	require.NoError(t, err)
	_, _, ok := g.Range()
	assert.False(t, ok)

	g.Set(0, 0, 3)
	g.Set(1, 1, -2)
	lo, hi, ok := g.Range()
	require.True(t, ok)
	assert.Equal(t, -2.0, lo)
	assert.Equal(t, 3.0, hi)

	c := g.Clone()
	c.Set(0, 0, 100)
	assert.Equal(t, 3.0, g.At(0, 0))
}

func TestCrop(t *testing.T) {
	g, err := New(geo.Region{West: 0, East: 9, South: 0, North: 9}, 1, geo.EPSG(2193))
	require.NoError(t, err)
	for r := 0; r < g.NY; r++ {
		for c := 0; c < g.NX; c++ {
			g.Set(c, r, float64(10*r+c))
		}
	}

	sub, err := g.Crop(geo.Region{West: 2.5, East: 5, South: 7, North: 20})
	require.NoError(t, err)
	assert.Equal(t, 3, sub.NX)
	assert.Equal(t, 3, sub.NY)
	assert.Equal(t, geo.Region{West: 3, East: 5, South: 7, North: 9}, sub.Region)
	assert.Equal(t, 73.0, sub.At(0, 0))
	assert.Equal(t, 95.0, sub.At(2, 2))
	require.NoError(t, sub.Validate())

	_, err = g.Crop(geo.Region{West: 20, East: 30, South: 0, North: 1})
	assert.ErrorIs(t, err, ErrShape)
}

func TestValidate(t *testing.T) {
	assert.Error(t, (*Grid)(nil).Validate())
	assert.Error(t, (&Grid{NX: 2, NY: 2, Spacing: 1, Values: []float64{1}}).Validate())
	assert.NoError(t, (&Grid{NX: 1, NY: 1, Spacing: 1, Values: []float64{1}}).Validate())
}

func TestPlotAdapter(t *testing.T) {
	g, err := New(geo.Region{West: 10, East: 12, South: 0, North: 1}, 1, geo.CRS{})
	require.NoError(t, err)
	g.Set(2, 1, 7)

	p := Plot{g}
	c, r := p.Dims()
	assert.Equal(t, 3, c)
	assert.Equal(t, 2, r)
	assert.Equal(t, 7.0, p.Z(2, 1))
	assert.Equal(t, 12.0, p.X(2))
	assert.Equal(t, 1.0, p.Y(1))
}
