package geo

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRegion_Validate(t *testing.T) {
	assert.NoError(t, Region{West: 0, East: 10, South: 0, North: 5}.Validate())
	assert.NoError(t, Region{West: 3, East: 3, South: 1, North: 1}.Validate())
	assert.Error(t, Region{West: 10, East: 0, South: 0, North: 5}.Validate())
	assert.Error(t, Region{West: 0, East: 10, South: 5, North: 0}.Validate())
}

func TestRegion_Snap(t *testing.T) {
	r := Region{West: 1749760.42, East: 1750239.9, South: 5426880.01, North: 5427599.5}
	assert.Equal(t, Region{West: 1749760, East: 1750240, South: 5426880, North: 5427600}, r.Snap(1))
	assert.Equal(t, r, r.Snap(0))
}

func TestRegion_Intersect(t *testing.T) {
	a := Region{West: 0, East: 10, South: 0, North: 10}
	b := Region{West: 5, East: 15, South: -5, North: 5}

	got, ok := a.Intersect(b)
	require.True(t, ok)
	assert.Equal(t, Region{West: 5, East: 10, South: 0, North: 5}, got)

	_, ok = a.Intersect(Region{West: 20, East: 30, South: 0, North: 1})
	assert.False(t, ok)
}

func TestRegion_YAML(t *testing.T) {
	var r Region
	require.NoError(t, yaml.Unmarshal([]byte(`[1749760, 1750240, 5426880, 5427600]`), &r))
	assert.Equal(t, Region{West: 1749760, East: 1750240, South: 5426880, North: 5427600}, r)

	require.NoError(t, yaml.Unmarshal([]byte("west: 1\neast: 2\nsouth: 3\nnorth: 4\n"), &r))
	assert.Equal(t, Region{West: 1, East: 2, South: 3, North: 4}, r)

	assert.Error(t, yaml.Unmarshal([]byte(`[1, 2, 3]`), &r))
	assert.Equal(t, "1749760/1750240/5426880/5427600", Region{West: 1749760, East: 1750240, South: 5426880, North: 5427600}.String())
}

func TestParseSpacing(t *testing.T) {
	tests := []struct {
		in   string
		want Spacing
		err  bool
	}{
		{in: "1", want: Spacing{Value: 1, Mode: SpacingFit}},
		{in: "1+e", want: Spacing{Value: 1, Mode: SpacingExact}},
		{in: "0.5+e", want: Spacing{Value: 0.5, Mode: SpacingExact}},
		{in: "101+n", want: Spacing{Value: 101, Mode: SpacingNodes}},
		{in: "0", err: true},
		{in: "-1+e", err: true},
		{in: "abc", err: true},
		{in: "1.5+n", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSpacing(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrSpacing)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestSpacing_Resolve(t *testing.T) {
	r := Region{West: 0, East: 10.5, South: 0, North: 4}

	inc, out, err := MustParseSpacing("1+e").Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, 1.0, inc)
	assert.Equal(t, Region{West: 0, East: 11, South: 0, North: 4}, out)
	nx, ny := Nodes(out, inc)
	assert.Equal(t, 12, nx)
	assert.Equal(t, 5, ny)

	inc, out, err = MustParseSpacing("11+n").Resolve(Region{West: 0, East: 10, South: 0, North: 10})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, inc, 1e-12)
	nx, ny = Nodes(out, inc)
	assert.Equal(t, 11, nx)
	assert.Equal(t, 11, ny)

	inc, _, err = MustParseSpacing("3").Resolve(Region{West: 0, East: 10, South: 0, North: 10})
	require.NoError(t, err)
	assert.InDelta(t, 10.0/3, inc, 1e-12)

	_, _, err = MustParseSpacing("1+e").Resolve(Region{West: 5, East: 0, South: 0, North: 1})
	assert.Error(t, err)
}

func TestParseCRS(t *testing.T) {
	c, err := ParseCRS("EPSG:2193")
	require.NoError(t, err)
	assert.Equal(t, 2193, c.EPSG)
	assert.Equal(t, "EPSG:2193", c.String())

	c, err = ParseCRS("epsg:4326")
	require.NoError(t, err)
	assert.Equal(t, 4326, c.EPSG)

	c, err = ParseCRS("")
	require.NoError(t, err)
	assert.True(t, c.IsZero())

	_, err = ParseCRS("NZTM")
	assert.Error(t, err)
}

func TestFootprint_RoundTrip(t *testing.T) {
	r := Region{West: 100, East: 200, South: 50, North: 80}
	fc := Footprint(r, map[string]any{"name": "test"})
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "test", fc.Features[0].Properties["name"])

	path := filepath.Join(t.TempDir(), "sub", "footprint.geojson")
	require.NoError(t, WriteGeoJSON(path, fc))

	got, err := ReadGeoJSON(path)
	require.NoError(t, err)
	back, ok := FootprintRegion(got)
	require.True(t, ok)
	assert.Equal(t, r, back)
}
