package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/lidardsm/internal/geo"
)

const sample = `
output_dir: out
timeout: 90s
defaults:
  decimate: 10
datasets:
  - name: wellington
    title: Oriental Bay, Wellington
    sources: [https://example.com/CL2_BQ31_2019_1000_2138.laz]
    map_region: [1749760, 1750240, 5426880, 5427600]
    map_range: [-10, 200]
  - name: queenstown
    sources:
      - a.laz
      - b.laz
    spacing: "2"
    exclude_classes: [7, 18]
    crs: EPSG:2193
    image_format: webp
`

func TestParse_DefaultsAndOverrides(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, ".", cfg.WorkDir)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	require.Len(t, cfg.Datasets, 2)

	w := cfg.Datasets[0]
	assert.Equal(t, 10, w.Decimate, "file defaults apply")
	assert.Equal(t, 0.99, w.Quantile)
	assert.Equal(t, 0.35, w.Tension)
	assert.Equal(t, []int{18}, w.ExcludeClasses)
	assert.Equal(t, geo.MustParseSpacing("1+e"), w.Spacing)
	assert.Equal(t, "bukavu", w.ColorMap)
	assert.Equal(t, 315.0, w.Azimuth)
	assert.Equal(t, 30.0, w.Elevation)
	assert.Equal(t, 0.02, w.ZScale)
	assert.True(t, w.Shading)
	assert.Equal(t, geo.Region{West: 1749760, East: 1750240, South: 5426880, North: 5427600}, w.MapRegion)
	assert.Equal(t, []float64{-10, 200}, w.MapRange)

	q := cfg.Datasets[1]
	assert.Equal(t, geo.MustParseSpacing("2"), q.Spacing)
	assert.Equal(t, []int{7, 18}, q.ExcludeClasses)
	assert.Equal(t, 2193, q.CRS.EPSG)
	assert.Equal(t, 10, q.Decimate)
	assert.Equal(t, "queenstown_3d_dsm_view.webp", q.ImageFile("3d_dsm_view"))

	// Overrides must not leak into the shared defaults.
	assert.Equal(t, []int{18}, cfg.Defaults.ExcludeClasses)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Datasets, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"no datasets":  `output_dir: x`,
		"bad yaml":     `datasets: [`,
		"no sources":   `datasets: [{name: a}]`,
		"bad name":     `datasets: [{name: "Bad Name", sources: [a.laz]}]`,
		"duplicate":    `datasets: [{name: a, sources: [a.laz]}, {name: a, sources: [b.laz]}]`,
		"quantile":     `datasets: [{name: a, sources: [a.laz], quantile: 1.5}]`,
		"tension":      `datasets: [{name: a, sources: [a.laz], tension: -0.1}]`,
		"spacing":      `datasets: [{name: a, sources: [a.laz], spacing: "x"}]`,
		"format":       `datasets: [{name: a, sources: [a.laz], image_format: gif}]`,
		"class code":   `datasets: [{name: a, sources: [a.laz], exclude_classes: [300]}]`,
		"map range":    `datasets: [{name: a, sources: [a.laz], map_range: [5, 1]}]`,
		"map region":   `datasets: [{name: a, sources: [a.laz], map_region: [10, 0, 0, 10]}]`,
		"bad defaults": `{defaults: {quantile: [1]}, datasets: [{name: a, sources: [a.laz]}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestExcludeCodes(t *testing.T) {
	p := Params{ExcludeClasses: []int{7, 18}}
	assert.Equal(t, []uint8{7, 18}, p.ExcludeCodes())
}

func TestDatasetNames(t *testing.T) {
	ds := Dataset{Name: "wellington", Params: DefaultParams()}
	assert.Equal(t, "DSM_of_Wellington.tif", ds.RasterFile())
	assert.Equal(t, "wellington_1d_lidar.png", ds.ImageFile("1d_lidar"))
	assert.Equal(t, "wellington", ds.DisplayTitle())

	ds.Prefix, ds.RasterName, ds.Title = "wgtn", "dsm.tif", "Oriental Bay"
	assert.Equal(t, "dsm.tif", ds.RasterFile())
	assert.Equal(t, "wgtn_2d_dsm_map.png", ds.ImageFile("2d_dsm_map"))
	assert.Equal(t, "Oriental Bay", ds.DisplayTitle())
}

func TestSelect(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	all, err := cfg.Select()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := cfg.Select("queenstown")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "queenstown", one[0].Name)

	_, err = cfg.Select("wellington", "auckland")
	assert.ErrorIs(t, err, ErrConfig)
}
