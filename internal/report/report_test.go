package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/lidardsm/internal/config"
	"github.com/woozymasta/lidardsm/internal/geo"
)

func sampleRun(name string) *Run {
	return &Run{
		ID:         "6f1c2a9e-0000-4000-8000-000000000001",
		Dataset:    name,
		Title:      "Oriental Bay <Wellington>",
		Started:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		DurationMS: 1500,
		Sources:    []string{"https://example.com/a.laz"},
		CRS:        geo.EPSG(2193),
		Params:     config.DefaultParams(),
		Region:     geo.Region{West: 0, East: 10, South: 0, North: 5},
		Spacing:    1,
		Loaded:     100,
		Kept:       97,
		Cells:      40,
		NX:         11,
		NY:         6,
		ZMin:       -2,
		ZMax:       35.5,
		Raster:     "DSM_of_Wellington.tif",
		Footprint:  FootprintFile,
		Images: []Image{
			{Kind: "1d_lidar", Title: "Points", File: name + "_1d_lidar.png", Thumb: "thumbs/" + name + "_1d_lidar.webp", Width: 10, Height: 5},
		},
	}
}

func TestJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	run := sampleRun("wellington")
	require.NoError(t, WriteJSON(dir, run))

	back, err := ReadJSON(dir)
	require.NoError(t, err)
	assert.Equal(t, run.ID, back.ID)
	assert.Equal(t, run.Params.Spacing, back.Params.Spacing)
	assert.Equal(t, run.Region, back.Region)
	assert.Equal(t, 3, back.Excluded())
	assert.Equal(t, 1500*time.Millisecond, back.Duration())
}

func TestList(t *testing.T) {
	out := t.TempDir()
	require.NoError(t, WriteJSON(filepath.Join(out, "queenstown"), sampleRun("queenstown")))
	require.NoError(t, WriteJSON(filepath.Join(out, "wellington"), sampleRun("wellington")))
	require.NoError(t, os.MkdirAll(filepath.Join(out, "empty"), 0755))

	runs, err := List(out)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "queenstown", runs[0].Dataset)
	assert.Equal(t, "wellington", runs[1].Dataset)

	runs, err = List(filepath.Join(out, "missing"))
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestHTML(t *testing.T) {
	page, err := HTML(sampleRun("wellington"))
	require.NoError(t, err)
	s := string(page)

	assert.Contains(t, s, "Oriental Bay")
	assert.NotContains(t, s, "<Wellington>", "titles are escaped")
	assert.Contains(t, s, "DSM_of_Wellington.tif")
	assert.Contains(t, s, "thumbs/wellington_1d_lidar.webp")
	assert.Contains(t, s, "EPSG:2193")
	assert.Contains(t, s, "Quantile")
	assert.NotContains(t, s, "\n  <", "output is minified")
}

func TestWriteIndex(t *testing.T) {
	out := t.TempDir()
	run := sampleRun("wellington")
	require.NoError(t, WriteJSON(filepath.Join(out, run.Dataset), run))
	require.NoError(t, WriteHTML(filepath.Join(out, run.Dataset), run))
	require.NoError(t, WriteIndex(out, "DSM runs"))

	data, err := os.ReadFile(filepath.Join(out, IndexFile))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `href=wellington/`) || strings.Contains(string(data), `href="wellington/"`))

	_, err = os.Stat(filepath.Join(out, run.Dataset, IndexFile))
	assert.NoError(t, err)
}
