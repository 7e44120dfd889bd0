package render

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/lidardsm/internal/geo"
	"github.com/woozymasta/lidardsm/internal/grid"
	"github.com/woozymasta/lidardsm/internal/points"
)

func testGrid(t *testing.T, nx, ny int) *grid.Grid {
	t.Helper()
	region := geo.Region{West: 1000, East: 1000 + float64(nx-1), South: 5000, North: 5000 + float64(ny-1)}
	g, err := grid.New(region, 1, geo.EPSG(2193))
	require.NoError(t, err)
	for r := 0; r < g.NY; r++ {
		for c := 0; c < g.NX; c++ {
			g.Set(c, r, 10*math.Sin(float64(c)/4)+float64(r)/2)
		}
	}
	return g
}

func hasInk(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, _ := img.At(x, y).RGBA()
			if r != 0xffff || g != 0xffff || bb != 0xffff {
				return true
			}
		}
	}
	return false
}

func TestPerspectiveOptions_Validate(t *testing.T) {
	ok := PerspectiveOptions{Azimuth: 315, Elevation: 30, ZScale: 0.02}
	require.NoError(t, ok.Validate())

	for name, o := range map[string]PerspectiveOptions{
		"azimuth high":   {Azimuth: 361, Elevation: 30, ZScale: 1},
		"azimuth low":    {Azimuth: -1, Elevation: 30, ZScale: 1},
		"elevation zero": {Azimuth: 0, Elevation: 0, ZScale: 1},
		"elevation high": {Azimuth: 0, Elevation: 91, ZScale: 1},
		"zscale zero":    {Azimuth: 0, Elevation: 30, ZScale: 0},
		"zscale nan":     {Azimuth: 0, Elevation: 30, ZScale: math.NaN()},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, o.Validate(), ErrRender)
		})
	}
}

func TestPerspective(t *testing.T) {
	g := testGrid(t, 40, 30)
	img, err := Perspective(g, PerspectiveOptions{
		Title:     "Test surface",
		Azimuth:   315,
		Elevation: 30,
		ZScale:    0.5,
		Shading:   true,
		Labels:    true,
		Width:     400,
	})
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Greater(t, img.Bounds().Dy(), 0)
	assert.True(t, hasInk(img))
}

func TestPerspective_Errors(t *testing.T) {
	g := testGrid(t, 10, 10)

	_, err := Perspective(g, PerspectiveOptions{Azimuth: 400, Elevation: 30, ZScale: 1})
	assert.ErrorIs(t, err, ErrRender)

	_, err = Perspective(g, PerspectiveOptions{Azimuth: 0, Elevation: 30, ZScale: 1, Color: ColorRange{Min: 5, Max: 5, Name: "gray"}})
	assert.ErrorIs(t, err, ErrRender)

	_, err = Perspective(&grid.Grid{}, PerspectiveOptions{Azimuth: 0, Elevation: 30, ZScale: 1})
	assert.ErrorIs(t, err, ErrRender)
}

func TestDecimate(t *testing.T) {
	g := testGrid(t, 1001, 11)
	m := decimate(g, 400)

	// Every third node, then the last one closes the east and north strips.
	assert.Equal(t, 335, m.nx())
	assert.Equal(t, 5, m.ny())
	assert.Equal(t, []int{0, 3, 6, 9, 10}, m.rows)
	assert.Equal(t, g.X(999), m.x(333))
	assert.Equal(t, g.Region.East, m.x(334))
	assert.Equal(t, g.Region.North, m.y(4))
	assert.Equal(t, g.At(1000, 10), m.at(334, 4))
	assert.Equal(t, g.At(999, 9), m.at(333, 3))

	full := decimate(g, 2000)
	assert.Equal(t, g.NX, full.nx())
	assert.Equal(t, g.NY, full.ny())
	assert.Equal(t, g.At(500, 5), full.at(500, 5))
}

func TestDecimate_DividesEvenly(t *testing.T) {
	g := testGrid(t, 13, 7)
	m := decimate(g, 4)
	assert.Equal(t, []int{0, 3, 6, 9, 12}, m.cols)
	assert.Equal(t, []int{0, 3, 6}, m.rows)
}

func TestHillshade_FlatIsUnity(t *testing.T) {
	assert.InDelta(t, 1.0, hillshade([4]float64{5, 5, 5, 5}, 1, 1), 1e-12)

	// Light comes from the north-west, so a slope rising to the east faces it.
	facing := hillshade([4]float64{0, 1, 1, 0}, 1, 1)
	away := hillshade([4]float64{1, 0, 0, 1}, 1, 1)
	assert.Greater(t, facing, away)
}

func TestMap(t *testing.T) {
	g := testGrid(t, 50, 40)

	img, err := Map(g, MapOptions{Title: "DSM", Width: 500, Color: ColorRange{Name: "bukavu", Min: -10, Max: 30}})
	require.NoError(t, err)
	assert.Equal(t, 500, img.Bounds().Dx())
	assert.True(t, hasInk(img))

	sub := geo.Region{West: 1010, East: 1030, South: 5010, North: 5030}
	_, err = Map(g, MapOptions{Region: sub})
	require.NoError(t, err)
}

func TestMap_Errors(t *testing.T) {
	g := testGrid(t, 10, 10)

	_, err := Map(g, MapOptions{Color: ColorRange{Min: 10, Max: 5}})
	assert.ErrorIs(t, err, ErrRender)

	_, err = Map(g, MapOptions{Region: geo.Region{West: 0, East: 1, South: 0, North: 1}})
	assert.ErrorIs(t, err, ErrRender)

	_, err = Map(g, MapOptions{Color: ColorRange{Name: "rainbow"}})
	assert.ErrorIs(t, err, ErrRender)
}

func TestScatter(t *testing.T) {
	var c points.Cloud
	for i := 0; i < 500; i++ {
		c.Points = append(c.Points, points.Point{X: float64(i % 25), Y: float64(i / 25), Z: float64(i % 7)})
	}

	img, err := Scatter(c, ScatterOptions{Title: "Points", Decimate: 5, Width: 400})
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())

	_, err = Scatter(points.Cloud{}, ScatterOptions{})
	assert.ErrorIs(t, err, ErrRender)
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 6))
	img.Set(2, 2, color.NRGBA{255, 0, 0, 255})

	pngPath := filepath.Join(dir, "a", "out.png")
	require.NoError(t, Save(pngPath, img))

	f, err := os.Open(pngPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	webpPath := filepath.Join(dir, "out.webp")
	require.NoError(t, Save(webpPath, img))
	st, err := os.Stat(webpPath)
	require.NoError(t, err)
	assert.Greater(t, st.Size(), int64(0))

	assert.ErrorIs(t, Save(filepath.Join(dir, "out.bmp"), img), ErrRender)
}

func TestThumbnail(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 800, 400))
	th := Thumbnail(img, 200, 200)
	assert.Equal(t, 200, th.Bounds().Dx())
	assert.Equal(t, 100, th.Bounds().Dy())
}
