// Package render draws quick-look point maps, gridded elevation maps and 3D
// perspective views, and encodes them as PNG or WebP.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/woozymasta/lidardsm/internal/colormap"

	"github.com/chai2010/webp"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot/palette"
)

// ErrRender is returned for invalid visualization parameters.
var ErrRender = errors.New("render failed")

// Elevation label used on colorbars and the 3D z axis.
const ElevationLabel = "Elevation (m)"

// ColorRange selects a named color map over [Min, Max].
// A zero range means "use the data range".
type ColorRange struct {
	Name string
	Min  float64
	Max  float64
}

func (c ColorRange) isZero() bool { return c.Min == 0 && c.Max == 0 }

func (c ColorRange) resolve(lo, hi float64) (palette.ColorMap, error) {
	if c.isZero() {
		c.Min, c.Max = lo, hi
	}
	name := c.Name
	if name == "" {
		name = "bukavu"
	}
	cm, err := colormap.Get(name, c.Min, c.Max)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return cm, nil
}

// Save encodes img to path; the extension selects PNG (.png) or WebP (.webp).
func Save(path string, img image.Image) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".png" && ext != ".webp" {
		return fmt.Errorf("%w: unsupported image format %q", ErrRender, ext)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	switch ext {
	case ".webp":
		err = webp.Encode(f, img, &webp.Options{Lossless: false, Quality: 90})
	default:
		err = png.Encode(f, img)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	b := img.Bounds()
	log.Debug().Str("path", path).Int("width", b.Dx()).Int("height", b.Dy()).Msg("Image saved")
	return nil
}

// Thumbnail scales img down to fit within maxW x maxH, keeping the aspect ratio.
func Thumbnail(img image.Image, maxW, maxH uint) image.Image {
	return resize.Thumbnail(maxW, maxH, img, resize.Lanczos3)
}
