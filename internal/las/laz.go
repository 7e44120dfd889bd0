package las

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/woozymasta/lidardsm/internal/points"

	"github.com/rs/zerolog/log"
)

// DefaultLAZCommand is the executable used to decompress LAZ files.
const DefaultLAZCommand = "laszip"

// Decompressor turns LAZ files into temporary LAS files using an external tool
// invoked as "<command> -i <in.laz> -o <out.las>".
type Decompressor struct {
	Command string
	TempDir string
}

// IsCompressed reports whether path names a LAZ file.
func IsCompressed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".laz")
}

// Decompress writes a LAS copy of the LAZ file at path and returns its location
// together with a cleanup function that removes it.
func (d Decompressor) Decompress(ctx context.Context, path string) (string, func(), error) {
	command := d.Command
	if command == "" {
		command = DefaultLAZCommand
	}

	bin, err := exec.LookPath(command)
	if err != nil {
		return "", nil, fmt.Errorf("%w: LAZ input %s needs %q on PATH: %v", ErrFormat, path, command, err)
	}

	dir, err := os.MkdirTemp(d.TempDir, "lidardsm-laz-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	out := filepath.Join(dir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".las")
	start := time.Now()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-i", path, "-o", out)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("%w: decompressing %s: %v: %s", ErrFormat, path, err, strings.TrimSpace(stderr.String()))
	}

	log.Debug().
		Str("in", path).
		Str("out", out).
		Dur("duration", time.Since(start)).
		Msg("LAZ decompressed")

	return out, cleanup, nil
}

// Load decodes the point cloud at path, decompressing LAZ input through d.
func Load(ctx context.Context, path string, d Decompressor) (*File, error) {
	src := path
	if IsCompressed(path) {
		las, cleanup, err := d.Decompress(ctx, path)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		src = las
	}

	start := time.Now()
	f, err := ReadFile(src)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Str("version", f.Header.Version()).
		Uint8("point_format", f.Header.PointFormat).
		Int("points", len(f.Points)).
		Str("crs", f.CRS.String()).
		Dur("duration", time.Since(start)).
		Msg("Point cloud loaded")

	return f, nil
}

// LoadAll loads every path in order and concatenates the points into one cloud.
func LoadAll(ctx context.Context, paths []string, d Decompressor) (points.Cloud, error) {
	var cloud points.Cloud
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return points.Cloud{}, err
		}
		f, err := Load(ctx, p, d)
		if err != nil {
			return points.Cloud{}, err
		}
		cloud = cloud.Concat(f.Cloud())
	}
	return cloud, nil
}
