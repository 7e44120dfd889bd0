// Package geotiff writes and reads single-band float32 GeoTIFF rasters.
package geotiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/lidardsm/internal/grid"
)

// ErrExport is returned for grids or paths that cannot be written as GeoTIFF.
var ErrExport = errors.New("geotiff export failed")

// TIFF tags.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagSampleFormat    = 339
	tagPixelScale      = 33550
	tagTiepoint        = 33922
	tagGeoKeys         = 34735
	tagNoData          = 42113
)

// TIFF field types.
const (
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// GeoKeys.
const (
	keyModelType      = 1024
	keyRasterType     = 1025
	keyGeographicType = 2048
	keyProjectedType  = 3072

	modelProjected  = 1
	modelGeographic = 2
	rasterPixelArea = 1
	rasterPixelPt   = 2

	sampleFloat = 3
)

var le = binary.LittleEndian

type entry struct {
	tag, typ uint16
	count    uint32
	data     []byte
}

func short(tag uint16, v uint16) entry {
	b := make([]byte, 2)
	le.PutUint16(b, v)
	return entry{tag: tag, typ: typeShort, count: 1, data: b}
}

func long(tag uint16, v uint32) entry {
	b := make([]byte, 4)
	le.PutUint32(b, v)
	return entry{tag: tag, typ: typeLong, count: 1, data: b}
}

func doubles(tag uint16, vs ...float64) entry {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		le.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return entry{tag: tag, typ: typeDouble, count: uint32(len(vs)), data: b}
}

func shorts(tag uint16, vs ...uint16) entry {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		le.PutUint16(b[2*i:], v)
	}
	return entry{tag: tag, typ: typeShort, count: uint32(len(vs)), data: b}
}

func ascii(tag uint16, s string) entry {
	b := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

// geoKeys returns the GeoKey directory for an EPSG code. Codes in the
// 4000 range are treated as geographic, everything else as projected.
func geoKeys(epsg int) []uint16 {
	model, key := uint16(modelProjected), uint16(keyProjectedType)
	if epsg >= 4000 && epsg < 5000 {
		model, key = modelGeographic, keyGeographicType
	}
	return []uint16{
		1, 1, 0, 3,
		keyModelType, 0, 1, model,
		keyRasterType, 0, 1, rasterPixelArea,
		key, 0, 1, uint16(epsg),
	}
}

func formatNoData(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Encode writes g north-up as a PixelIsArea float32 GeoTIFF. The tiepoint
// is the outer corner of the north-west cell, half a spacing beyond the node.
func Encode(w io.Writer, g *grid.Grid) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	if g.CRS.EPSG <= 0 || g.CRS.EPSG > math.MaxUint16 {
		return fmt.Errorf("%w: grid has no EPSG coordinate reference system", ErrExport)
	}

	var buf bytes.Buffer
	buf.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})

	dataOffset := uint32(buf.Len())
	row := make([]byte, 4*g.NX)
	for r := g.NY - 1; r >= 0; r-- {
		for c := 0; c < g.NX; c++ {
			le.PutUint32(row[4*c:], math.Float32bits(float32(g.At(c, r))))
		}
		buf.Write(row)
	}
	dataSize := uint32(buf.Len()) - dataOffset

	half := g.Spacing / 2
	entries := []entry{
		long(tagImageWidth, uint32(g.NX)),
		long(tagImageLength, uint32(g.NY)),
		short(tagBitsPerSample, 32),
		short(tagCompression, 1),
		short(tagPhotometric, 1),
		long(tagStripOffsets, dataOffset),
		short(tagSamplesPerPixel, 1),
		long(tagRowsPerStrip, uint32(g.NY)),
		long(tagStripByteCounts, dataSize),
		short(tagPlanarConfig, 1),
		short(tagSampleFormat, sampleFloat),
		doubles(tagPixelScale, g.Spacing, g.Spacing, 0),
		doubles(tagTiepoint, 0, 0, 0, g.Region.West-half, g.Region.North+half, 0),
		shorts(tagGeoKeys, geoKeys(g.CRS.EPSG)...),
		ascii(tagNoData, formatNoData(g.NoData)),
	}

	// Out-of-line values go after the pixels, then the IFD.
	offsets := make([]uint32, len(entries))
	for i, e := range entries {
		if len(e.data) <= 4 {
			continue
		}
		if buf.Len()%2 == 1 {
			buf.WriteByte(0)
		}
		offsets[i] = uint32(buf.Len())
		buf.Write(e.data)
	}
	if buf.Len()%2 == 1 {
		buf.WriteByte(0)
	}

	ifd := uint32(buf.Len())
	le.PutUint32(buf.Bytes()[4:], ifd)

	field := make([]byte, 12)
	_ = binary.Write(&buf, le, uint16(len(entries)))
	for i, e := range entries {
		le.PutUint16(field[0:], e.tag)
		le.PutUint16(field[2:], e.typ)
		le.PutUint32(field[4:], e.count)
		clear(field[8:])
		if len(e.data) <= 4 {
			copy(field[8:], e.data)
		} else {
			le.PutUint32(field[8:], offsets[i])
		}
		buf.Write(field)
	}
	_ = binary.Write(&buf, le, uint32(0))

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	return nil
}

// WriteFile encodes g to path, creating parent directories.
func WriteFile(path string, g *grid.Grid) error {
	if path == "" {
		return fmt.Errorf("%w: empty output path", ErrExport)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	if err := Encode(f, g); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}

	log.Debug().Str("path", path).Int("nx", g.NX).Int("ny", g.NY).Int("epsg", g.CRS.EPSG).Msg("GeoTIFF written")
	return nil
}
