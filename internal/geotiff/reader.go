package geotiff

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/woozymasta/lidardsm/internal/geo"
	"github.com/woozymasta/lidardsm/internal/grid"
)

type field struct {
	typ   uint16
	count uint32
	raw   []byte
}

var typeSize = map[uint16]int{1: 1, typeASCII: 1, typeShort: 2, typeLong: 4, 11: 4, typeDouble: 8}

func (f field) ints() []uint64 {
	out := make([]uint64, 0, f.count)
	for i := 0; i < int(f.count); i++ {
		switch f.typ {
		case typeShort:
			out = append(out, uint64(le.Uint16(f.raw[2*i:])))
		case typeLong:
			out = append(out, uint64(le.Uint32(f.raw[4*i:])))
		case 1:
			out = append(out, uint64(f.raw[i]))
		}
	}
	return out
}

func (f field) floats() []float64 {
	if f.typ != typeDouble {
		return nil
	}
	out := make([]float64, f.count)
	for i := range out {
		out[i] = math.Float64frombits(le.Uint64(f.raw[8*i:]))
	}
	return out
}

func (f field) first() uint64 {
	if v := f.ints(); len(v) > 0 {
		return v[0]
	}
	return 0
}

// Decode reads a little-endian, uncompressed, single-band float32 GeoTIFF.
func Decode(r io.Reader) (*grid.Grid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExport, err)
	}
	if len(data) < 8 || string(data[:2]) != "II" || le.Uint16(data[2:]) != 42 {
		return nil, fmt.Errorf("%w: not a little-endian TIFF", ErrExport)
	}

	fields, err := readIFD(data, le.Uint32(data[4:]))
	if err != nil {
		return nil, err
	}
	need := func(tag uint16) (field, error) {
		f, ok := fields[tag]
		if !ok {
			return field{}, fmt.Errorf("%w: missing TIFF tag %d", ErrExport, tag)
		}
		return f, nil
	}

	for tag, want := range map[uint16]uint64{
		tagBitsPerSample:   32,
		tagSamplesPerPixel: 1,
		tagSampleFormat:    sampleFloat,
	} {
		f, err := need(tag)
		if err != nil {
			return nil, err
		}
		if f.first() != want {
			return nil, fmt.Errorf("%w: tag %d is %d, want %d", ErrExport, tag, f.first(), want)
		}
	}
	if f, ok := fields[tagCompression]; ok && f.first() != 1 {
		return nil, fmt.Errorf("%w: compression %d unsupported", ErrExport, f.first())
	}

	var tags [6]field
	for i, tag := range []uint16{tagImageWidth, tagImageLength, tagStripOffsets, tagStripByteCounts, tagPixelScale, tagTiepoint} {
		if tags[i], err = need(tag); err != nil {
			return nil, err
		}
	}
	nx, ny := int(tags[0].first()), int(tags[1].first())
	offsets, counts := tags[2].ints(), tags[3].ints()
	scale, tie := tags[4].floats(), tags[5].floats()
	if nx <= 0 || ny <= 0 || len(offsets) != len(counts) || len(scale) < 2 || len(tie) < 6 {
		return nil, fmt.Errorf("%w: malformed raster layout", ErrExport)
	}
	if math.Abs(scale[0]-scale[1]) > 1e-9*scale[0] {
		return nil, fmt.Errorf("%w: non-square pixels %gx%g", ErrExport, scale[0], scale[1])
	}

	pixels := make([]byte, 0, 4*nx*ny)
	for i, off := range offsets {
		end := off + counts[i]
		if end > uint64(len(data)) {
			return nil, fmt.Errorf("%w: strip %d beyond end of file", ErrExport, i)
		}
		pixels = append(pixels, data[off:end]...)
	}
	if len(pixels) < 4*nx*ny {
		return nil, fmt.Errorf("%w: %d pixel bytes for %dx%d raster", ErrExport, len(pixels), nx, ny)
	}

	spacing := scale[0]
	epsg, raster := 0, rasterPixelArea
	if f, ok := fields[tagGeoKeys]; ok {
		epsg, raster = parseGeoKeys(f.ints())
	}
	west, north := tie[3], tie[4]
	if raster == rasterPixelArea {
		west += spacing / 2
		north -= spacing / 2
	}
	region := geo.Region{
		West:  west,
		East:  west + float64(nx-1)*spacing,
		South: north - float64(ny-1)*spacing,
		North: north,
	}

	g := &grid.Grid{
		NX:      nx,
		NY:      ny,
		Spacing: spacing,
		Region:  region,
		CRS:     geo.EPSG(epsg),
		NoData:  math.NaN(),
		Values:  make([]float64, nx*ny),
	}
	if f, ok := fields[tagNoData]; ok {
		s := strings.TrimSpace(strings.TrimRight(string(f.raw), "\x00"))
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			g.NoData = v
		}
	}
	if epsg == 0 {
		g.CRS = geo.CRS{}
	}

	for tr := 0; tr < ny; tr++ {
		r := ny - 1 - tr
		for c := 0; c < nx; c++ {
			bits := le.Uint32(pixels[4*(tr*nx+c):])
			v := float64(math.Float32frombits(bits))
			if !math.IsNaN(g.NoData) && v == g.NoData {
				v = math.NaN()
			}
			g.Set(c, r, v)
		}
	}
	return g, nil
}

func readIFD(data []byte, off uint32) (map[uint16]field, error) {
	if uint64(off)+2 > uint64(len(data)) {
		return nil, fmt.Errorf("%w: IFD offset %d beyond end of file", ErrExport, off)
	}
	n := int(le.Uint16(data[off:]))
	end := uint64(off) + 2 + uint64(n)*12
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: truncated IFD", ErrExport)
	}

	fields := make(map[uint16]field, n)
	for i := 0; i < n; i++ {
		e := data[int(off)+2+12*i:]
		tag, typ, count := le.Uint16(e), le.Uint16(e[2:]), le.Uint32(e[4:])
		size, ok := typeSize[typ]
		if !ok {
			continue
		}
		total := uint64(size) * uint64(count)
		raw := e[8:12]
		if total > 4 {
			vo := uint64(le.Uint32(e[8:]))
			if vo+total > uint64(len(data)) {
				return nil, fmt.Errorf("%w: tag %d value beyond end of file", ErrExport, tag)
			}
			raw = data[vo : vo+total]
		}
		fields[tag] = field{typ: typ, count: count, raw: raw[:min(total, uint64(len(raw)))]}
	}
	return fields, nil
}

// parseGeoKeys returns the EPSG code and raster type from a GeoKey directory.
func parseGeoKeys(keys []uint64) (epsg, raster int) {
	raster = rasterPixelArea
	if len(keys) < 4 {
		return 0, raster
	}
	n := int(keys[3])
	for i := 0; i < n && 4+4*i+3 < len(keys); i++ {
		k := keys[4+4*i:]
		if k[1] != 0 {
			continue
		}
		switch k[0] {
		case keyProjectedType, keyGeographicType:
			if epsg == 0 || k[0] == keyProjectedType {
				epsg = int(k[3])
			}
		case keyRasterType:
			raster = int(k[3])
		}
	}
	return epsg, raster
}

// ReadFile decodes the GeoTIFF at path.
func ReadFile(path string) (*grid.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExport, err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}
