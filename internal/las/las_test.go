package las

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/woozymasta/lidardsm/internal/geo"
	"github.com/woozymasta/lidardsm/internal/points"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCloud() points.Cloud {
	return points.Cloud{
		CRS: geo.EPSG(2193),
		Points: []points.Point{
			{X: 1749760.125, Y: 5426880.5, Z: 3.25, Classification: 2},
			{X: 1749761.0, Y: 5426881.75, Z: 12.5, Classification: 6},
			{X: 1749762.5, Y: 5426882.0, Z: 250.0, Classification: 18},
		},
	}
}

func encode(t *testing.T, c points.Cloud) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, c, 0.001))
	return buf.Bytes()
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	c := testCloud()
	data := encode(t, c)

	f, err := Decode(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	assert.Equal(t, "1.2", f.Header.Version())
	assert.Equal(t, uint64(3), f.Header.PointCount)
	assert.Equal(t, 2193, f.CRS.EPSG)
	require.Len(t, f.VLRs, 1)
	assert.Equal(t, projectionUserID, f.VLRs[0].UserID)

	require.Len(t, f.Points, len(c.Points))
	for i, p := range c.Points {
		assert.InDelta(t, p.X, f.Points[i].X, 0.0005)
		assert.InDelta(t, p.Y, f.Points[i].Y, 0.0005)
		assert.InDelta(t, p.Z, f.Points[i].Z, 0.0005)
		assert.Equal(t, p.Classification, f.Points[i].Classification)
	}

	assert.InDelta(t, 1749760.125, f.Header.Min[0], 1e-9)
	assert.InDelta(t, 250.0, f.Header.Max[2], 1e-9)
}

func TestDecode_EmptyCloud(t *testing.T) {
	data := encode(t, points.Cloud{})
	f, err := Decode(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Empty(t, f.Points)
	assert.True(t, f.CRS.IsZero())
}

func TestDecode_ExtendedFormatClassification(t *testing.T) {
	data := encode(t, testCloud())

	// Rewrite as point format 6 with 30-byte records holding the full classification byte.
	h, vlrs, err := decodeHeader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	h.PointFormat = 6
	h.PointRecordLength = 30

	var out bytes.Buffer
	out.Write(h.marshal())
	for _, v := range vlrs {
		out.Write(v.marshal())
	}
	for i := 0; i < int(h.PointCount); i++ {
		rec := make([]byte, 30)
		copy(rec, data[int(h.OffsetToPoints)+i*20:int(h.OffsetToPoints)+i*20+12])
		rec[16] = 40 + uint8(i)
		out.Write(rec)
	}

	f, err := Decode(bytes.NewReader(out.Bytes()), int64(out.Len()))
	require.NoError(t, err)
	require.Len(t, f.Points, 3)
	assert.Equal(t, uint8(40), f.Points[0].Classification)
	assert.Equal(t, uint8(42), f.Points[2].Classification)
	assert.InDelta(t, 12.5, f.Points[1].Z, 0.0005)
}

func TestDecode_FormatErrors(t *testing.T) {
	good := encode(t, testCloud())

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"short", func(b []byte) []byte { return b[:100] }},
		{"signature", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"version", func(b []byte) []byte { b[24] = 2; return b }},
		{"point format", func(b []byte) []byte { b[104] = 42; return b }},
		{"compressed", func(b []byte) []byte { b[104] |= 0x80; return b }},
		{"record length", func(b []byte) []byte { b[105], b[106] = 10, 0; return b }},
		{"truncated points", func(b []byte) []byte { return b[:len(b)-5] }},
		{"point offset", func(b []byte) []byte { b[96], b[97], b[98], b[99] = 0xFF, 0xFF, 0xFF, 0x00; return b }},
		{"huge 1.4 point count", func(b []byte) []byte { return asVersion14(b, 1<<61) }},
		{"1.4 count past end", func(b []byte) []byte { return asVersion14(b, 4) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), good...))
			_, err := Decode(bytes.NewReader(data), int64(len(data)))
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

// asVersion14 rewrites an encoded LAS 1.2 file as LAS 1.4 without VLRs,
// declaring count points in the 64-bit point count.
func asVersion14(las12 []byte, count uint64) []byte {
	le := binary.LittleEndian
	offset := le.Uint32(las12[96:])

	out := make([]byte, headerSize14)
	copy(out, las12[:headerSize12])
	out[25] = 4
	le.PutUint16(out[94:], headerSize14)
	le.PutUint32(out[96:], headerSize14)
	le.PutUint32(out[100:], 0)
	le.PutUint64(out[247:], count)
	return append(out, las12[offset:]...)
}

func TestDecode_Version14Count(t *testing.T) {
	data := asVersion14(encode(t, testCloud()), 3)

	f, err := Decode(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, "1.4", f.Header.Version())
	assert.Equal(t, uint64(3), f.Header.PointCount)
	assert.Len(t, f.Points, 3)
}

func TestEncode_RejectsBadScale(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Encode(&buf, testCloud(), 0))
	assert.Error(t, Encode(&buf, points.Cloud{Points: []points.Point{{X: 0}, {X: 1e12}}}, 0.001))
}

func TestEPSGFromGeoKeys(t *testing.T) {
	assert.Equal(t, 2193, epsgFromGeoKeys(geoKeyVLR(2193).Data))
	assert.Equal(t, 0, epsgFromGeoKeys([]byte{1, 2}))
}

func TestCRS_WKT(t *testing.T) {
	crs := CRS([]VLR{{UserID: projectionUserID, RecordID: wktRecord, Data: []byte("PROJCS[\"NZGD2000\"]\x00")}})
	assert.Equal(t, "PROJCS[\"NZGD2000\"]", crs.WKT)
	assert.Zero(t, crs.EPSG)
}

func TestCRS_WKTAuthority(t *testing.T) {
	wkt := `PROJCS["NZGD2000 / New Zealand Transverse Mercator 2000",GEOGCS["NZGD2000",AUTHORITY["EPSG","4167"]],AUTHORITY["EPSG","2193"]]`
	crs := CRS([]VLR{wktVLR(wkt)})
	assert.Equal(t, 2193, crs.EPSG)
	assert.Equal(t, wkt, crs.WKT)
}

func TestEncodeDecode_WKTOnly(t *testing.T) {
	wkt := `PROJCS["NZTM",AUTHORITY["EPSG","2193"]]`
	c := testCloud()
	c.CRS = geo.CRS{WKT: wkt}
	data := encode(t, c)

	f, err := Decode(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, f.VLRs, 1)
	assert.Equal(t, uint16(wktRecord), f.VLRs[0].RecordID)
	assert.Equal(t, geo.CRS{EPSG: 2193, WKT: wkt}, f.CRS)
}

func TestLoadAll_ConcatenatesInOrder(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.las")
	b := filepath.Join(dir, "b.las")
	require.NoError(t, WriteFile(a, testCloud(), 0.01))
	require.NoError(t, WriteFile(b, points.Cloud{Points: []points.Point{{X: 5, Y: 6, Z: 7, Classification: 2}}}, 0.01))

	cloud, err := LoadAll(context.Background(), []string{a, b}, Decompressor{})
	require.NoError(t, err)
	assert.Equal(t, 4, cloud.Len())
	assert.Equal(t, 2193, cloud.CRS.EPSG)
	assert.InDelta(t, 5.0, cloud.Points[3].X, 0.005)
}

func TestLoad_LAZWithoutTool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.laz")
	require.NoError(t, os.WriteFile(path, []byte("not really"), 0644))

	_, err := Load(context.Background(), path, Decompressor{Command: "lidardsm-missing-laszip"})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestLoad_LAZThroughDecompressor(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script decompressor")
	}
	dir := t.TempDir()

	// Stand-in for laszip: copies -i <in> to -o <out>.
	tool := filepath.Join(dir, "fake-laszip")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\ncp \"$2\" \"$4\"\n"), 0755))

	path := filepath.Join(dir, "tile.laz")
	require.NoError(t, WriteFile(path, testCloud(), 0.001))

	f, err := Load(context.Background(), path, Decompressor{Command: tool, TempDir: dir})
	require.NoError(t, err)
	assert.Len(t, f.Points, 3)

	leftovers, err := filepath.Glob(filepath.Join(dir, "lidardsm-laz-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestIsCompressed(t *testing.T) {
	assert.True(t, IsCompressed("a/b/CL2_BQ31_2019_1000_2138.laz"))
	assert.True(t, IsCompressed("X.LAZ"))
	assert.False(t, IsCompressed("x.las"))
}
