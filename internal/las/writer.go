package las

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/woozymasta/lidardsm/internal/points"
)

const (
	writerSoftware     = "lidardsm"
	writerPointFormat  = 0
	writerRecordLength = 20
)

// Encode writes the cloud as a LAS 1.2 file with point format 0.
// Coordinates are quantised to scale; offsets are the cloud minimum.
// A known EPSG code is recorded in a GeoKeyDirectory VLR and WKT in an
// OGC WKT VLR.
func Encode(w io.Writer, c points.Cloud, scale float64) error {
	if scale <= 0 {
		return fmt.Errorf("scale must be positive, got %g", scale)
	}
	if uint64(len(c.Points)) > math.MaxUint32 {
		return fmt.Errorf("too many points for LAS 1.2: %d", len(c.Points))
	}

	var vlrs []VLR
	if c.CRS.EPSG > 0 {
		vlrs = append(vlrs, geoKeyVLR(c.CRS.EPSG))
	}
	if c.CRS.WKT != "" {
		if len(c.CRS.WKT) >= math.MaxUint16 {
			return fmt.Errorf("WKT of %d bytes does not fit a VLR", len(c.CRS.WKT))
		}
		vlrs = append(vlrs, wktVLR(c.CRS.WKT))
	}
	vlrBytes := 0
	for _, v := range vlrs {
		vlrBytes += vlrHeaderSize + len(v.Data)
	}

	now := time.Now().UTC()
	h := Header{
		VersionMajor:       1,
		VersionMinor:       2,
		SystemIdentifier:   "OTHER",
		GeneratingSoftware: writerSoftware,
		CreationDay:        uint16(now.YearDay()),
		CreationYear:       uint16(now.Year()),
		HeaderSize:         headerSize12,
		OffsetToPoints:     uint32(headerSize12 + vlrBytes),
		NumberOfVLRs:       uint32(len(vlrs)),
		PointFormat:        writerPointFormat,
		PointRecordLength:  writerRecordLength,
		PointCount:         uint64(len(c.Points)),
		Scale:              [3]float64{scale, scale, scale},
	}

	if r, ok := c.Region(); ok {
		lo, hi, _ := c.ZRange()
		h.Min = [3]float64{r.West, r.South, lo}
		h.Max = [3]float64{r.East, r.North, hi}
		h.Offset = [3]float64{
			math.Floor(r.West), math.Floor(r.South), math.Floor(lo),
		}
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(h.marshal()); err != nil {
		return err
	}
	for _, v := range vlrs {
		if _, err := bw.Write(v.marshal()); err != nil {
			return err
		}
	}

	rec := make([]byte, writerRecordLength)
	le := binary.LittleEndian
	for i, p := range c.Points {
		x, err := quantise(p.X, h.Offset[0], scale)
		if err != nil {
			return fmt.Errorf("point %d x: %w", i, err)
		}
		y, err := quantise(p.Y, h.Offset[1], scale)
		if err != nil {
			return fmt.Errorf("point %d y: %w", i, err)
		}
		z, err := quantise(p.Z, h.Offset[2], scale)
		if err != nil {
			return fmt.Errorf("point %d z: %w", i, err)
		}

		clear(rec)
		le.PutUint32(rec[0:], uint32(x))
		le.PutUint32(rec[4:], uint32(y))
		le.PutUint32(rec[8:], uint32(z))
		rec[14] = 0x09 // return 1 of 1
		rec[15] = p.Classification & 0x1F
		if _, err := bw.Write(rec); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile encodes the cloud to path, creating parent directories.
func WriteFile(path string, c points.Cloud, scale float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, c, scale); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func quantise(v, offset, scale float64) (int32, error) {
	q := math.Round((v - offset) / scale)
	if q > math.MaxInt32 || q < math.MinInt32 {
		return 0, fmt.Errorf("value %g does not fit scale %g", v, scale)
	}
	return int32(q), nil
}
