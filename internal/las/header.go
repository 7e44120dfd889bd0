// Package las reads and writes ASPRS LAS point cloud files (versions 1.0-1.4,
// point formats 0-10). Compressed LAZ input is decompressed to LAS by an
// external laszip executable first.
package las

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrFormat is returned for corrupt or unsupported point cloud files.
var ErrFormat = errors.New("point cloud format error")

const (
	signature      = "LASF"
	headerSize12   = 227
	headerSize13   = 235
	headerSize14   = 375
	vlrHeaderSize  = 54
	evlrHeaderSize = 60
)

// minimum record length per point data format.
var recordLengths = map[uint8]uint16{
	0: 20, 1: 28, 2: 26, 3: 34, 4: 57, 5: 63,
	6: 30, 7: 36, 8: 38, 9: 59, 10: 67,
}

// Header is the LAS public header block.
type Header struct {
	FileSourceID       uint16     `json:"file_source_id" yaml:"file_source_id"`
	GlobalEncoding     uint16     `json:"global_encoding" yaml:"global_encoding"`
	VersionMajor       uint8      `json:"version_major" yaml:"version_major"`
	VersionMinor       uint8      `json:"version_minor" yaml:"version_minor"`
	SystemIdentifier   string     `json:"system_identifier" yaml:"system_identifier"`
	GeneratingSoftware string     `json:"generating_software" yaml:"generating_software"`
	CreationDay        uint16     `json:"creation_day" yaml:"creation_day"`
	CreationYear       uint16     `json:"creation_year" yaml:"creation_year"`
	HeaderSize         uint16     `json:"header_size" yaml:"header_size"`
	OffsetToPoints     uint32     `json:"offset_to_points" yaml:"offset_to_points"`
	NumberOfVLRs       uint32     `json:"number_of_vlrs" yaml:"number_of_vlrs"`
	PointFormat        uint8      `json:"point_format" yaml:"point_format"`
	PointRecordLength  uint16     `json:"point_record_length" yaml:"point_record_length"`
	PointCount         uint64     `json:"point_count" yaml:"point_count"`
	Scale              [3]float64 `json:"scale" yaml:"scale,flow"`
	Offset             [3]float64 `json:"offset" yaml:"offset,flow"`
	Min                [3]float64 `json:"min" yaml:"min,flow"`
	Max                [3]float64 `json:"max" yaml:"max,flow"`
}

// Version returns the "major.minor" version string.
func (h Header) Version() string {
	return fmt.Sprintf("%d.%d", h.VersionMajor, h.VersionMinor)
}

// Created returns the creation date encoded as day-of-year and year.
func (h Header) Created() time.Time {
	if h.CreationYear == 0 {
		return time.Time{}
	}
	return time.Date(int(h.CreationYear), 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(h.CreationDay)-1)
}

func parseHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < headerSize12 {
		return h, fmt.Errorf("%w: header is %d bytes, need at least %d", ErrFormat, len(buf), headerSize12)
	}
	if string(buf[0:4]) != signature {
		return h, fmt.Errorf("%w: bad file signature %q", ErrFormat, buf[0:4])
	}

	le := binary.LittleEndian
	h.FileSourceID = le.Uint16(buf[4:])
	h.GlobalEncoding = le.Uint16(buf[6:])
	h.VersionMajor = buf[24]
	h.VersionMinor = buf[25]
	h.SystemIdentifier = cString(buf[26:58])
	h.GeneratingSoftware = cString(buf[58:90])
	h.CreationDay = le.Uint16(buf[90:])
	h.CreationYear = le.Uint16(buf[92:])
	h.HeaderSize = le.Uint16(buf[94:])
	h.OffsetToPoints = le.Uint32(buf[96:])
	h.NumberOfVLRs = le.Uint32(buf[100:])
	h.PointFormat = buf[104]
	h.PointRecordLength = le.Uint16(buf[105:])
	h.PointCount = uint64(le.Uint32(buf[107:]))

	for i := 0; i < 3; i++ {
		h.Scale[i] = f64(buf[131+8*i:])
		h.Offset[i] = f64(buf[155+8*i:])
		h.Max[i] = f64(buf[179+16*i:])
		h.Min[i] = f64(buf[187+16*i:])
	}

	if h.VersionMajor != 1 || h.VersionMinor > 4 {
		return h, fmt.Errorf("%w: unsupported version %s", ErrFormat, h.Version())
	}
	if h.HeaderSize < headerSize12 {
		return h, fmt.Errorf("%w: header size %d out of range", ErrFormat, h.HeaderSize)
	}
	if h.VersionMinor >= 4 && h.HeaderSize >= headerSize14 && len(buf) >= headerSize14 {
		if n := le.Uint64(buf[247:]); n > 0 {
			h.PointCount = n
		}
	}

	// Compressed point formats set bits 6 and 7 (LASzip convention).
	format := h.PointFormat &^ 0xC0
	if format != h.PointFormat {
		return h, fmt.Errorf("%w: point data is LAZ-compressed", ErrFormat)
	}
	minLen, ok := recordLengths[format]
	if !ok {
		return h, fmt.Errorf("%w: unsupported point format %d", ErrFormat, h.PointFormat)
	}
	if h.PointRecordLength < minLen {
		return h, fmt.Errorf("%w: record length %d too small for point format %d (need %d)",
			ErrFormat, h.PointRecordLength, format, minLen)
	}
	for i, s := range h.Scale {
		if s == 0 {
			return h, fmt.Errorf("%w: zero scale factor on axis %d", ErrFormat, i)
		}
	}
	return h, nil
}

func (h Header) marshal() []byte {
	buf := make([]byte, headerSize12)
	le := binary.LittleEndian

	copy(buf[0:4], signature)
	le.PutUint16(buf[4:], h.FileSourceID)
	le.PutUint16(buf[6:], h.GlobalEncoding)
	buf[24] = h.VersionMajor
	buf[25] = h.VersionMinor
	copy(buf[26:58], h.SystemIdentifier)
	copy(buf[58:90], h.GeneratingSoftware)
	le.PutUint16(buf[90:], h.CreationDay)
	le.PutUint16(buf[92:], h.CreationYear)
	le.PutUint16(buf[94:], headerSize12)
	le.PutUint32(buf[96:], h.OffsetToPoints)
	le.PutUint32(buf[100:], h.NumberOfVLRs)
	buf[104] = h.PointFormat
	le.PutUint16(buf[105:], h.PointRecordLength)
	le.PutUint32(buf[107:], uint32(h.PointCount))
	le.PutUint32(buf[111:], uint32(h.PointCount))

	for i := 0; i < 3; i++ {
		putF64(buf[131+8*i:], h.Scale[i])
		putF64(buf[155+8*i:], h.Offset[i])
		putF64(buf[179+16*i:], h.Max[i])
		putF64(buf[187+16*i:], h.Min[i])
	}
	return buf
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}
