package las

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/woozymasta/lidardsm/internal/geo"
	"github.com/woozymasta/lidardsm/internal/points"
)

// File is a decoded LAS file.
type File struct {
	Header Header
	VLRs   []VLR
	CRS    geo.CRS
	Points []points.Point
}

// Cloud returns the decoded points as a point cloud.
func (f *File) Cloud() points.Cloud {
	return points.Cloud{Points: f.Points, CRS: f.CRS}
}

// ReadFile decodes the LAS file at path.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	lf, err := Decode(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lf, nil
}

// ReadHeader decodes only the header and VLRs of the LAS file at path.
func ReadHeader(path string) (Header, []VLR, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return Header{}, nil, err
	}
	return decodeHeader(f, info.Size())
}

// Decode reads a complete LAS file of the given size from r.
func Decode(r io.ReaderAt, size int64) (*File, error) {
	h, vlrs, err := decodeHeader(r, size)
	if err != nil {
		return nil, err
	}

	avail := uint64(size - int64(h.OffsetToPoints))
	if h.PointCount > avail/uint64(h.PointRecordLength) {
		return nil, fmt.Errorf("%w: file is %d bytes, header declares %d points of %d bytes",
			ErrFormat, size, h.PointCount, h.PointRecordLength)
	}

	need := int64(h.PointCount) * int64(h.PointRecordLength)
	pts, err := decodePoints(io.NewSectionReader(r, int64(h.OffsetToPoints), need), h)
	if err != nil {
		return nil, err
	}

	return &File{Header: h, VLRs: vlrs, CRS: CRS(vlrs), Points: pts}, nil
}

func decodeHeader(r io.ReaderAt, size int64) (Header, []VLR, error) {
	n := int64(headerSize14)
	if size < n {
		n = size
	}
	buf := make([]byte, n)
	if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
		return Header{}, nil, fmt.Errorf("%w: reading header: %v", ErrFormat, err)
	}

	h, err := parseHeader(buf)
	if err != nil {
		return h, nil, err
	}
	if int64(h.OffsetToPoints) < int64(h.HeaderSize) || int64(h.OffsetToPoints) > size {
		return h, nil, fmt.Errorf("%w: point data offset %d out of range", ErrFormat, h.OffsetToPoints)
	}

	vlrs, err := decodeVLRs(r, h)
	if err != nil {
		return h, nil, err
	}
	return h, vlrs, nil
}

func decodeVLRs(r io.ReaderAt, h Header) ([]VLR, error) {
	vlrs := make([]VLR, 0, h.NumberOfVLRs)
	off := int64(h.HeaderSize)
	end := int64(h.OffsetToPoints)
	hdr := make([]byte, vlrHeaderSize)

	for i := uint32(0); i < h.NumberOfVLRs; i++ {
		if off+vlrHeaderSize > end {
			return nil, fmt.Errorf("%w: VLR %d overruns point data offset", ErrFormat, i)
		}
		if _, err := r.ReadAt(hdr, off); err != nil {
			return nil, fmt.Errorf("%w: reading VLR %d: %v", ErrFormat, i, err)
		}

		length := int64(binary.LittleEndian.Uint16(hdr[20:]))
		if off+vlrHeaderSize+length > end {
			return nil, fmt.Errorf("%w: VLR %d payload overruns point data offset", ErrFormat, i)
		}

		data := make([]byte, length)
		if _, err := r.ReadAt(data, off+vlrHeaderSize); err != nil {
			return nil, fmt.Errorf("%w: reading VLR %d payload: %v", ErrFormat, i, err)
		}

		vlrs = append(vlrs, VLR{
			UserID:      cString(hdr[2:18]),
			RecordID:    binary.LittleEndian.Uint16(hdr[18:]),
			Description: cString(hdr[22:54]),
			Data:        data,
		})
		off += vlrHeaderSize + length
	}
	return vlrs, nil
}

func decodePoints(r io.Reader, h Header) ([]points.Point, error) {
	le := binary.LittleEndian
	extended := h.PointFormat >= 6
	rec := make([]byte, h.PointRecordLength)
	br := bufio.NewReaderSize(r, 1<<20)

	pts := make([]points.Point, h.PointCount)
	for i := range pts {
		if _, err := io.ReadFull(br, rec); err != nil {
			return nil, fmt.Errorf("%w: reading point %d: %v", ErrFormat, i, err)
		}

		p := &pts[i]
		p.X = float64(int32(le.Uint32(rec[0:])))*h.Scale[0] + h.Offset[0]
		p.Y = float64(int32(le.Uint32(rec[4:])))*h.Scale[1] + h.Offset[1]
		p.Z = float64(int32(le.Uint32(rec[8:])))*h.Scale[2] + h.Offset[2]
		if extended {
			p.Classification = rec[16]
		} else {
			p.Classification = rec[15] & 0x1F
		}
	}
	return pts, nil
}
