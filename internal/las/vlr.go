package las

import (
	"encoding/binary"
	"math"

	"github.com/woozymasta/lidardsm/internal/geo"
)

const (
	projectionUserID      = "LASF_Projection"
	geoKeyDirectoryRecord = 34735
	wktRecord             = 2112

	geoKeyProjectedCSType = 3072
	geoKeyGeographicType  = 2048
)

// VLR is a variable length record attached to the header.
type VLR struct {
	UserID      string `json:"user_id" yaml:"user_id"`
	RecordID    uint16 `json:"record_id" yaml:"record_id"`
	Description string `json:"description" yaml:"description"`
	Data        []byte `json:"-" yaml:"-"`
}

// CRS extracts the coordinate reference system from projection VLRs.
// The GeoKey EPSG code is preferred. Without one, the code is read from the
// WKT authority. WKT is kept alongside when present.
func CRS(vlrs []VLR) geo.CRS {
	var crs geo.CRS
	for _, v := range vlrs {
		if v.UserID != projectionUserID {
			continue
		}
		switch v.RecordID {
		case geoKeyDirectoryRecord:
			if code := epsgFromGeoKeys(v.Data); code > 0 {
				crs.EPSG = code
			}
		case wktRecord:
			crs.WKT = cString(v.Data)
		}
	}
	if crs.EPSG == 0 && crs.WKT != "" {
		crs.EPSG = geo.EPSGFromWKT(crs.WKT)
	}
	return crs
}

func epsgFromGeoKeys(data []byte) int {
	if len(data) < 8 {
		return 0
	}
	le := binary.LittleEndian
	numKeys := int(le.Uint16(data[6:]))
	geographic := 0
	for i := 0; i < numKeys; i++ {
		off := 8 + i*8
		if off+8 > len(data) {
			break
		}
		keyID := le.Uint16(data[off:])
		location := le.Uint16(data[off+2:])
		value := int(le.Uint16(data[off+6:]))
		if location != 0 || value == 0 || value == 32767 {
			continue
		}
		switch keyID {
		case geoKeyProjectedCSType:
			return value
		case geoKeyGeographicType:
			geographic = value
		}
	}
	return geographic
}

// geoKeyVLR builds a minimal GeoKeyDirectory VLR declaring a projected EPSG code.
func geoKeyVLR(epsg int) VLR {
	keys := []uint16{
		1, 1, 0, 3, // directory header: version, revision, minor, key count
		1024, 0, 1, 1, // GTModelTypeGeoKey = projected
		1025, 0, 1, 1, // GTRasterTypeGeoKey = pixel is area
		geoKeyProjectedCSType, 0, 1, uint16(epsg),
	}
	data := make([]byte, 2*len(keys))
	for i, k := range keys {
		binary.LittleEndian.PutUint16(data[2*i:], k)
	}
	return VLR{
		UserID:      projectionUserID,
		RecordID:    geoKeyDirectoryRecord,
		Description: "GeoTiff GeoKeyDirectoryTag",
		Data:        data,
	}
}

func wktVLR(wkt string) VLR {
	return VLR{
		UserID:      projectionUserID,
		RecordID:    wktRecord,
		Description: "OGC COORDINATE SYSTEM WKT",
		Data:        append([]byte(wkt), 0),
	}
}

func (v VLR) marshal() []byte {
	buf := make([]byte, vlrHeaderSize+len(v.Data))
	copy(buf[2:18], v.UserID)
	binary.LittleEndian.PutUint16(buf[18:], v.RecordID)
	binary.LittleEndian.PutUint16(buf[20:], uint16(len(v.Data)))
	copy(buf[22:54], v.Description)
	copy(buf[vlrHeaderSize:], v.Data)
	return buf
}

func f64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func putF64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}
