package geo

import (
	"fmt"
	"strconv"
	"strings"
)

// CRS identifies a projected coordinate reference system.
// A zero EPSG code means the system is unknown.
type CRS struct {
	EPSG int    `json:"epsg,omitempty" yaml:"epsg,omitempty"`
	WKT  string `json:"wkt,omitempty" yaml:"-"`
}

// EPSG returns a CRS for the given EPSG code.
func EPSG(code int) CRS {
	return CRS{EPSG: code}
}

// ParseCRS parses "EPSG:2193" or a bare code such as "2193".
func ParseCRS(s string) (CRS, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return CRS{}, nil
	}
	raw = strings.TrimPrefix(strings.ToUpper(raw), "EPSG:")
	code, err := strconv.Atoi(raw)
	if err != nil || code <= 0 {
		return CRS{}, fmt.Errorf("invalid CRS %q: expected EPSG:<code>", s)
	}
	return CRS{EPSG: code}, nil
}

// IsZero reports whether neither an EPSG code nor WKT is known.
func (c CRS) IsZero() bool {
	return c.EPSG == 0 && c.WKT == ""
}

func (c CRS) String() string {
	if c.EPSG > 0 {
		return "EPSG:" + strconv.Itoa(c.EPSG)
	}
	if c.WKT != "" {
		return "WKT"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler; unknown systems encode as "".
func (c CRS) MarshalText() ([]byte, error) {
	if c.EPSG <= 0 {
		return []byte{}, nil
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CRS) UnmarshalText(text []byte) error {
	crs, err := ParseCRS(string(text))
	if err != nil {
		return err
	}
	*c = crs
	return nil
}
