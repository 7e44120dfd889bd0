package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEPSGFromWKT(t *testing.T) {
	tests := []struct {
		name string
		wkt  string
		want int
	}{
		{
			name: "wkt1 projected",
			wkt: `PROJCS["NZGD2000 / New Zealand Transverse Mercator 2000",GEOGCS["NZGD2000",` +
				`DATUM["New_Zealand_Geodetic_Datum_2000",SPHEROID["GRS 1980",6378137,298.257222101,` +
				`AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","6167"]],AUTHORITY["EPSG","4167"]],` +
				`PROJECTION["Transverse_Mercator"],UNIT["metre",1],AXIS["Easting",EAST],AUTHORITY["EPSG","2193"]]`,
			want: 2193,
		},
		{
			name: "wkt2 projected",
			wkt: `PROJCRS["NZGD2000 / New Zealand Transverse Mercator 2000",` +
				`BASEGEOGCRS["NZGD2000",DATUM["New Zealand Geodetic Datum 2000"],ID["EPSG",4167]],` +
				`CONVERSION["New Zealand Transverse Mercator 2000",METHOD["Transverse Mercator",ID["EPSG",9807]]],` +
				`ID["EPSG",2193]]`,
			want: 2193,
		},
		{
			name: "compound takes horizontal part",
			wkt: `COMPD_CS["NZTM + NZVD2016",PROJCS["NZTM",UNIT["metre",1],AUTHORITY["EPSG","2193"]],` +
				`VERT_CS["NZVD2016 height",VERT_DATUM["NZVD2016",2005],AUTHORITY["EPSG","7839"]]]`,
			want: 2193,
		},
		{
			name: "geographic",
			wkt:  `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],AUTHORITY["EPSG","4326"]]`,
			want: 4326,
		},
		{
			name: "escaped quote in name",
			wkt:  `PROJCS["Grid ""A""",AUTHORITY["EPSG","32760"]]`,
			want: 32760,
		},
		{name: "nested authority only", wkt: `PROJCS["x",GEOGCS["y",AUTHORITY["EPSG","4167"]]]`, want: 0},
		{name: "other authority", wkt: `PROJCS["x",AUTHORITY["ESRI","102100"]]`, want: 0},
		{name: "unterminated", wkt: `PROJCS["x",AUTHORITY["EPSG","2193"]`, want: 0},
		{name: "empty", wkt: "", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EPSGFromWKT(tt.wkt))
		})
	}
}
