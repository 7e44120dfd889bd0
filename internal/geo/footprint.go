package geo

import (
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
)

// Footprint builds a FeatureCollection with the region polygon as its only feature.
func Footprint(r Region, props map[string]any) *geojson.FeatureCollection {
	f := geojson.NewFeature(r.Bound().ToPolygon())
	for k, v := range props {
		f.Properties[k] = v
	}

	fc := geojson.NewFeatureCollection()
	fc.Append(f)
	return fc
}

// FootprintRegion returns the bounds of all geometries in fc.
func FootprintRegion(fc *geojson.FeatureCollection) (Region, bool) {
	if fc == nil || len(fc.Features) == 0 {
		return Region{}, false
	}
	b := fc.Features[0].Geometry.Bound()
	for _, f := range fc.Features[1:] {
		b = b.Union(f.Geometry.Bound())
	}
	return RegionFromBound(b), true
}

// WriteGeoJSON marshals fc to path, creating the parent directory.
func WriteGeoJSON(path string, fc *geojson.FeatureCollection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	log.Debug().Str("path", path).Int("features", len(fc.Features)).Msg("GeoJSON written")
	return nil
}

// ReadGeoJSON loads a FeatureCollection from path.
func ReadGeoJSON(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return geojson.UnmarshalFeatureCollection(data)
}
