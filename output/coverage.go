package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/forest-guardian/sentinel-mosaic/internal/mosaic"
	"github.com/forest-guardian/sentinel-mosaic/internal/raster"
	"github.com/forest-guardian/sentinel-mosaic/internal/scene"
)

// CreateCoverageGeoJson writes a FeatureCollection with one WGS84 footprint
// polygon per input scene, annotated with how many output pixels the scene
// supplied.
func CreateCoverageGeoJson(m *mosaic.Mosaic, scenes []*scene.Scene, outputPath string) error {
	if !strings.HasSuffix(outputPath, ".geojson") {
		outputPath += ".geojson"
	}

	counts := m.ContributionCounts(len(scenes))
	total := float64(m.Grid.NPixels())

	fc := geojson.NewFeatureCollection()
	for i, s := range scenes {
		footprint, err := footprintPolygon(s.Grid)
		if err != nil {
			fmt.Printf("warning: skipping footprint of %s: %v\n", s.Name(), err)
			continue
		}

		feature := geojson.NewFeature(footprint)
		feature.Properties["granule"] = s.Name()
		feature.Properties["tile"] = s.Tile
		feature.Properties["sensing_time"] = s.SensingTime.Format("2006-01-02T15:04:05")
		feature.Properties["pixels"] = counts[i+1]
		feature.Properties["cover_percent"] = 100 * float64(counts[i+1]) / total
		fc.Append(feature)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode coverage GeoJSON: %v", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write coverage GeoJSON: %v", err)
	}

	fmt.Println("GeoJSON file created successfully at", outputPath)
	return nil
}

// footprintPolygon transforms the scene grid's corners to WGS84.
func footprintPolygon(g raster.Grid) (orb.Polygon, error) {
	xs := []float64{g.Extent.XMin, g.Extent.XMax, g.Extent.XMax, g.Extent.XMin}
	ys := []float64{g.Extent.YMin, g.Extent.YMin, g.Extent.YMax, g.Extent.YMax}
	if err := raster.TransformPoints(g.EPSG, 4326, xs, ys); err != nil {
		return nil, err
	}

	ring := orb.Ring{
		{xs[0], ys[0]},
		{xs[1], ys[1]},
		{xs[2], ys[2]},
		{xs[3], ys[3]},
		{xs[0], ys[0]},
	}
	return orb.Polygon{ring}, nil
}
