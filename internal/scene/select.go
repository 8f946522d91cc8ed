package scene

import (
	"fmt"
	"sort"
	"time"

	"github.com/forest-guardian/sentinel-mosaic/internal/raster"
)

// Filter returns the scenes whose footprint overlaps the destination grid
// and whose sensing time falls inside the inclusive date window. Scene
// corners are transformed into the destination CRS before the rectangle
// test. An empty result is a valid "no coverage" outcome, not an error.
// Scenes whose corners cannot be transformed are skipped with a warning.
func Filter(scenes []*Scene, dst raster.Grid, start, end time.Time, transform raster.TransformFunc) []*Scene {
	var selected []*Scene

	for _, s := range scenes {
		if s.SensingTime.Before(start) || s.SensingTime.After(end) {
			continue
		}

		xs := []float64{s.Grid.Extent.XMin, s.Grid.Extent.XMax}
		ys := []float64{s.Grid.Extent.YMin, s.Grid.Extent.YMax}
		if err := transform(s.Grid.EPSG, dst.EPSG, xs, ys); err != nil {
			fmt.Printf("warning: skipping %s: %v\n", s.Name(), err)
			continue
		}

		footprint := raster.Extent{
			XMin: min(xs[0], xs[1]),
			YMin: min(ys[0], ys[1]),
			XMax: max(xs[0], xs[1]),
			YMax: max(ys[0], ys[1]),
		}

		if footprint.Disjoint(dst.Extent) {
			continue
		}

		selected = append(selected, s)
	}

	return selected
}

// Sort orders scenes by tile identifier, then by sensing time ascending.
// Repeat passes of the same footprint are then considered together in
// temporal sequence, which minimises spurious seams.
func Sort(scenes []*Scene) {
	sort.SliceStable(scenes, func(i, j int) bool {
		if scenes[i].Tile != scenes[j].Tile {
			return scenes[i].Tile < scenes[j].Tile
		}
		return scenes[i].SensingTime.Before(scenes[j].SensingTime)
	})
}
