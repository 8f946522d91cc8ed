package mosaic

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/forest-guardian/sentinel-mosaic/internal/raster"
)

// SceneFootprint is the part of a scene's metadata the visitation ordering
// needs.
type SceneFootprint struct {
	Tile   string
	EPSG   int
	Extent raster.Extent
}

// VisitationOrder returns 1-indexed scene numbers in the order band
// compositing should visit them: the scene belonging to the
// highest-contributing tile first, then outward by centroid distance, so
// radiometric matching always has a maximal, spatially coherent reference
// before peripheral contributors are matched against it. Scenes that
// contribute no pixels are excluded.
func VisitationOrder(m *Mosaic, footprints []SceneFootprint, transform raster.TransformFunc) ([]int, error) {
	counts := m.ContributionCounts(len(footprints))

	// Total contribution per tile groups repeat passes of a footprint.
	tileTotals := map[string]int{}
	for i, fp := range footprints {
		tileTotals[fp.Tile] += counts[i+1]
	}

	// The reference scene is the first from the dominant tile.
	ref := -1
	refTotal := -1
	for i, fp := range footprints {
		if tileTotals[fp.Tile] > refTotal {
			ref = i
			refTotal = tileTotals[fp.Tile]
		}
	}
	if ref < 0 {
		return nil, nil
	}

	refCentroid, err := footprintCentroid(footprints[ref], footprints[ref].EPSG, transform)
	if err != nil {
		return nil, fmt.Errorf("failed to locate reference scene centroid: %v", err)
	}

	dists := make([]float64, len(footprints))
	for i, fp := range footprints {
		centroid, err := footprintCentroid(fp, footprints[ref].EPSG, transform)
		if err != nil {
			return nil, fmt.Errorf("failed to locate scene %d centroid: %v", i+1, err)
		}
		dists[i] = math.Hypot(centroid.X()-refCentroid.X(), centroid.Y()-refCentroid.Y())
	}

	order := make([]int, 0, len(footprints))
	for i := range footprints {
		if counts[i+1] > 0 {
			order = append(order, i+1)
		}
	}

	sort.SliceStable(order, func(a, b int) bool {
		i, j := order[a]-1, order[b]-1
		if dists[i] != dists[j] {
			return dists[i] < dists[j]
		}
		if footprints[i].Tile != footprints[j].Tile {
			return footprints[i].Tile > footprints[j].Tile
		}
		return counts[order[a]] > counts[order[b]]
	})

	return order, nil
}

// footprintCentroid transforms the footprint corners into the reference CRS
// and returns the midpoint.
func footprintCentroid(fp SceneFootprint, refEPSG int, transform raster.TransformFunc) (orb.Point, error) {
	xs := []float64{fp.Extent.XMin, fp.Extent.XMax}
	ys := []float64{fp.Extent.YMin, fp.Extent.YMax}
	if err := transform(fp.EPSG, refEPSG, xs, ys); err != nil {
		return orb.Point{}, err
	}

	bound := orb.Bound{
		Min: orb.Point{min(xs[0], xs[1]), min(ys[0], ys[1])},
		Max: orb.Point{max(xs[0], xs[1]), max(ys[0], ys[1])},
	}
	return bound.Center(), nil
}
