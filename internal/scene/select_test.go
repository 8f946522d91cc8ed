package scene

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/sentinel-mosaic/internal/raster"
)

func mustGrid(t *testing.T, extent raster.Extent, epsg int) raster.Grid {
	t.Helper()
	g, err := raster.NewGrid(extent, 10, epsg)
	require.NoError(t, err)
	return g
}

func testScene(t *testing.T, tile string, extent raster.Extent, epsg int, sensing time.Time) *Scene {
	t.Helper()
	return &Scene{
		GranulePath: fmt.Sprintf("L2A_T%s_A000001_%s", tile, sensing.Format("20060102T150405")),
		Grid:        mustGrid(t, extent, epsg),
		SensingTime: sensing,
		Tile:        tile,
	}
}

func TestFilterDateWindow(t *testing.T) {
	dst := mustGrid(t, raster.Extent{XMin: 0, YMin: 0, XMax: 100, YMax: 100}, 32736)
	extent := raster.Extent{XMin: 0, YMin: 0, XMax: 100, YMax: 100}

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)

	scenes := []*Scene{
		testScene(t, "36MYE", extent, 32736, start.AddDate(0, 0, -1)),
		testScene(t, "36MYE", extent, 32736, start),
		testScene(t, "36MYE", extent, 32736, start.AddDate(0, 0, 15)),
		testScene(t, "36MYE", extent, 32736, end),
		testScene(t, "36MYE", extent, 32736, end.AddDate(0, 0, 1)),
	}

	selected := Filter(scenes, dst, start, end, raster.IdentityTransform)
	require.Len(t, selected, 3)
	assert.Equal(t, scenes[1], selected[0])
	assert.Equal(t, scenes[3], selected[2])
}

func TestFilterExcludesDisjointFootprints(t *testing.T) {
	dst := mustGrid(t, raster.Extent{XMin: 0, YMin: 0, XMax: 100, YMax: 100}, 32736)
	when := time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)
	window := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	scenes := []*Scene{
		testScene(t, "36MYE", raster.Extent{XMin: 50, YMin: 50, XMax: 150, YMax: 150}, 32736, when),
		// Shares only an edge with the destination.
		testScene(t, "36MYD", raster.Extent{XMin: 100, YMin: 0, XMax: 200, YMax: 100}, 32736, when),
		testScene(t, "36MYC", raster.Extent{XMin: 500, YMin: 500, XMax: 600, YMax: 600}, 32736, when),
	}

	selected := Filter(scenes, dst, window, window.AddDate(0, 1, 0), raster.IdentityTransform)
	require.Len(t, selected, 1)
	assert.Equal(t, "36MYE", selected[0].Tile)
}

func TestFilterTransformsCorners(t *testing.T) {
	dst := mustGrid(t, raster.Extent{XMin: 0, YMin: 0, XMax: 100, YMax: 100}, 32736)
	when := time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)
	window := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	// In its own CRS the scene sits far away; the transform brings it over
	// the destination.
	shift := func(srcEPSG, dstEPSG int, xs, ys []float64) error {
		if srcEPSG == dstEPSG {
			return nil
		}
		for i := range xs {
			xs[i] -= 10000
		}
		return nil
	}

	scenes := []*Scene{
		testScene(t, "35MYE", raster.Extent{XMin: 10000, YMin: 0, XMax: 10100, YMax: 100}, 32735, when),
	}

	selected := Filter(scenes, dst, window, window.AddDate(0, 1, 0), shift)
	assert.Len(t, selected, 1)
}

func TestFilterSkipsFailedTransforms(t *testing.T) {
	dst := mustGrid(t, raster.Extent{XMin: 0, YMin: 0, XMax: 100, YMax: 100}, 32736)
	when := time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)
	window := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	failing := func(srcEPSG, dstEPSG int, xs, ys []float64) error {
		return fmt.Errorf("no transform available")
	}

	scenes := []*Scene{
		testScene(t, "36MYE", raster.Extent{XMin: 0, YMin: 0, XMax: 100, YMax: 100}, 32736, when),
	}

	selected := Filter(scenes, dst, window, window.AddDate(0, 1, 0), failing)
	assert.Empty(t, selected)
}

func TestFilterNoScenes(t *testing.T) {
	dst := mustGrid(t, raster.Extent{XMin: 0, YMin: 0, XMax: 100, YMax: 100}, 32736)
	window := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Empty(t, Filter(nil, dst, window, window.AddDate(0, 1, 0), raster.IdentityTransform))
}

func TestSortByTileThenTime(t *testing.T) {
	extent := raster.Extent{XMin: 0, YMin: 0, XMax: 100, YMax: 100}
	t1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2020, 1, 11, 0, 0, 0, 0, time.UTC)

	scenes := []*Scene{
		testScene(t, "36MYE", extent, 32736, t2),
		testScene(t, "36MYD", extent, 32736, t2),
		testScene(t, "36MYE", extent, 32736, t1),
		testScene(t, "36MYD", extent, 32736, t1),
	}

	Sort(scenes)

	assert.Equal(t, "36MYD", scenes[0].Tile)
	assert.Equal(t, t1, scenes[0].SensingTime)
	assert.Equal(t, "36MYD", scenes[1].Tile)
	assert.Equal(t, t2, scenes[1].SensingTime)
	assert.Equal(t, "36MYE", scenes[2].Tile)
	assert.Equal(t, t1, scenes[2].SensingTime)
}
