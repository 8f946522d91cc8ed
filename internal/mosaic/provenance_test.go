package mosaic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/sentinel-mosaic/internal/raster"
)

func testGrid(t *testing.T, ncols, nrows int) raster.Grid {
	t.Helper()
	g, err := raster.NewGrid(raster.Extent{
		XMin: 0, YMin: 0,
		XMax: float64(ncols) * 10, YMax: float64(nrows) * 10,
	}, 10, 32736)
	require.NoError(t, err)
	return g
}

func allValid(n int) []bool {
	v := make([]bool, n)
	for i := range v {
		v[i] = true
	}
	return v
}

func TestAddSceneMostRecentOverridesGoodPixels(t *testing.T) {
	m := NewMosaic(testGrid(t, 2, 2))

	m.AddScene([]uint8{4, 4, 9, 0}, allValid(4), 1, MostRecent)
	assert.Equal(t, []uint16{1, 1, 0, 0}, m.Provenance)
	assert.Equal(t, []uint8{4, 4, 0, 0}, m.Classes)

	m.AddScene([]uint8{5, 0, 5, 5}, allValid(4), 2, MostRecent)
	assert.Equal(t, []uint16{2, 1, 2, 2}, m.Provenance)
	assert.Equal(t, []uint8{5, 4, 5, 5}, m.Classes)
}

func TestAddSceneMostDistantKeepsFirstGoodPixel(t *testing.T) {
	m := NewMosaic(testGrid(t, 2, 2))

	m.AddScene([]uint8{4, 4, 9, 0}, allValid(4), 1, MostDistant)
	m.AddScene([]uint8{5, 5, 5, 5}, allValid(4), 2, MostDistant)

	assert.Equal(t, []uint16{1, 1, 2, 2}, m.Provenance)
	assert.Equal(t, []uint8{4, 4, 5, 5}, m.Classes)
}

func TestAddSceneTempHomogeneityReselectsForBetterScene(t *testing.T) {
	m := NewMosaic(testGrid(t, 2, 2))

	m.AddScene([]uint8{4, 4, 9, 9}, allValid(4), 1, TempHomogeneity)
	assert.Equal(t, []uint16{1, 1, 0, 0}, m.Provenance)

	// Four good pixels beat the two supplied so far; the whole footprint
	// switches to the cleaner acquisition.
	m.AddScene([]uint8{5, 5, 5, 5}, allValid(4), 2, TempHomogeneity)
	assert.Equal(t, []uint16{2, 2, 2, 2}, m.Provenance)
	assert.Equal(t, []uint8{5, 5, 5, 5}, m.Classes)
}

func TestAddSceneTempHomogeneityFillsGapsOnly(t *testing.T) {
	m := NewMosaic(testGrid(t, 2, 2))

	m.AddScene([]uint8{4, 4, 9, 9}, allValid(4), 1, TempHomogeneity)

	// No better than what is already there: only unfilled pixels accept it.
	m.AddScene([]uint8{0, 0, 5, 5}, allValid(4), 2, TempHomogeneity)
	assert.Equal(t, []uint16{1, 1, 2, 2}, m.Provenance)
	assert.Equal(t, []uint8{4, 4, 5, 5}, m.Classes)
}

func TestAddSceneTempHomogeneityRunningMaximum(t *testing.T) {
	grid := testGrid(t, 10, 10)

	// Vegetation up to the given pixel, cloud beyond it.
	sceneClasses := func(good int) []uint8 {
		classes := make([]uint8, 100)
		for i := range classes {
			if i < good {
				classes[i] = 4
			} else {
				classes[i] = 9
			}
		}
		return classes
	}

	t.Run("declining coverage keeps the first scene", func(t *testing.T) {
		m := NewMosaic(grid)
		m.AddScene(sceneClasses(100), allValid(100), 1, TempHomogeneity)
		m.AddScene(sceneClasses(60), allValid(100), 2, TempHomogeneity)
		m.AddScene(sceneClasses(30), allValid(100), 3, TempHomogeneity)

		counts := m.ContributionCounts(3)
		assert.Equal(t, []int{0, 100, 0, 0}, counts)
	})

	t.Run("improving coverage reselects at every step", func(t *testing.T) {
		m := NewMosaic(grid)
		m.AddScene(sceneClasses(30), allValid(100), 1, TempHomogeneity)

		// 60 good pixels beat scene 1's 30, so scene 2 takes over the
		// pixels it can fill; scene 3 then beats 60 the same way.
		m.AddScene(sceneClasses(60), allValid(100), 2, TempHomogeneity)
		assert.Equal(t, []int{0, 0, 60}, m.ContributionCounts(2))

		m.AddScene(sceneClasses(100), allValid(100), 3, TempHomogeneity)
		assert.Equal(t, []int{0, 0, 0, 100}, m.ContributionCounts(3))
	})
}

func TestAddSceneIgnoresInvalidPixels(t *testing.T) {
	m := NewMosaic(testGrid(t, 2, 2))

	m.AddScene([]uint8{4, 4, 4, 4}, []bool{true, false, true, false}, 1, MostRecent)

	assert.Equal(t, []uint16{1, 0, 1, 0}, m.Provenance)
	assert.Equal(t, []uint8{4, 0, 4, 0}, m.Classes)
}

func TestAddSceneProvenanceOnlyOnGoodClasses(t *testing.T) {
	m := NewMosaic(testGrid(t, 3, 1))

	m.AddScene([]uint8{4, 8, 11}, allValid(3), 1, MostRecent)

	// Cloud and snow never claim provenance.
	assert.Equal(t, []uint16{1, 0, 0}, m.Provenance)
	for i := range m.Provenance {
		if m.Provenance[i] != 0 {
			assert.GreaterOrEqual(t, m.Classes[i], uint8(4))
			assert.LessOrEqual(t, m.Classes[i], uint8(6))
		}
	}
}

func TestAddScenePanicsOnBadInput(t *testing.T) {
	m := NewMosaic(testGrid(t, 2, 2))

	assert.Panics(t, func() {
		m.AddScene([]uint8{4}, allValid(1), 1, MostRecent)
	})
	assert.Panics(t, func() {
		m.AddScene([]uint8{4, 4, 4, 4}, allValid(4), 1, Policy("NEWEST"))
	})
}

func TestContributionCounts(t *testing.T) {
	m := NewMosaic(testGrid(t, 2, 2))
	m.AddScene([]uint8{4, 4, 0, 0}, allValid(4), 1, MostDistant)
	m.AddScene([]uint8{4, 4, 4, 0}, allValid(4), 2, MostDistant)

	counts := m.ContributionCounts(2)
	assert.Equal(t, []int{0, 2, 1}, counts)
}

func TestParsePolicy(t *testing.T) {
	for _, name := range []string{"MOST_RECENT", "MOST_DISTANT", "TEMP_HOMOGENEITY"} {
		p, err := ParsePolicy(name)
		require.NoError(t, err)
		assert.Equal(t, Policy(name), p)
	}

	_, err := ParsePolicy("most_recent")
	assert.Error(t, err)
}
