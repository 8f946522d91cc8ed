package mosaic

import (
	"fmt"

	"github.com/forest-guardian/sentinel-mosaic/internal/raster"
	"github.com/forest-guardian/sentinel-mosaic/internal/scene"
)

// Policy selects which scene wins when several offer a good pixel at the
// same location.
type Policy string

const (
	// MostRecent lets later scenes override earlier good pixels.
	MostRecent Policy = "MOST_RECENT"
	// MostDistant keeps the first good pixel; later scenes never overwrite.
	MostDistant Policy = "MOST_DISTANT"
	// TempHomogeneity prefers output dominated by the single least
	// cloud-fragmented acquisition covering each area.
	TempHomogeneity Policy = "TEMP_HOMOGENEITY"
)

func ParsePolicy(name string) (Policy, error) {
	switch Policy(name) {
	case MostRecent, MostDistant, TempHomogeneity:
		return Policy(name), nil
	}
	return "", fmt.Errorf("unknown compositing policy %q (choose MOST_RECENT, MOST_DISTANT or TEMP_HOMOGENEITY)", name)
}

// Mosaic is the classification mosaic plus the per-pixel record of which
// scene supplied it. Provenance index 0 means unfilled; n means the n-th
// scene in visitation order. The two arrays are kept consistent: a pixel
// is claimed only while it holds a good classification code.
type Mosaic struct {
	Grid       raster.Grid
	Classes    []uint8
	Provenance []uint16
}

func NewMosaic(g raster.Grid) *Mosaic {
	return &Mosaic{
		Grid:       g,
		Classes:    make([]uint8, g.NPixels()),
		Provenance: make([]uint16, g.NPixels()),
	}
}

// AddScene folds one reprojected classification mask into the mosaic.
// classes/valid must be grid-shaped; n is the scene's 1-indexed position in
// visitation order. An unknown policy is a programming error and panics.
func (m *Mosaic) AddScene(classes []uint8, valid []bool, n int, policy Policy) {
	if len(classes) != m.Grid.NPixels() || len(valid) != m.Grid.NPixels() {
		panic(fmt.Sprintf("mask shape %d does not match grid %dx%d", len(classes), m.Grid.NCols, m.Grid.NRows))
	}

	good := make([]bool, len(classes))
	for i := range classes {
		good[i] = valid[i] && scene.IsGood(classes[i])
	}

	selection := make([]bool, len(classes))

	switch policy {
	case MostRecent:
		copy(selection, good)

	case MostDistant:
		for i := range good {
			selection[i] = good[i] && m.Provenance[i] == 0
		}

	case TempHomogeneity:
		for i := range good {
			selection[i] = good[i] && m.Provenance[i] == 0
		}

		// Re-select every good pixel when this scene alone offers more
		// good pixels than any scene already represented in the filled
		// region: a mosaic dominated by one homogeneous acquisition beats
		// a patchwork of earlier fragments.
		counts := map[uint16]int{}
		for i := range m.Provenance {
			if m.Provenance[i] != 0 && valid[i] && classes[i] != scene.ClassNoData {
				counts[m.Provenance[i]]++
			}
		}

		maxCount := 0
		for _, c := range counts {
			maxCount = max(maxCount, c)
		}

		goodCount := 0
		for i := range good {
			if good[i] {
				goodCount++
			}
		}

		if len(counts) > 0 && goodCount > maxCount {
			copy(selection, good)
		}

	default:
		panic(fmt.Sprintf("unknown compositing policy %q", policy))
	}

	for i := range selection {
		if selection[i] {
			m.Classes[i] = classes[i]
			m.Provenance[i] = uint16(n)
		}
	}

	// A pixel is only claimed while it holds a good code.
	for i := range m.Classes {
		if !scene.IsGood(m.Classes[i]) {
			m.Provenance[i] = 0
		}
	}
}

// ContributionCounts returns, per 1-indexed scene number, how many pixels
// each scene supplies to the final provenance map. Index 0 is unused.
func (m *Mosaic) ContributionCounts(nScenes int) []int {
	counts := make([]int, nScenes+1)
	for _, n := range m.Provenance {
		if n != 0 && int(n) <= nScenes {
			counts[n]++
		}
	}
	return counts
}
