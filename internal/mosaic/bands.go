package mosaic

import (
	"fmt"
	"math"

	"github.com/forest-guardian/sentinel-mosaic/internal/scene"
)

// BalanceMode controls inter-scene radiometric correction during band
// compositing.
type BalanceMode string

const (
	// BalanceNone writes reprojected values untouched.
	BalanceNone BalanceMode = "none"
	// BalanceBasic histogram-matches scenes with substantial overlap.
	BalanceBasic BalanceMode = "basic"
	// BalanceAggressive additionally applies gain compensation to scenes
	// with modest overlap.
	BalanceAggressive BalanceMode = "aggressive"
)

func ParseBalanceMode(name string) (BalanceMode, error) {
	switch BalanceMode(name) {
	case BalanceNone, BalanceBasic, BalanceAggressive:
		return BalanceMode(name), nil
	}
	return "", fmt.Errorf("unknown colour balance mode %q (choose none, basic or aggressive)", name)
}

// Overlap thresholds for choosing a correction. Below the minimum there is
// not enough shared sample to estimate anything; above the matching
// threshold the full histogram is reliable.
const (
	minBalanceOverlap = 0.02
	matchOverlap      = 0.5
)

// SceneSource yields per-scene arrays already reprojected onto the
// destination grid. Index i addresses the i-th scene of the selection
// (0-indexed); provenance numbers are i+1.
type SceneSource interface {
	// Mask returns the (optionally corrected) classification mask and its
	// validity bitmap.
	Mask(i int) ([]uint8, []bool, error)
	// Band returns one reflectance band and its validity bitmap.
	Band(i int, band string) ([]float64, []bool, error)
}

// CompositeBand assembles one output band strictly according to the
// mosaic's provenance map, visiting scenes in the given order and applying
// the selected colour balancing against the already-assembled output.
// A scene whose band cannot be read or reprojected is skipped with a
// warning; its pixels stay unfilled.
func CompositeBand(m *Mosaic, order []int, src SceneSource, band string, balance BalanceMode) ([]float64, error) {
	out := make([]float64, m.Grid.NPixels())
	filled := 0

	for _, n := range order {
		data, _, err := src.Band(n-1, band)
		if err != nil {
			fmt.Printf("warning: skipping scene %d for band %s: %v\n", n, band, err)
			continue
		}

		if balance != BalanceNone && filled > 0 {
			data, err = balanceScene(out, data, n, src, balance)
			if err != nil {
				fmt.Printf("warning: skipping scene %d for band %s: %v\n", n, band, err)
				continue
			}
		}

		for i, p := range m.Provenance {
			if int(p) == n {
				out[i] = data[i]
				filled++
			}
		}
	}

	return out, nil
}

// balanceScene corrects one scene's reprojected band against the partially
// assembled output. The correction is chosen by the fraction of this
// scene's good pixels that overlap already-filled output.
func balanceScene(out, data []float64, n int, src SceneSource, balance BalanceMode) ([]float64, error) {
	classes, valid, err := src.Mask(n - 1)
	if err != nil {
		return nil, err
	}

	good := make([]bool, len(classes))
	goodCount := 0
	overlap := make([]bool, len(classes))
	overlapCount := 0
	for i := range classes {
		if valid[i] && scene.IsGood(classes[i]) {
			good[i] = true
			goodCount++
			if out[i] != 0 {
				overlap[i] = true
				overlapCount++
			}
		}
	}
	if goodCount == 0 {
		return data, nil
	}

	frac := float64(overlapCount) / float64(goodCount)

	switch {
	case frac > minBalanceOverlap && frac <= matchOverlap && balance == BalanceAggressive:
		// Too little overlap for a reliable histogram; a single gain
		// factor over the shared pixels is robust. Water is excluded from
		// the scaled set, its reflectance would skew the estimate.
		gain := GainFactor(data, out, overlap)
		corrected := make([]float64, len(data))
		copy(corrected, data)
		for i := range data {
			if good[i] && classes[i] != scene.ClassWater {
				corrected[i] = math.Round(data[i] * gain)
			}
		}
		return corrected, nil

	case frac > matchOverlap:
		outValid := make([]bool, len(out))
		for i, v := range out {
			outValid[i] = v != 0
		}
		return HistogramMatch(data, good, out, outValid), nil
	}

	// Not enough overlap to estimate a correction, add as-is.
	return data, nil
}
