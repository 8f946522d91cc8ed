package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func filledMask(ncols, nrows int, class uint8) []uint8 {
	mask := make([]uint8, ncols*nrows)
	for i := range mask {
		mask[i] = class
	}
	return mask
}

func TestManhattanDistance(t *testing.T) {
	// Single set pixel at the center of a 3x3.
	dist := manhattanDistance(func(i int) bool { return i == 4 }, 3, 3, false)
	assert.Equal(t, []int{2, 1, 2, 1, 0, 1, 2, 1, 2}, dist)
}

func TestManhattanDistanceOutsideInSet(t *testing.T) {
	// Empty set but the border counts: distance to the image edge.
	dist := manhattanDistance(func(i int) bool { return false }, 3, 3, true)
	assert.Equal(t, []int{1, 1, 1, 1, 2, 1, 1, 1, 1}, dist)
}

func TestImproveMaskDarkBecomesShadow(t *testing.T) {
	// 200 m pixels: no dilation, edge erosion reaches 7 pixels in.
	mask := filledMask(16, 16, ClassVegetation)
	mask[7*16+7] = ClassDarkFeature
	mask[8*16+8] = ClassCloudHigh // keeps the shadow plausible

	out := ImproveMask(mask, 16, 16, 200)

	assert.Equal(t, ClassCloudShadow, out[7*16+7])
	assert.Equal(t, ClassCloudHigh, out[8*16+8])
	// Input untouched.
	assert.Equal(t, ClassDarkFeature, mask[7*16+7])
}

func TestImproveMaskOrphanShadowBecomesWater(t *testing.T) {
	mask := filledMask(16, 16, ClassVegetation)
	mask[7*16+8] = ClassCloudShadow

	out := ImproveMask(mask, 16, 16, 200)

	assert.Equal(t, ClassWater, out[7*16+8])
}

func TestImproveMaskDilatesClouds(t *testing.T) {
	// 120 m pixels: one dilation step, edge erosion reaches 12 pixels in.
	mask := filledMask(30, 30, ClassVegetation)
	mask[14*30+14] = ClassCloudHigh

	out := ImproveMask(mask, 30, 30, 120)

	assert.Equal(t, ClassCloudHigh, out[14*30+14])
	for _, i := range []int{13*30 + 14, 15*30 + 14, 14*30 + 13, 14*30 + 15} {
		assert.Equal(t, ClassCloudHigh, out[i])
	}
	// Diagonal neighbour is outside the cross-shaped reach.
	assert.Equal(t, ClassVegetation, out[13*30+13])
}

func TestImproveMaskErodesEdges(t *testing.T) {
	// 1500 m pixels: one erosion step, everything else disabled.
	mask := filledMask(4, 4, ClassVegetation)

	out := ImproveMask(mask, 4, 4, 1500)

	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			want := ClassNoData
			if r >= 1 && r <= 2 && c >= 1 && c <= 2 {
				want = ClassVegetation
			}
			assert.Equal(t, want, out[r*4+c], "pixel (%d,%d)", r, c)
		}
	}
}

func TestImproveMaskErodesAroundNoData(t *testing.T) {
	mask := filledMask(7, 7, ClassVegetation)
	mask[3*7+3] = ClassNoData

	out := ImproveMask(mask, 7, 7, 1500)

	// The no-data hole grows by one pixel in each cardinal direction.
	for _, i := range []int{3*7 + 3, 2*7 + 3, 4*7 + 3, 3*7 + 2, 3*7 + 4} {
		assert.Equal(t, ClassNoData, out[i])
	}
}
