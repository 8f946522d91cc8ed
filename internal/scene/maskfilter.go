package scene

// Mask improvement constants, in real-world meters. Converted to pixel
// iteration counts by integer division by the pixel size, so the filtered
// footprint matches across the 10/20/60 m resolutions.
const (
	// DilateDistanceM grows shadow and cloud classes outward to catch
	// misclassified cloud fringes.
	DilateDistanceM = 120
	// ErodeDistanceM trims unreliable pixels from the granule edge; the
	// overlap margin between adjacent granules keeps mosaics contiguous.
	ErodeDistanceM = 1500
	// ShadowCloudDistanceM is the farthest a cloud shadow can plausibly lie
	// from the cloud that cast it.
	ShadowCloudDistanceM = 1800
)

// ImproveMask reduces false-positive cloud/shadow labelling in a sen2cor
// classification array. Steps, in order: dark features become cloud
// shadows, shadows far from any cloud become water, shadow and cloud
// classes are dilated, and the granule edge is eroded to no-data.
// The input array is not modified.
func ImproveMask(mask []uint8, ncols, nrows int, pixelSize float64) []uint8 {
	out := make([]uint8, len(mask))
	copy(out, mask)

	// Dark features behave like cloud shadows for compositing purposes.
	for i, v := range out {
		if v == ClassDarkFeature {
			out[i] = ClassCloudShadow
		}
	}

	// Shadows farther than ShadowCloudDistanceM from any medium/high
	// probability cloud have no plausible source; relabel them as water.
	cloudDist := manhattanDistance(func(i int) bool {
		return out[i] == ClassCloudMedium || out[i] == ClassCloudHigh
	}, ncols, nrows, false)
	maxShadowDist := int(ShadowCloudDistanceM / pixelSize)
	for i, v := range out {
		if v == ClassCloudShadow && cloudDist[i] > maxShadowDist {
			out[i] = ClassWater
		}
	}

	// Dilate shadow and cloud classes against a pre-dilation snapshot so
	// the classes cannot consume each other mid-pass.
	iterations := int(DilateDistanceM / pixelSize)
	if iterations > 0 {
		snapshot := make([]uint8, len(out))
		copy(snapshot, out)

		for _, class := range []uint8{ClassCloudShadow, ClassCloudMedium, ClassCloudHigh} {
			class := class
			dist := manhattanDistance(func(i int) bool {
				return snapshot[i] == class
			}, ncols, nrows, false)
			for i := range out {
				if dist[i] <= iterations {
					out[i] = class
				}
			}
		}
	}

	// Erode the measured region inward from the original no-data boundary
	// and from the image edge.
	iterations = int(ErodeDistanceM / pixelSize)
	if iterations > 0 {
		nodataDist := manhattanDistance(func(i int) bool {
			return mask[i] == ClassNoData
		}, ncols, nrows, true)
		for i := range out {
			if nodataDist[i] <= iterations {
				out[i] = ClassNoData
			}
		}
	}

	return out
}

const distInf = int(^uint(0) >> 1)

// manhattanDistance computes, for every pixel, the city-block distance to
// the nearest pixel for which in(i) is true, using the classic two-pass
// chamfer sweep. Pixels in the set have distance 0. When outsideInSet is
// true the area beyond the image border counts as part of the set, which
// makes thresholding the result equivalent to iterated binary
// dilation/erosion with a cross-shaped structuring element.
func manhattanDistance(in func(i int) bool, ncols, nrows int, outsideInSet bool) []int {
	dist := make([]int, ncols*nrows)

	for r := 0; r < nrows; r++ {
		for c := 0; c < ncols; c++ {
			i := r*ncols + c
			if in(i) {
				dist[i] = 0
				continue
			}

			d := distInf
			if r > 0 {
				d = min(d, add1(dist[i-ncols]))
			} else if outsideInSet {
				d = 1
			}
			if c > 0 {
				d = min(d, add1(dist[i-1]))
			} else if outsideInSet {
				d = min(d, 1)
			}
			dist[i] = d
		}
	}

	for r := nrows - 1; r >= 0; r-- {
		for c := ncols - 1; c >= 0; c-- {
			i := r*ncols + c
			if dist[i] == 0 {
				continue
			}

			d := dist[i]
			if r < nrows-1 {
				d = min(d, add1(dist[i+ncols]))
			} else if outsideInSet {
				d = min(d, 1)
			}
			if c < ncols-1 {
				d = min(d, add1(dist[i+1]))
			} else if outsideInSet {
				d = min(d, 1)
			}
			dist[i] = d
		}
	}

	return dist
}

func add1(d int) int {
	if d == distInf {
		return distInf
	}
	return d + 1
}
