package raster

import (
	"fmt"
	"math"
)

// Extent is an axis-aligned bounding rectangle in projected coordinates,
// ordered xmin, ymin, xmax, ymax.
type Extent struct {
	XMin, YMin, XMax, YMax float64
}

func (e Extent) Width() float64  { return e.XMax - e.XMin }
func (e Extent) Height() float64 { return e.YMax - e.YMin }

// Disjoint reports whether two extents share no area. Touching edges count
// as disjoint, matching the four-way short-circuit used when filtering
// candidate scenes.
func (e Extent) Disjoint(other Extent) bool {
	return e.XMin >= other.XMax ||
		e.XMax <= other.XMin ||
		e.YMin >= other.YMax ||
		e.YMax <= other.YMin
}

// Grid describes the destination raster: geographic footprint, pixel size
// and CRS, with row/column counts derived from them. Immutable once built.
type Grid struct {
	Extent    Extent
	PixelSize float64
	EPSG      int
	NRows     int
	NCols     int
}

// NewGrid derives the raster dimensions from the extent and pixel size.
// Pixel size is in CRS units (meters for UTM) and must be positive.
func NewGrid(extent Extent, pixelSize float64, epsg int) (Grid, error) {
	if pixelSize <= 0 {
		return Grid{}, fmt.Errorf("pixel size must be positive, got %f", pixelSize)
	}
	if extent.XMax <= extent.XMin || extent.YMax <= extent.YMin {
		return Grid{}, fmt.Errorf("invalid extent [%f %f %f %f]: xmax/ymax must exceed xmin/ymin",
			extent.XMin, extent.YMin, extent.XMax, extent.YMax)
	}
	if epsg <= 0 {
		return Grid{}, fmt.Errorf("invalid EPSG code %d", epsg)
	}

	return Grid{
		Extent:    extent,
		PixelSize: pixelSize,
		EPSG:      epsg,
		NRows:     int(math.Round((extent.YMin - extent.YMax) / -pixelSize)),
		NCols:     int(math.Round((extent.XMax - extent.XMin) / pixelSize)),
	}, nil
}

// GeoTransform returns the GDAL-style affine transform mapping pixel to
// world coordinates (north-up, square pixels).
func (g Grid) GeoTransform() [6]float64 {
	return [6]float64{g.Extent.XMin, g.PixelSize, 0, g.Extent.YMax, 0, -g.PixelSize}
}

// NPixels is the number of cells in a grid-shaped array.
func (g Grid) NPixels() int {
	return g.NRows * g.NCols
}
