package raster

import (
	"fmt"

	"github.com/airbusgeo/godal"
)

// TransformFunc converts point coordinates between two coordinate reference
// systems in place. Components that need corner or centroid transforms take
// one of these so tests can substitute an identity transform.
type TransformFunc func(srcEPSG, dstEPSG int, xs, ys []float64) error

// TransformPoints is the godal-backed TransformFunc.
func TransformPoints(srcEPSG, dstEPSG int, xs, ys []float64) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("coordinate slices must have equal length, got %d and %d", len(xs), len(ys))
	}
	if srcEPSG == dstEPSG {
		return nil
	}

	src, err := godal.NewSpatialRefFromEPSG(srcEPSG)
	if err != nil {
		return fmt.Errorf("failed to create spatial reference for EPSG:%d: %w", srcEPSG, err)
	}
	defer src.Close()

	dst, err := godal.NewSpatialRefFromEPSG(dstEPSG)
	if err != nil {
		return fmt.Errorf("failed to create spatial reference for EPSG:%d: %w", dstEPSG, err)
	}
	defer dst.Close()

	trn, err := godal.NewTransform(src, dst)
	if err != nil {
		return fmt.Errorf("failed to create transform EPSG:%d -> EPSG:%d: %w", srcEPSG, dstEPSG, err)
	}
	defer trn.Close()

	z := make([]float64, len(xs))
	if err := trn.TransformEx(xs, ys, z, nil); err != nil {
		return fmt.Errorf("failed to transform %d points EPSG:%d -> EPSG:%d: %w", len(xs), srcEPSG, dstEPSG, err)
	}

	return nil
}

// IdentityTransform leaves coordinates untouched. Useful when source and
// destination are known to share a CRS, and in tests.
func IdentityTransform(srcEPSG, dstEPSG int, xs, ys []float64) error {
	return nil
}
