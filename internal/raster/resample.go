package raster

import (
	"fmt"

	"github.com/airbusgeo/godal"
)

// ResampleMode selects the warp kernel. Classification arrays must always
// use ResampleNear; interpolating class codes produces meaningless labels.
type ResampleMode string

const (
	ResampleNear     ResampleMode = "near"
	ResampleBilinear ResampleMode = "bilinear"
	ResampleCubic    ResampleMode = "cubic"
)

// ReprojectMask warps a classification array from its source grid onto the
// destination grid with nearest-neighbour resampling. The returned validity
// bitmap is false for destination pixels outside the source footprint, so a
// genuine class 0 can be told apart from "no source data".
func ReprojectMask(src Grid, mask []uint8, dst Grid) ([]uint8, []bool, error) {
	if len(mask) != src.NPixels() {
		return nil, nil, fmt.Errorf("mask length %d does not match source grid %dx%d", len(mask), src.NCols, src.NRows)
	}

	out := make([]uint8, dst.NPixels())
	if err := warpOnto(src, mask, dst, out, godal.Byte, ResampleNear); err != nil {
		return nil, nil, err
	}

	valid, err := footprintBitmap(src, dst)
	if err != nil {
		return nil, nil, err
	}

	return out, valid, nil
}

// ReprojectBand warps a reflectance array onto the destination grid.
func ReprojectBand(src Grid, data []float64, dst Grid, mode ResampleMode) ([]float64, []bool, error) {
	if len(data) != src.NPixels() {
		return nil, nil, fmt.Errorf("band length %d does not match source grid %dx%d", len(data), src.NCols, src.NRows)
	}

	out := make([]float64, dst.NPixels())
	if err := warpOnto(src, data, dst, out, godal.Float64, mode); err != nil {
		return nil, nil, err
	}

	valid, err := footprintBitmap(src, dst)
	if err != nil {
		return nil, nil, err
	}

	return out, valid, nil
}

func warpOnto(src Grid, data interface{}, dst Grid, out interface{}, dtype godal.DataType, mode ResampleMode) error {
	dsSource, err := newMemDataset(src, dtype)
	if err != nil {
		return err
	}
	defer dsSource.Close()

	if err := dsSource.Bands()[0].Write(0, 0, data, src.NCols, src.NRows); err != nil {
		return fmt.Errorf("failed to load source array: %w", err)
	}

	dsDest, err := newMemDataset(dst, dtype)
	if err != nil {
		return err
	}
	defer dsDest.Close()

	if err := dsDest.WarpInto([]*godal.Dataset{dsSource}, []string{"-r", string(mode)}); err != nil {
		return fmt.Errorf("failed to reproject EPSG:%d -> EPSG:%d: %w", src.EPSG, dst.EPSG, err)
	}

	if err := dsDest.Bands()[0].Read(0, 0, out, dst.NCols, dst.NRows); err != nil {
		return fmt.Errorf("failed to read reprojected array: %w", err)
	}

	return nil
}

// footprintBitmap warps an all-ones array from the source grid; destination
// pixels that stay zero received no source data.
func footprintBitmap(src Grid, dst Grid) ([]bool, error) {
	ones := make([]uint8, src.NPixels())
	for i := range ones {
		ones[i] = 1
	}

	mapped := make([]uint8, dst.NPixels())
	if err := warpOnto(src, ones, dst, mapped, godal.Byte, ResampleNear); err != nil {
		return nil, err
	}

	valid := make([]bool, len(mapped))
	for i, v := range mapped {
		valid[i] = v != 0
	}
	return valid, nil
}
