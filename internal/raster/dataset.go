package raster

import (
	"fmt"

	"github.com/airbusgeo/godal"
)

// newMemDataset creates a single-band in-memory godal dataset georeferenced
// to the given grid.
func newMemDataset(g Grid, dtype godal.DataType) (*godal.Dataset, error) {
	ds, err := godal.Create(godal.Memory, "", 1, dtype, g.NCols, g.NRows)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory dataset: %w", err)
	}

	if err := georeference(ds, g); err != nil {
		ds.Close()
		return nil, err
	}

	return ds, nil
}

func georeference(ds *godal.Dataset, g Grid) error {
	if err := ds.SetGeoTransform(g.GeoTransform()); err != nil {
		return fmt.Errorf("failed to set geotransform: %w", err)
	}

	sr, err := godal.NewSpatialRefFromEPSG(g.EPSG)
	if err != nil {
		return fmt.Errorf("failed to create spatial reference for EPSG:%d: %w", g.EPSG, err)
	}
	defer sr.Close()

	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("failed to set spatial reference: %w", err)
	}
	return nil
}

// WriteGTiff writes a grid-shaped array to a LZW-compressed GeoTIFF.
// buffer must be a row-major slice of length g.NPixels() whose element type
// matches dtype (e.g. []uint8 with godal.Byte, []uint16 with godal.UInt16).
func WriteGTiff(g Grid, buffer interface{}, dtype godal.DataType, path string) error {
	ds, err := godal.Create(godal.GTiff, path, 1, dtype, g.NCols, g.NRows,
		godal.CreationOption("COMPRESS=LZW"))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer ds.Close()

	if err := georeference(ds, g); err != nil {
		return err
	}

	band := ds.Bands()[0]
	if err := band.Write(0, 0, buffer, g.NCols, g.NRows); err != nil {
		return fmt.Errorf("failed to write raster data to %s: %w", path, err)
	}

	return nil
}

// BuildVisualizationComposite stacks three single-band rasters into a
// 3-band VRT for quick visual inspection (red, green, blue order).
func BuildVisualizationComposite(bandPaths [3]string, outputPath string) error {
	ds, err := godal.BuildVRT(outputPath, bandPaths[:], []string{"-separate", "-overwrite"})
	if err != nil {
		return fmt.Errorf("failed to build composite %s: %w", outputPath, err)
	}
	return ds.Close()
}
