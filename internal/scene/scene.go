package scene

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/sentinel-mosaic/internal/raster"
)

// Scene is a handle to one level-2A granule at one resolution. Metadata is
// read eagerly at construction; pixel data is read lazily and cached, so a
// Scene is read-only for the lifetime of a composite build.
type Scene struct {
	GranulePath string
	Resolution  int
	Grid        raster.Grid
	SensingTime time.Time
	Tile        string
	// NodataFraction is the share of the granule not covered by a usable
	// land-cover class, per granule quality indicators.
	NodataFraction float64

	mu    sync.Mutex
	bands map[string][]float64
	masks map[bool][]uint8
}

// Load builds a Scene from a granule directory (the GRANULE/* level of a
// .SAFE product).
func Load(granulePath string, resolution int) (*Scene, error) {
	md, err := LoadMetadata(granulePath, resolution)
	if err != nil {
		return nil, err
	}

	grid, err := raster.NewGrid(raster.Extent{XMin: md.XMin, YMin: md.YMin, XMax: md.XMax, YMax: md.YMax}, md.PixelSize, md.EPSG)
	if err != nil {
		return nil, fmt.Errorf("bad georeference in %s: %v", granulePath, err)
	}

	return &Scene{
		GranulePath:    granulePath,
		Resolution:     resolution,
		Grid:           grid,
		SensingTime:    md.SensingTime,
		Tile:           md.Tile,
		NodataFraction: md.NodataFraction,
		bands:          map[string][]float64{},
		masks:          map[bool][]uint8{},
	}, nil
}

// Name is a short identifier for logs and reports.
func (s *Scene) Name() string {
	return filepath.Base(s.GranulePath)
}

// Band reads one reflectance band (e.g. "B02") as a row-major array on the
// scene's own grid. Results are cached per band.
func (s *Scene) Band(band string) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok := s.bands[band]; ok {
		return data, nil
	}

	path, err := s.imagePath(band, s.Resolution)
	if err != nil {
		return nil, err
	}

	data := make([]float64, s.Grid.NPixels())
	if err := readBand(path, data, s.Grid.NCols, s.Grid.NRows); err != nil {
		return nil, err
	}

	s.bands[band] = data
	return data, nil
}

// Mask reads the scene classification band, optionally applying the mask
// improvement filter. The SCL band is not produced at 10 m; for a 10 m
// scene the 20 m mask is read and upsampled by pixel doubling.
func (s *Scene) Mask(correct bool) ([]uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mask, ok := s.masks[correct]; ok {
		return mask, nil
	}

	maskRes := s.Resolution
	if maskRes == 10 {
		maskRes = 20
	}

	path, err := s.imagePath("SCL", maskRes)
	if err != nil {
		return nil, err
	}

	// The 20 m raster has half the columns and rows of the 10 m grid.
	ncols := s.Grid.NCols * s.Resolution / maskRes
	nrows := s.Grid.NRows * s.Resolution / maskRes

	mask := make([]uint8, ncols*nrows)
	if err := readBand(path, mask, ncols, nrows); err != nil {
		return nil, err
	}

	if maskRes != s.Resolution {
		mask = upsample2x(mask, ncols, nrows)
	}

	if correct {
		mask = ImproveMask(mask, s.Grid.NCols, s.Grid.NRows, s.Grid.PixelSize)
	}

	s.masks[correct] = mask
	return mask, nil
}

func (s *Scene) imagePath(band string, resolution int) (string, error) {
	pattern := filepath.Join(s.GranulePath, "IMG_DATA", fmt.Sprintf("R%dm", resolution),
		fmt.Sprintf("*_%s_%dm.jp2", band, resolution))

	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("no %s image at %d m in %s", band, resolution, s.GranulePath)
	}
	return matches[0], nil
}

func readBand(path string, buffer interface{}, ncols, nrows int) error {
	ds, err := godal.Open(path, godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("%s", msg)
	}))
	if err != nil {
		return fmt.Errorf("failed to open %s: %v", path, err)
	}
	defer ds.Close()

	structure := ds.Structure()
	if structure.SizeX != ncols || structure.SizeY != nrows {
		return fmt.Errorf("%s is %dx%d, expected %dx%d", path, structure.SizeX, structure.SizeY, ncols, nrows)
	}

	if err := ds.Bands()[0].Read(0, 0, buffer, ncols, nrows); err != nil {
		return fmt.Errorf("failed to read raster data from %s: %v", path, err)
	}

	return nil
}

// upsample2x doubles a classification array in both directions with
// nearest-neighbour replication.
func upsample2x(data []uint8, ncols, nrows int) []uint8 {
	out := make([]uint8, ncols*nrows*4)
	for r := 0; r < nrows; r++ {
		for c := 0; c < ncols; c++ {
			v := data[r*ncols+c]
			i := 2 * (r*2*ncols + c)
			out[i] = v
			out[i+1] = v
			out[i+2*ncols] = v
			out[i+2*ncols+1] = v
		}
	}
	return out
}

// FindProducts expands a list of input paths into .SAFE product directories
// of the given processing level.
func FindProducts(inputs []string, level string) ([]string, error) {
	if level != "1C" && level != "2A" {
		return nil, fmt.Errorf("processing level must be 1C or 2A, got %q", level)
	}

	seen := map[string]bool{}
	var products []string
	marker := fmt.Sprintf("_MSIL%s_", level)

	for _, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			return nil, err
		}

		if strings.Contains(filepath.Base(abs), marker) {
			if !seen[abs] {
				seen[abs] = true
				products = append(products, abs)
			}
			continue
		}

		matches, _ := filepath.Glob(filepath.Join(abs, "*"+marker+"*.SAFE"))
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				products = append(products, m)
			}
		}
	}

	return products, nil
}

// FindGranules expands a list of input paths (.SAFE products, directories
// containing them, or granule directories) into granule paths for the given
// processing level, optionally filtered by tile.
func FindGranules(inputs []string, level string, tile string) ([]string, error) {
	if level != "1C" && level != "2A" {
		return nil, fmt.Errorf("processing level must be 1C or 2A, got %q", level)
	}

	seen := map[string]bool{}
	var granules []string

	add := func(paths []string) {
		for _, p := range paths {
			p = strings.TrimRight(p, "/")
			if !seen[p] {
				seen[p] = true
				granules = append(granules, p)
			}
		}
	}

	marker := fmt.Sprintf("_MSIL%s_", level)

	for _, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			return nil, err
		}

		// Directory of .SAFE products.
		matches, _ := filepath.Glob(filepath.Join(abs, "*"+marker+"*", "GRANULE", "*"))
		add(matches)

		// A .SAFE product itself.
		if strings.Contains(filepath.Base(abs), marker) {
			matches, _ := filepath.Glob(filepath.Join(abs, "GRANULE", "*"))
			add(matches)
		}

		// A specific granule.
		if filepath.Base(filepath.Dir(abs)) == "GRANULE" && strings.Contains(filepath.Base(filepath.Dir(filepath.Dir(abs))), marker) {
			add([]string{abs})
		}
	}

	if tile != "" {
		var filtered []string
		for _, g := range granules {
			if strings.Contains(filepath.Base(g), "_T"+tile) {
				filtered = append(filtered, g)
			}
		}
		granules = filtered
	}

	return granules, nil
}
