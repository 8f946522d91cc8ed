package mosaic

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/gammazero/workerpool"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/forest-guardian/sentinel-mosaic/internal/raster"
	"github.com/forest-guardian/sentinel-mosaic/internal/scene"
)

// Options configures one mosaic run. Validate catches configuration errors
// before any processing begins.
type Options struct {
	Extent      raster.Extent
	EPSG        int
	Resolution  int // 10, 20 or 60; 0 processes all three
	Start, End  time.Time
	Policy      Policy
	Balance     BalanceMode
	CorrectMask bool
	OutputDir   string
	OutputName  string
	Verbose     bool
}

func (o Options) Validate() error {
	if o.Extent.XMax <= o.Extent.XMin || o.Extent.YMax <= o.Extent.YMin {
		return fmt.Errorf("invalid output extent, must be xmin ymin xmax ymax with positive area")
	}
	if o.Resolution != 0 && o.Resolution != 10 && o.Resolution != 20 && o.Resolution != 60 {
		return fmt.Errorf("resolution must be 10, 20 or 60 m, or 0 for all three")
	}
	if o.EPSG <= 0 {
		return fmt.Errorf("invalid EPSG code %d", o.EPSG)
	}
	if _, err := ParsePolicy(string(o.Policy)); err != nil {
		return err
	}
	if _, err := ParseBalanceMode(string(o.Balance)); err != nil {
		return err
	}
	if !o.End.After(o.Start) {
		return fmt.Errorf("end date must be after start date")
	}
	return nil
}

// bandsForResolution lists the spectral bands available at each output
// resolution. B08 exists only at 10 m; B8A replaces it at 20/60 m.
func bandsForResolution(res int) []string {
	switch res {
	case 10:
		return []string{"B02", "B03", "B04", "B08"}
	case 20:
		return []string{"B02", "B03", "B04", "B05", "B06", "B07", "B8A", "B11", "B12"}
	case 60:
		return []string{"B01", "B02", "B03", "B04", "B05", "B06", "B07", "B8A", "B09", "B11", "B12"}
	}
	return nil
}

func (o Options) resolutions() []int {
	if o.Resolution != 0 {
		return []int{o.Resolution}
	}
	// Coarsest first, matching the historical processing order.
	return []int{60, 20, 10}
}

// ResolutionResult reports what one resolution produced.
type ResolutionResult struct {
	Resolution int
	Skipped    bool
	BandPaths  map[string]string
	SCLPath    string
	ImageNPath string
	Composites []string
	ReportPath string
	Scenes     []*scene.Scene
	Mosaic     *Mosaic
}

// Build produces one composite per requested resolution from the given
// granule paths. Resolutions run concurrently; a resolution with no
// overlapping scenes is skipped with a warning, not an error. Cancellation
// is honoured between scenes and bands.
func Build(ctx context.Context, granules []string, opts Options) ([]ResolutionResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(granules) == 0 {
		return nil, fmt.Errorf("no input granules given")
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %v", err)
	}

	results := make([]ResolutionResult, len(opts.resolutions()))

	g, ctx := errgroup.WithContext(ctx)
	for idx, res := range opts.resolutions() {
		idx, res := idx, res
		g.Go(func() error {
			result, err := buildResolution(ctx, granules, res, opts)
			if err != nil {
				return fmt.Errorf("resolution %d m: %w", res, err)
			}
			results[idx] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func buildResolution(ctx context.Context, granules []string, res int, opts Options) (ResolutionResult, error) {
	result := ResolutionResult{Resolution: res}

	grid, err := raster.NewGrid(opts.Extent, float64(res), opts.EPSG)
	if err != nil {
		return result, err
	}

	var scenes []*scene.Scene
	for _, granule := range granules {
		s, err := scene.Load(granule, res)
		if err != nil {
			fmt.Printf("warning: skipping %s: %v\n", granule, err)
			continue
		}
		scenes = append(scenes, s)
	}

	scenes = scene.Filter(scenes, grid, opts.Start, opts.End, raster.TransformPoints)
	if len(scenes) == 0 {
		fmt.Printf("warning: no scenes inside the output tile at %d m, skipping\n", res)
		result.Skipped = true
		return result, nil
	}
	scene.Sort(scenes)
	result.Scenes = scenes

	src := newWarpSource(scenes, grid, opts.CorrectMask)

	m, err := buildProvenance(ctx, scenes, grid, src, opts)
	if err != nil {
		return result, err
	}
	result.Mosaic = m

	prefix := filepath.Join(opts.OutputDir, fmt.Sprintf("%s_R%dm", opts.OutputName, res))

	result.SCLPath = prefix + "_SCL.tif"
	if err := raster.WriteGTiff(grid, m.Classes, godal.Byte, result.SCLPath); err != nil {
		return result, err
	}
	result.ImageNPath = prefix + "_imageN.tif"
	if err := raster.WriteGTiff(grid, m.Provenance, godal.UInt16, result.ImageNPath); err != nil {
		return result, err
	}

	order, err := VisitationOrder(m, footprints(scenes), raster.TransformPoints)
	if err != nil {
		return result, err
	}

	result.BandPaths, err = compositeBands(ctx, m, order, src, res, prefix, opts)
	if err != nil {
		return result, err
	}

	result.Composites, err = buildComposites(result.BandPaths, res, prefix)
	if err != nil {
		return result, err
	}

	result.ReportPath = prefix + "_contributions.csv"
	if err := writeContributionReport(m, scenes, result.ReportPath); err != nil {
		return result, err
	}

	return result, nil
}

// buildProvenance runs the sequential scene pass. Later scenes' decisions
// depend on prior state, so there is no parallelism here; a scene that
// fails to read or reproject is skipped and contributes nothing.
func buildProvenance(ctx context.Context, scenes []*scene.Scene, grid raster.Grid, src *warpSource, opts Options) (*Mosaic, error) {
	m := NewMosaic(grid)

	bar := progressbar.Default(int64(len(scenes)), fmt.Sprintf("Building %d m classification mosaic", int(grid.PixelSize)))
	for i, s := range scenes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		classes, valid, err := src.Mask(i)
		if err != nil {
			fmt.Printf("warning: excluding %s from mosaic: %v\n", s.Name(), err)
			bar.Add(1)
			continue
		}

		m.AddScene(classes, valid, i+1, opts.Policy)
		bar.Add(1)
	}
	fmt.Println()

	return m, nil
}

// compositeBands assembles every band of one resolution. Bands only read
// the finalized mosaic and write disjoint outputs, so they fan out on a
// worker pool.
func compositeBands(ctx context.Context, m *Mosaic, order []int, src *warpSource, res int, prefix string, opts Options) (map[string]string, error) {
	bands := bandsForResolution(res)
	paths := make(map[string]string, len(bands))
	for _, band := range bands {
		paths[band] = fmt.Sprintf("%s_%s.tif", prefix, band)
	}

	var (
		mu       sync.Mutex
		firstErr error
	)
	bar := progressbar.Default(int64(len(bands)), fmt.Sprintf("Compositing %d m bands", res))

	wp := workerpool.New(len(bands))
	for _, band := range bands {
		band := band
		wp.Submit(func() {
			if ctx.Err() != nil {
				return
			}

			data, err := CompositeBand(m, order, src, band, opts.Balance)
			if err == nil {
				err = raster.WriteGTiff(m.Grid, toUint16(data), godal.UInt16, paths[band])
			}

			mu.Lock()
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("band %s: %w", band, err)
			}
			bar.Add(1)
			mu.Unlock()
		})
	}
	wp.StopWait()
	fmt.Println()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}

// buildComposites writes the RGB and near-infrared 3-band visualization
// stacks.
func buildComposites(bandPaths map[string]string, res int, prefix string) ([]string, error) {
	rgb := prefix + "_RGB.vrt"
	if err := raster.BuildVisualizationComposite([3]string{bandPaths["B04"], bandPaths["B03"], bandPaths["B02"]}, rgb); err != nil {
		return nil, err
	}

	nirBand := "B8A"
	if res == 10 {
		nirBand = "B08"
	}
	nir := prefix + "_NIR.vrt"
	if err := raster.BuildVisualizationComposite([3]string{bandPaths[nirBand], bandPaths["B04"], bandPaths["B03"]}, nir); err != nil {
		return nil, err
	}

	return []string{rgb, nir}, nil
}

func footprints(scenes []*scene.Scene) []SceneFootprint {
	fps := make([]SceneFootprint, len(scenes))
	for i, s := range scenes {
		fps[i] = SceneFootprint{Tile: s.Tile, EPSG: s.Grid.EPSG, Extent: s.Grid.Extent}
	}
	return fps
}

func toUint16(data []float64) []uint16 {
	out := make([]uint16, len(data))
	for i, v := range data {
		v = math.Round(v)
		switch {
		case math.IsNaN(v):
			out[i] = 0
		case v < 0:
			out[i] = 0
		case v > math.MaxUint16:
			out[i] = math.MaxUint16
		default:
			out[i] = uint16(v)
		}
	}
	return out
}

// warpSource reprojects scene masks and bands onto the destination grid,
// caching reprojected masks because the provenance pass and every band's
// colour balancing read them repeatedly. Safe for use from parallel band
// tasks.
type warpSource struct {
	scenes  []*scene.Scene
	grid    raster.Grid
	correct bool

	mu    sync.Mutex
	masks map[int]warpedMask
}

type warpedMask struct {
	classes []uint8
	valid   []bool
}

func newWarpSource(scenes []*scene.Scene, grid raster.Grid, correct bool) *warpSource {
	return &warpSource{
		scenes:  scenes,
		grid:    grid,
		correct: correct,
		masks:   map[int]warpedMask{},
	}
}

func (w *warpSource) Mask(i int) ([]uint8, []bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if cached, ok := w.masks[i]; ok {
		return cached.classes, cached.valid, nil
	}

	s := w.scenes[i]
	mask, err := s.Mask(w.correct)
	if err != nil {
		return nil, nil, err
	}

	classes, valid, err := raster.ReprojectMask(s.Grid, mask, w.grid)
	if err != nil {
		return nil, nil, err
	}

	w.masks[i] = warpedMask{classes: classes, valid: valid}
	return classes, valid, nil
}

func (w *warpSource) Band(i int, band string) ([]float64, []bool, error) {
	s := w.scenes[i]
	data, err := s.Band(band)
	if err != nil {
		return nil, nil, err
	}
	return raster.ReprojectBand(s.Grid, data, w.grid, raster.ResampleNear)
}
