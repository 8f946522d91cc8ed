package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/forest-guardian/sentinel-mosaic/internal/catalog"
	"github.com/forest-guardian/sentinel-mosaic/internal/mosaic"
	"github.com/forest-guardian/sentinel-mosaic/internal/notification"
	"github.com/forest-guardian/sentinel-mosaic/internal/preprocess"
	"github.com/forest-guardian/sentinel-mosaic/internal/raster"
	"github.com/forest-guardian/sentinel-mosaic/internal/scene"
	"github.com/forest-guardian/sentinel-mosaic/output"
)

func printBanner() {
	figure1 := figure.NewFigure("Sentinel", "isometric1", true)
	figure2 := figure.NewFigure("Mosaic", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	bannercolor.Cyan(figure2.String())
	fmt.Println()
}

// extentFlag parses "xmin ymin xmax ymax" (space or comma separated).
type extentFlag struct {
	extent raster.Extent
	set    bool
}

func (e *extentFlag) String() string {
	if !e.set {
		return ""
	}
	return fmt.Sprintf("%g %g %g %g", e.extent.XMin, e.extent.YMin, e.extent.XMax, e.extent.YMax)
}

func (e *extentFlag) Set(value string) error {
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == ' ' || r == ',' })
	if len(parts) != 4 {
		return fmt.Errorf("extent needs exactly four values: xmin ymin xmax ymax")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return fmt.Errorf("invalid extent value %q", p)
		}
		vals[i] = v
	}
	e.extent = raster.Extent{XMin: vals[0], YMin: vals[1], XMax: vals[2], YMax: vals[3]}
	e.set = true
	return nil
}

type dateFlag struct {
	t   time.Time
	set bool
}

func (d *dateFlag) String() string {
	if !d.set {
		return ""
	}
	return d.t.Format("2006-01-02")
}

func (d *dateFlag) Set(value string) error {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	d.t = t
	d.set = true
	return nil
}

type cliOptions struct {
	extent     extentFlag
	start, end dateFlag

	epsg        int
	resolution  int
	policy      string
	balance     string
	correctMask bool
	outputDir   string
	outputName  string
	quicklook   bool
	verbose     bool

	downloadTile string
	downloadDir  string
	maxCloud     float64
	level        string
	sen2cor      bool
	gipp         string

	inputs []string
}

func parseFlags() cliOptions {
	var opts cliOptions

	flag.Var(&opts.extent, "te", "output extent: \"xmin ymin xmax ymax\" in the target CRS (required)")
	flag.Var(&opts.start, "st", "start of the acquisition window, YYYY-MM-DD (required)")
	flag.Var(&opts.end, "en", "end of the acquisition window, YYYY-MM-DD (required)")
	flag.IntVar(&opts.epsg, "e", 0, "EPSG code of the output coordinate reference system (required)")
	flag.IntVar(&opts.resolution, "r", 0, "output resolution in metres: 10, 20 or 60; omit for all three")
	flag.StringVar(&opts.policy, "a", string(mosaic.TempHomogeneity), "compositing policy: MOST_RECENT, MOST_DISTANT or TEMP_HOMOGENEITY")
	flag.StringVar(&opts.balance, "b", string(mosaic.BalanceNone), "colour balance mode: none, basic or aggressive")
	flag.BoolVar(&opts.correctMask, "c", false, "apply cloud mask improvement before compositing")
	flag.StringVar(&opts.outputDir, "o", ".", "output directory")
	flag.StringVar(&opts.outputName, "n", "mosaic", "output file name prefix")
	flag.BoolVar(&opts.quicklook, "q", false, "also render PNG quicklooks and a coverage GeoJSON")
	flag.BoolVar(&opts.verbose, "v", false, "verbose output")

	flag.StringVar(&opts.downloadTile, "d", "", "download products for this tile (e.g. 36MYE) before compositing")
	flag.StringVar(&opts.downloadDir, "dd", "", "directory for downloaded products (default: first input)")
	flag.Float64Var(&opts.maxCloud, "mc", 0, "maximum cloud cover percentage for downloads; 0 disables the filter")
	flag.StringVar(&opts.level, "l", "2A", "processing level of the inputs: 1C or 2A")
	flag.BoolVar(&opts.sen2cor, "s2c", false, "run sen2cor on Level-1C inputs before compositing")
	flag.StringVar(&opts.gipp, "gipp", "", "custom sen2cor GIPP configuration file")

	flag.Parse()
	opts.inputs = flag.Args()
	return opts
}

func main() {
	opts := parseFlags()

	printBanner()

	if err := godotenv.Load(".env"); err != nil {
		godotenv.Load("../.env")
	}
	godal.RegisterAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Printf("\n\033[31mError: %s\033[0m\n", err.Error())
		notification.SendDiscordErrorNotification(fmt.Sprintf("Sentinel Mosaic CLI\n\nError: %s", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts cliOptions) error {
	if !opts.extent.set || opts.epsg == 0 {
		return fmt.Errorf("an output extent (-te) and EPSG code (-e) are required")
	}
	if !opts.start.set || !opts.end.set {
		return fmt.Errorf("an acquisition window (-st, -en) is required")
	}
	if len(opts.inputs) == 0 && opts.downloadTile == "" {
		return fmt.Errorf("give input granule paths, or a tile to download with -d")
	}

	inputs := opts.inputs
	var err error

	if opts.downloadTile != "" {
		downloaded, err := download(ctx, opts)
		if err != nil {
			return err
		}
		inputs = append(inputs, downloaded...)
	}

	if opts.level == "1C" {
		if !opts.sen2cor {
			return fmt.Errorf("Level-1C inputs need atmospheric correction, pass -s2c to run sen2cor")
		}
		inputs, err = correct(ctx, inputs, opts)
		if err != nil {
			return err
		}
	}

	granules, err := scene.FindGranules(inputs, "2A", "")
	if err != nil {
		return err
	}
	if opts.verbose {
		fmt.Printf("Found %d granules\n", len(granules))
	}

	results, err := mosaic.Build(ctx, granules, mosaic.Options{
		Extent:      opts.extent.extent,
		EPSG:        opts.epsg,
		Resolution:  opts.resolution,
		Start:       opts.start.t,
		End:         opts.end.t.AddDate(0, 0, 1), // inclusive end date
		Policy:      mosaic.Policy(opts.policy),
		Balance:     mosaic.BalanceMode(opts.balance),
		CorrectMask: opts.correctMask,
		OutputDir:   opts.outputDir,
		OutputName:  opts.outputName,
		Verbose:     opts.verbose,
	})
	if err != nil {
		return err
	}

	var lines []string
	for _, r := range results {
		if r.Skipped {
			continue
		}
		if opts.quicklook {
			renderExtras(r)
		}
		lines = append(lines, fmt.Sprintf("%d m composite: %s", r.Resolution, r.SCLPath))
	}
	if len(lines) == 0 {
		return fmt.Errorf("no resolution produced output, check the extent and acquisition window")
	}

	fmt.Printf("\n\033[32mMosaic complete!\n %s\033[0m\n", strings.Join(lines, "\n "))
	notification.SendDiscordSuccessNotification(fmt.Sprintf("Sentinel Mosaic CLI\n\nMosaic complete!\n%s", strings.Join(lines, "\n")))
	return nil
}

func download(ctx context.Context, opts cliOptions) ([]string, error) {
	client, err := catalog.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	products, err := client.Search(ctx, catalog.Query{
		Tile:     opts.downloadTile,
		Level:    opts.level,
		Start:    opts.start.t,
		End:      opts.end.t.AddDate(0, 0, 1),
		MaxCloud: opts.maxCloud,
	})
	if err != nil {
		return nil, err
	}
	fmt.Printf("Found %d products for tile %s\n", len(products), opts.downloadTile)

	destDir := opts.downloadDir
	if destDir == "" && len(opts.inputs) > 0 {
		destDir = opts.inputs[0]
	}
	if destDir == "" {
		destDir = "."
	}

	var paths []string
	for _, p := range products {
		path, err := client.Download(ctx, p, destDir)
		if err != nil {
			fmt.Printf("warning: %v\n", err)
			continue
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// correct runs sen2cor over every Level-1C product found among the inputs
// and returns the resulting Level-2A product paths.
func correct(ctx context.Context, inputs []string, opts cliOptions) ([]string, error) {
	products, err := scene.FindProducts(inputs, "1C")
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("no Level-1C products found among the inputs")
	}

	runner := preprocess.Runner{GIPP: opts.gipp}

	outputDir := opts.downloadDir
	if outputDir == "" {
		outputDir = opts.outputDir
	}

	var corrected []string
	for _, product := range products {
		out, err := runner.Run(ctx, product, outputDir)
		if err != nil {
			fmt.Printf("warning: %v\n", err)
			continue
		}
		corrected = append(corrected, out)
	}
	if len(corrected) == 0 {
		return nil, fmt.Errorf("atmospheric correction produced no usable products")
	}

	return corrected, nil
}

// renderExtras writes the optional quicklook previews and the coverage
// summary for one finished resolution.
func renderExtras(r mosaic.ResolutionResult) {
	prefix := strings.TrimSuffix(r.SCLPath, "_SCL.tif")

	rgb := [3]string{r.BandPaths["B04"], r.BandPaths["B03"], r.BandPaths["B02"]}
	if err := output.CreateQuicklookImage(rgb, prefix+"_quicklook.png"); err != nil {
		fmt.Printf("warning: %v\n", err)
	}

	if err := output.CreateCoverageGeoJson(r.Mosaic, r.Scenes, prefix+"_coverage.geojson"); err != nil {
		fmt.Printf("warning: %v\n", err)
	}
}
