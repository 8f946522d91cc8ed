package preprocess

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/forest-guardian/sentinel-mosaic/internal/properties"
)

// Runner executes the sen2cor atmospheric correction processor to turn
// Level-1C granules into the Level-2A products the compositor consumes.
type Runner struct {
	// Bin is the L2A_Process executable. Empty uses the SEN2COR_BIN
	// environment variable or the processor's default name.
	Bin string
	// GIPP optionally points at a custom processing configuration file.
	GIPP string
	// Timeout bounds one granule's correction; zero means no limit.
	Timeout time.Duration
}

// Run corrects one Level-1C .SAFE product into outputDir and returns the
// path of the resulting Level-2A product. An already-complete output is
// reused without reprocessing.
func (r Runner) Run(ctx context.Context, l1cPath, outputDir string) (string, error) {
	if !strings.Contains(filepath.Base(l1cPath), "MSIL1C") {
		return "", fmt.Errorf("%s is not a Level-1C product", l1cPath)
	}

	if existing, err := r.findOutput(l1cPath, outputDir); err == nil {
		if complete, _ := outputComplete(existing); complete {
			fmt.Printf("%s already corrected, skipping\n", filepath.Base(l1cPath))
			return existing, nil
		}
		// A partial product from an interrupted run confuses sen2cor.
		fmt.Printf("warning: removing incomplete output %s\n", existing)
		os.RemoveAll(existing)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %v", err)
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	bin := r.Bin
	if bin == "" {
		bin = properties.Sen2CorBin()
	}

	args := []string{l1cPath, "--output_dir", outputDir}
	if r.GIPP != "" {
		args = append(args, "--GIP_L2A", r.GIPP)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("sen2cor failed for %s: %v", filepath.Base(l1cPath), err)
	}

	out, err := r.findOutput(l1cPath, outputDir)
	if err != nil {
		return "", err
	}

	complete, missing := outputComplete(out)
	if !complete {
		return "", fmt.Errorf("sen2cor output %s is incomplete: missing %s", out, missing)
	}
	return out, nil
}

// findOutput locates the Level-2A product matching a Level-1C input.
// sen2cor rewrites the processing baseline in the product name, so the
// output is matched by mission, datatake time and tile rather than derived
// directly.
func (r Runner) findOutput(l1cPath, outputDir string) (string, error) {
	parts := strings.Split(filepath.Base(l1cPath), "_")
	if len(parts) < 6 {
		return "", fmt.Errorf("unrecognized product name %s", filepath.Base(l1cPath))
	}
	mission, datatake, tile := parts[0], parts[2], parts[5]

	pattern := filepath.Join(outputDir, fmt.Sprintf("%s_MSIL2A_%s_*_%s_*.SAFE", mission, datatake, tile))
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("no Level-2A output found for %s", filepath.Base(l1cPath))
	}
	return matches[0], nil
}

// outputComplete checks that every resolution directory holds at least the
// scene classification raster, the last artifact sen2cor writes.
func outputComplete(safePath string) (bool, string) {
	for _, res := range []int{20, 60} {
		pattern := filepath.Join(safePath, "GRANULE", "*", "IMG_DATA",
			fmt.Sprintf("R%dm", res), fmt.Sprintf("*_SCL_%dm.jp2", res))
		matches, err := filepath.Glob(pattern)
		if err != nil || len(matches) == 0 {
			return false, fmt.Sprintf("SCL raster at %d m", res)
		}
	}
	return true, ""
}
