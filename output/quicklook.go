package output

import (
	"fmt"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/fogleman/gg"
)

// quicklookMaxDim bounds the longer edge of the rendered preview.
const quicklookMaxDim = 1024

// reflectanceScale maps surface reflectance counts to display intensity.
// 3000 corresponds to 30% reflectance, a common stretch for natural colour.
const reflectanceScale = 3000.0

// CreateQuicklookImage renders a small PNG preview from three single-band
// reflectance rasters given in red, green, blue order.
func CreateQuicklookImage(bandPaths [3]string, outputPath string) error {
	if !strings.HasSuffix(outputPath, ".png") {
		outputPath += ".png"
	}

	var channels [3][]float64
	var width, height int
	for i, path := range bandPaths {
		data, w, h, err := readDownsampled(path)
		if err != nil {
			return err
		}
		if i == 0 {
			width, height = w, h
		} else if w != width || h != height {
			return fmt.Errorf("quicklook bands have mismatched shapes")
		}
		channels[i] = data
	}

	dc := gg.NewContext(width, height)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			i := row*width + col
			dc.SetRGB(stretch(channels[0][i]), stretch(channels[1][i]), stretch(channels[2][i]))
			dc.SetPixel(col, row)
		}
	}

	if err := dc.SavePNG(outputPath); err != nil {
		return fmt.Errorf("failed to save quicklook: %v", err)
	}

	fmt.Println("Quicklook created successfully at", outputPath)
	return nil
}

func stretch(v float64) float64 {
	s := v / reflectanceScale
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// readDownsampled reads one raster band, striding past pixels so the result
// fits the quicklook dimensions.
func readDownsampled(path string) ([]float64, int, int, error) {
	ds, err := godal.Open(path, godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("%s", msg)
	}))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open %s: %v", path, err)
	}
	defer ds.Close()

	srcW := ds.Structure().SizeX
	srcH := ds.Structure().SizeY

	data := make([]float64, srcW*srcH)
	if err := ds.Bands()[0].Read(0, 0, data, srcW, srcH); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read %s: %v", path, err)
	}

	stride := 1
	for srcW/stride > quicklookMaxDim || srcH/stride > quicklookMaxDim {
		stride++
	}
	if stride == 1 {
		return data, srcW, srcH, nil
	}

	outW := srcW / stride
	outH := srcH / stride
	out := make([]float64, outW*outH)
	for row := 0; row < outH; row++ {
		for col := 0; col < outW; col++ {
			out[row*outW+col] = data[row*stride*srcW+col*stride]
		}
	}
	return out, outW, outH, nil
}
