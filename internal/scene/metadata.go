package scene

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/forest-guardian/sentinel-mosaic/internal/cache"
)

// Metadata is the georeference and acquisition info of one granule at one
// resolution, extracted from its MTD_TL.xml.
type Metadata struct {
	XMin, YMin, XMax, YMax float64
	PixelSize              float64
	EPSG                   int
	NRows, NCols           int
	SensingTime            time.Time
	Tile                   string
	NodataFraction         float64
}

type tileMetadataXML struct {
	GeneralInfo struct {
		SensingTime string `xml:"SENSING_TIME"`
	} `xml:"General_Info"`
	GeometricInfo struct {
		TileGeocoding struct {
			HorizontalCS string `xml:"HORIZONTAL_CS_CODE"`
			Sizes        []struct {
				Resolution int `xml:"resolution,attr"`
				NRows      int `xml:"NROWS"`
				NCols      int `xml:"NCOLS"`
			} `xml:"Size"`
			Geopositions []struct {
				Resolution int     `xml:"resolution,attr"`
				ULX        float64 `xml:"ULX"`
				ULY        float64 `xml:"ULY"`
				XDim       float64 `xml:"XDIM"`
				YDim       float64 `xml:"YDIM"`
			} `xml:"Geoposition"`
		} `xml:"Tile_Geocoding"`
	} `xml:"Geometric_Info"`
	QualityInfo struct {
		ImageContent    contentQIXML `xml:"Image_Content_QI"`
		L2AImageContent contentQIXML `xml:"L2A_Image_Content_QI"`
	} `xml:"Quality_Indicators_Info"`
}

type contentQIXML struct {
	Vegetation   *float64 `xml:"VEGETATION_PERCENTAGE"`
	NotVegetated *float64 `xml:"NOT_VEGETATED_PERCENTAGE"`
	Water        *float64 `xml:"WATER_PERCENTAGE"`
}

var metadataCache = cache.NewFileCache[Metadata]("granule_metadata")

// LoadMetadata parses the granule's MTD_TL.xml for the requested
// resolution. Parsed results are cached on disk keyed by path, resolution
// and file modification time.
func LoadMetadata(granulePath string, resolution int) (Metadata, error) {
	if resolution != 10 && resolution != 20 && resolution != 60 {
		return Metadata{}, fmt.Errorf("resolution must be 10, 20 or 60 m, got %d", resolution)
	}

	granulePath = strings.TrimRight(granulePath, "/")

	matches, err := filepath.Glob(filepath.Join(granulePath, "*MTD*.xml"))
	if err != nil || len(matches) == 0 {
		return Metadata{}, fmt.Errorf("no metadata (*MTD*.xml) file in %s", granulePath)
	}
	xmlPath := matches[0]

	stat, err := os.Stat(xmlPath)
	if err != nil {
		return Metadata{}, err
	}

	key := metadataCache.GenerateKey(granulePath, resolution, stat.ModTime().Unix())
	if md, ok := metadataCache.Get(key); ok {
		return md, nil
	}

	md, err := parseMetadata(xmlPath, granulePath, resolution)
	if err != nil {
		return Metadata{}, err
	}

	if err := metadataCache.Set(key, md); err != nil {
		// Cache misses are recoverable, a failed write is not worth aborting a run.
		fmt.Printf("warning: failed to cache metadata for %s: %v\n", granulePath, err)
	}

	return md, nil
}

func parseMetadata(xmlPath, granulePath string, resolution int) (Metadata, error) {
	raw, err := os.ReadFile(xmlPath)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read %s: %v", xmlPath, err)
	}

	var doc tileMetadataXML
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse %s: %v", xmlPath, err)
	}

	md := Metadata{PixelSize: float64(resolution)}

	for _, size := range doc.GeometricInfo.TileGeocoding.Sizes {
		if size.Resolution == resolution {
			md.NRows = size.NRows
			md.NCols = size.NCols
		}
	}
	if md.NRows == 0 || md.NCols == 0 {
		return Metadata{}, fmt.Errorf("no size entry for resolution %d in %s", resolution, xmlPath)
	}

	found := false
	for _, pos := range doc.GeometricInfo.TileGeocoding.Geopositions {
		if pos.Resolution == resolution {
			md.XMin = pos.ULX
			md.YMax = pos.ULY
			md.XMax = pos.ULX + pos.XDim*float64(md.NCols)
			md.YMin = pos.ULY + pos.YDim*float64(md.NRows)
			found = true
		}
	}
	if !found {
		return Metadata{}, fmt.Errorf("no geoposition entry for resolution %d in %s", resolution, xmlPath)
	}

	csCode := doc.GeometricInfo.TileGeocoding.HorizontalCS
	parts := strings.Split(csCode, ":")
	epsg, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return Metadata{}, fmt.Errorf("unparseable HORIZONTAL_CS_CODE %q in %s", csCode, xmlPath)
	}
	md.EPSG = epsg

	// Sensing time carries sub-second digits that vary between formats.
	sensing := strings.Split(doc.GeneralInfo.SensingTime, ".")[0]
	sensing = strings.TrimSuffix(sensing, "Z")
	md.SensingTime, err = time.Parse("2006-01-02T15:04:05", sensing)
	if err != nil {
		return Metadata{}, fmt.Errorf("unparseable SENSING_TIME %q in %s", doc.GeneralInfo.SensingTime, xmlPath)
	}

	md.Tile = tileFromGranuleName(filepath.Base(granulePath))
	md.NodataFraction = nodataFraction(doc)

	return md, nil
}

// tileFromGranuleName extracts the ##XXX tile reference from old
// (S2A_USER_..._T36KWA_N02.04) and new (L2A_T36KWA_A012345_...) granule
// directory names.
func tileFromGranuleName(name string) string {
	parts := strings.Split(name, "_")
	if len(parts) < 2 {
		return name
	}

	tile := parts[1]
	if parts[1] == "USER" && len(parts) >= 3 {
		tile = parts[len(parts)-2]
	}
	return strings.TrimPrefix(tile, "T")
}

func nodataFraction(doc tileMetadataXML) float64 {
	qi := doc.QualityInfo.ImageContent
	if qi.Vegetation == nil {
		// Older sen2cor nests the percentages one level deeper.
		qi = doc.QualityInfo.L2AImageContent
	}
	if qi.Vegetation == nil || qi.NotVegetated == nil || qi.Water == nil {
		return 0
	}
	frac := 1 - (*qi.Vegetation+*qi.NotVegetated+*qi.Water)/100
	if frac < 0 {
		return 0
	}
	return frac
}
