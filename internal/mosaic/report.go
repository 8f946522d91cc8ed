package mosaic

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/forest-guardian/sentinel-mosaic/internal/scene"
)

type contributionRow struct {
	Scene        int     `csv:"scene"`
	Granule      string  `csv:"granule"`
	Tile         string  `csv:"tile"`
	SensingTime  string  `csv:"sensing_time"`
	Pixels       int     `csv:"pixels"`
	CoverPercent float64 `csv:"cover_percent"`
}

// writeContributionReport records how many output pixels each input scene
// ended up supplying, including scenes that supplied none.
func writeContributionReport(m *Mosaic, scenes []*scene.Scene, path string) error {
	counts := m.ContributionCounts(len(scenes))
	total := float64(m.Grid.NPixels())

	rows := make([]contributionRow, len(scenes))
	for i, s := range scenes {
		rows[i] = contributionRow{
			Scene:        i + 1,
			Granule:      s.Name(),
			Tile:         s.Tile,
			SensingTime:  s.SensingTime.Format("2006-01-02T15:04:05"),
			Pixels:       counts[i+1],
			CoverPercent: 100 * float64(counts[i+1]) / total,
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create contribution report: %v", err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("failed to write contribution report: %v", err)
	}
	return nil
}
