package mosaic

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/sentinel-mosaic/internal/scene"
)

func TestWriteContributionReport(t *testing.T) {
	m := NewMosaic(testGrid(t, 2, 2))
	m.Provenance = []uint16{1, 1, 1, 2}

	scenes := []*scene.Scene{
		{GranulePath: "/data/L2A_T36MYE_A012345_20200101T074249", Tile: "36MYE",
			SensingTime: time.Date(2020, 1, 1, 7, 42, 49, 0, time.UTC)},
		{GranulePath: "/data/L2A_T36MYD_A012346_20200103T074249", Tile: "36MYD",
			SensingTime: time.Date(2020, 1, 3, 7, 42, 49, 0, time.UTC)},
	}

	path := filepath.Join(t.TempDir(), "contributions.csv")
	require.NoError(t, writeContributionReport(m, scenes, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "scene,granule,tile,sensing_time,pixels,cover_percent", lines[0])
	assert.Contains(t, lines[1], "L2A_T36MYE_A012345_20200101T074249")
	assert.Contains(t, lines[1], ",3,")
	assert.Contains(t, lines[2], "36MYD")
	assert.Contains(t, lines[2], ",1,")
}
