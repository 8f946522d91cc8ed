package raster

import (
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReprojectMaskSameGrid(t *testing.T) {
	godal.RegisterAll()

	g, err := NewGrid(Extent{XMin: 0, YMin: 0, XMax: 40, YMax: 40}, 10, 32736)
	require.NoError(t, err)

	mask := []uint8{
		0, 1, 2, 3,
		4, 5, 6, 7,
		8, 9, 10, 11,
		4, 4, 4, 4,
	}

	out, valid, err := ReprojectMask(g, mask, g)
	require.NoError(t, err)

	assert.Equal(t, mask, out)
	for i, v := range valid {
		assert.True(t, v, "pixel %d", i)
	}
}

func TestReprojectMaskMarksOutsideFootprintInvalid(t *testing.T) {
	godal.RegisterAll()

	// Source covers only the north-west quadrant of the destination.
	src, err := NewGrid(Extent{XMin: 0, YMin: 20, XMax: 20, YMax: 40}, 10, 32736)
	require.NoError(t, err)
	dst, err := NewGrid(Extent{XMin: 0, YMin: 0, XMax: 40, YMax: 40}, 10, 32736)
	require.NoError(t, err)

	out, valid, err := ReprojectMask(src, []uint8{3, 4, 5, 6}, dst)
	require.NoError(t, err)

	assert.Equal(t, []uint8{
		3, 4, 0, 0,
		5, 6, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
	}, out)
	for i, v := range valid {
		assert.Equal(t, i%4 < 2 && i/4 < 2, v, "pixel %d", i)
	}
}

func TestReprojectBandSameGrid(t *testing.T) {
	godal.RegisterAll()

	g, err := NewGrid(Extent{XMin: 0, YMin: 0, XMax: 20, YMax: 20}, 10, 32736)
	require.NoError(t, err)

	data := []float64{100, 200, 300, 400}
	out, valid, err := ReprojectBand(g, data, g, ResampleNear)
	require.NoError(t, err)

	assert.Equal(t, data, out)
	assert.Equal(t, []bool{true, true, true, true}, valid)
}

func TestReprojectMaskShapeMismatch(t *testing.T) {
	g, err := NewGrid(Extent{XMin: 0, YMin: 0, XMax: 20, YMax: 20}, 10, 32736)
	require.NoError(t, err)

	_, _, err = ReprojectMask(g, []uint8{1}, g)
	assert.Error(t, err)
}
