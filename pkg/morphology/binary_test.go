package morphology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctsegment/internal/models"
)

// cube returns a size^3 mask with the half-open block [lo, hi)^3 set
func cube(size, lo, hi int) *models.Mask {
	m := models.NewMask(size, size, size)
	for z := lo; z < hi; z++ {
		for y := lo; y < hi; y++ {
			for x := lo; x < hi; x++ {
				m.Data[m.Index(x, y, z)] = true
			}
		}
	}
	return m
}

func TestZeroIterationsIsIdentity(t *testing.T) {
	m := cube(6, 1, 4)

	for _, got := range []*models.Mask{Erode(m, 0), Dilate(m, 0), ErodeDilate(m, 0, 0)} {
		assert.Equal(t, m.Data, got.Data)
		assert.NotSame(t, m, got)
	}
}

func TestErodeCube(t *testing.T) {
	m := cube(10, 3, 7)

	once := Erode(m, 1)
	assert.Equal(t, 8, once.Count())
	for z := 0; z < 10; z++ {
		for y := 0; y < 10; y++ {
			for x := 0; x < 10; x++ {
				inCore := x >= 4 && x < 6 && y >= 4 && y < 6 && z >= 4 && z < 6
				assert.Equal(t, inCore, once.At(x, y, z), "voxel (%d,%d,%d)", x, y, z)
			}
		}
	}

	assert.Zero(t, Erode(m, 2).Count())
	// input must not be modified
	assert.Equal(t, 64, m.Count())
}

func TestErodeClearsBorder(t *testing.T) {
	m := models.NewMask(3, 3, 3)
	for i := range m.Data {
		m.Data[i] = true
	}

	out := Erode(m, 1)
	require.Equal(t, 1, out.Count())
	assert.True(t, out.At(1, 1, 1))
}

func TestErodeFlatVolume(t *testing.T) {
	// every voxel of a single-slice volume touches the outside along z
	m := models.NewMask(5, 5, 1)
	for i := range m.Data {
		m.Data[i] = true
	}
	assert.Zero(t, Erode(m, 1).Count())
}

func TestDilateSingleVoxel(t *testing.T) {
	m := models.NewMask(7, 7, 7)
	m.Data[m.Index(3, 3, 3)] = true

	tests := []struct {
		iterations int
		want       int
	}{
		{1, 7},  // center plus six faces
		{2, 25}, // octahedron of L1 radius 2
		{3, 63}, // octahedron of L1 radius 3
	}
	for _, tt := range tests {
		got := Dilate(m, tt.iterations)
		assert.Equal(t, tt.want, got.Count(), "iterations=%d", tt.iterations)
	}
}

func TestDilateStopsAtBorder(t *testing.T) {
	m := models.NewMask(3, 3, 3)
	m.Data[m.Index(0, 0, 0)] = true

	out := Dilate(m, 1)
	assert.Equal(t, 4, out.Count())
	assert.True(t, out.At(1, 0, 0))
	assert.True(t, out.At(0, 1, 0))
	assert.True(t, out.At(0, 0, 1))
	assert.False(t, out.At(1, 1, 0))
}

func TestErodeDilateCubeMatchesL1Ball(t *testing.T) {
	// erode once leaves the 2^3 core [4,5]^3, two dilations grow it to L1 distance 2
	out := ErodeDilate(cube(10, 3, 7), 1, 2)

	dist := func(c int) int {
		switch {
		case c < 4:
			return 4 - c
		case c > 5:
			return c - 5
		}
		return 0
	}
	for z := 0; z < 10; z++ {
		for y := 0; y < 10; y++ {
			for x := 0; x < 10; x++ {
				want := dist(x)+dist(y)+dist(z) <= 2
				assert.Equal(t, want, out.At(x, y, z), "voxel (%d,%d,%d)", x, y, z)
			}
		}
	}
	assert.Equal(t, 80, out.Count())
}

func TestEmptyMaskStaysEmpty(t *testing.T) {
	m := models.NewMask(4, 4, 4)
	assert.Zero(t, ErodeDilate(m, 2, 3).Count())
}
