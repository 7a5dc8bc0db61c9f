package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestVolumeIndexing(t *testing.T) {
	v := NewVolume(4, 3, 2)
	require.Len(t, v.Data, 24)

	v.Set(3, 2, 1, 7)
	assert.Equal(t, 23, v.Index(3, 2, 1))
	assert.Equal(t, 7.0, v.At(3, 2, 1))
	assert.Equal(t, 7.0, v.Data[23])
	assert.Equal(t, [3]int{4, 3, 2}, v.Shape())
}

func TestWithDataCopiesAffine(t *testing.T) {
	v := NewVolume(2, 2, 2)
	v.Affine.Set(0, 3, 12.5)
	v.Units = 2

	w := v.WithData(make([]float64, v.Len()))
	w.Affine.Set(0, 3, -1)

	assert.Equal(t, 12.5, v.Affine.At(0, 3))
	assert.Equal(t, uint8(2), w.Units)
	assert.Equal(t, v.Shape(), w.Shape())
}

func TestMaskCountAndClone(t *testing.T) {
	m := NewMask(3, 3, 3)
	m.Data[m.Index(1, 1, 1)] = true
	m.Data[m.Index(0, 2, 1)] = true

	c := m.Clone()
	c.Data[0] = true

	assert.Equal(t, 2, m.Count())
	assert.Equal(t, 3, c.Count())
	assert.True(t, m.At(1, 1, 1))
}

func TestIdentityAffine(t *testing.T) {
	want := mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	assert.True(t, mat.Equal(want, IdentityAffine()))
}
