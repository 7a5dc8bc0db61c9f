package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Volume represents a 3D scalar volume loaded from a NIfTI file
type Volume struct {
	// Data is the 3D volume data as a 1D array with x varying fastest
	Data []float64

	// Width is the size of the volume along x in voxels
	Width int

	// Height is the size of the volume along y in voxels
	Height int

	// Depth is the size of the volume along z in voxels
	Depth int

	// Affine maps voxel indices (i, j, k, 1) to physical coordinates
	Affine *mat.Dense

	// VoxelSize is the physical size of each voxel, in Units
	VoxelSize struct {
		X, Y, Z float64
	}

	// Units is the NIfTI xyzt_units code of the source file
	Units uint8
}

// NewVolume allocates a zero-filled volume with an identity affine
func NewVolume(width, height, depth int) *Volume {
	v := &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
		Affine: IdentityAffine(),
	}
	v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z = 1, 1, 1
	return v
}

// Index returns the position of voxel (x, y, z) in Data
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the intensity at voxel (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores an intensity at voxel (x, y, z)
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Len returns the number of voxels
func (v *Volume) Len() int {
	return v.Width * v.Height * v.Depth
}

// Shape returns the dimensions as (width, height, depth)
func (v *Volume) Shape() [3]int {
	return [3]int{v.Width, v.Height, v.Depth}
}

// WithData returns a volume sharing this volume's geometry but holding data.
// The affine is copied so the two volumes never alias it.
func (v *Volume) WithData(data []float64) *Volume {
	out := &Volume{
		Data:      data,
		Width:     v.Width,
		Height:    v.Height,
		Depth:     v.Depth,
		Affine:    mat.DenseCopyOf(v.Affine),
		VoxelSize: v.VoxelSize,
		Units:     v.Units,
	}
	return out
}

// Mask is a boolean volume sharing the shape of the volume it was derived from
type Mask struct {
	Data   []bool
	Width  int
	Height int
	Depth  int
}

// NewMask allocates an all-false mask
func NewMask(width, height, depth int) *Mask {
	return &Mask{
		Data:   make([]bool, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// Index returns the position of voxel (x, y, z) in Data
func (m *Mask) Index(x, y, z int) int {
	return z*m.Width*m.Height + y*m.Width + x
}

// At reports whether voxel (x, y, z) is set
func (m *Mask) At(x, y, z int) bool {
	return m.Data[m.Index(x, y, z)]
}

// Shape returns the dimensions as (width, height, depth)
func (m *Mask) Shape() [3]int {
	return [3]int{m.Width, m.Height, m.Depth}
}

// Count returns the number of set voxels
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Data {
		if b {
			n++
		}
	}
	return n
}

// Clone returns an independent copy of the mask
func (m *Mask) Clone() *Mask {
	out := NewMask(m.Width, m.Height, m.Depth)
	copy(out.Data, m.Data)
	return out
}

// OrganSpec is one row of the organ threshold table. A voxel belongs to the
// organ's raw mask when Low < value < High on the normalized volume.
type OrganSpec struct {
	Name     string  `yaml:"name"`
	Low      float64 `yaml:"low"`
	High     float64 `yaml:"high"`
	Erosion  int     `yaml:"erosion"`
	Dilation int     `yaml:"dilation"`
}

func (o OrganSpec) String() string {
	return fmt.Sprintf("%s(%.2f..%.2f, erode %d, dilate %d)", o.Name, o.Low, o.High, o.Erosion, o.Dilation)
}

// IdentityAffine returns a 4x4 identity matrix
func IdentityAffine() *mat.Dense {
	a := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		a.Set(i, i, 1)
	}
	return a
}
