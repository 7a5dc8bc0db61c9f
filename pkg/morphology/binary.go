// Package morphology implements 3D binary erosion and dilation on masks.
//
// The structuring element is the 6-connected cross: a voxel and its face
// neighbors along x, y and z. Voxels outside the volume count as background,
// so erosion clears every set voxel on the volume border and dilation never
// grows in from outside.
package morphology

import "ctsegment/internal/models"

// offsets of the face neighbors along each axis
var faceSteps = [...]int{-1, 1}

// Erode applies iterations rounds of binary erosion and returns a new mask.
// Zero or negative iterations return an unchanged copy.
func Erode(m *models.Mask, iterations int) *models.Mask {
	return repeat(m, iterations, erodeOnce)
}

// Dilate applies iterations rounds of binary dilation and returns a new mask.
// Zero or negative iterations return an unchanged copy.
func Dilate(m *models.Mask, iterations int) *models.Mask {
	return repeat(m, iterations, dilateOnce)
}

// ErodeDilate erodes m erosion times and then dilates the result dilation
// times. The counts are independent, unlike a morphological opening.
func ErodeDilate(m *models.Mask, erosion, dilation int) *models.Mask {
	return Dilate(Erode(m, erosion), dilation)
}

func repeat(m *models.Mask, iterations int, step func(src, dst *models.Mask) bool) *models.Mask {
	cur := m.Clone()
	if iterations <= 0 {
		return cur
	}

	// Ping-pong between two buffers so peak memory stays at two masks
	next := models.NewMask(m.Width, m.Height, m.Depth)
	for i := 0; i < iterations; i++ {
		changed := step(cur, next)
		cur, next = next, cur
		if !changed {
			// Further rounds are fixed points
			break
		}
	}
	return cur
}

// erodeOnce writes one erosion of src into dst and reports whether anything changed
func erodeOnce(src, dst *models.Mask) bool {
	w, h, d := src.Width, src.Height, src.Depth
	changed := false
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				idx := src.Index(x, y, z)
				keep := src.Data[idx] && allNeighbors(src, x, y, z)
				dst.Data[idx] = keep
				if keep != src.Data[idx] {
					changed = true
				}
			}
		}
	}
	return changed
}

// dilateOnce writes one dilation of src into dst and reports whether anything changed
func dilateOnce(src, dst *models.Mask) bool {
	w, h, d := src.Width, src.Height, src.Depth
	changed := false
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				idx := src.Index(x, y, z)
				set := src.Data[idx] || anyNeighbor(src, x, y, z)
				dst.Data[idx] = set
				if set != src.Data[idx] {
					changed = true
				}
			}
		}
	}
	return changed
}

// allNeighbors reports whether all six face neighbors are inside the volume and set
func allNeighbors(m *models.Mask, x, y, z int) bool {
	for _, s := range faceSteps {
		if !inBoundsSet(m, x+s, y, z) || !inBoundsSet(m, x, y+s, z) || !inBoundsSet(m, x, y, z+s) {
			return false
		}
	}
	return true
}

// anyNeighbor reports whether at least one face neighbor inside the volume is set
func anyNeighbor(m *models.Mask, x, y, z int) bool {
	for _, s := range faceSteps {
		if inBoundsSet(m, x+s, y, z) || inBoundsSet(m, x, y+s, z) || inBoundsSet(m, x, y, z+s) {
			return true
		}
	}
	return false
}

func inBoundsSet(m *models.Mask, x, y, z int) bool {
	if x < 0 || y < 0 || z < 0 || x >= m.Width || y >= m.Height || z >= m.Depth {
		return false
	}
	return m.Data[m.Index(x, y, z)]
}
