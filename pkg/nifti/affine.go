package nifti

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Affine returns the voxel-to-world transform the header describes.
//
// The sform wins when sform_code is set, then the qform, and otherwise a
// base affine built from pixdim with x flipped and the origin at the volume
// center. This is the order nibabel uses for get_best_affine.
func (h *Header) Affine() *mat.Dense {
	switch {
	case h.SformCode > XformUnknown:
		return h.sformAffine()
	case h.QformCode > XformUnknown:
		return h.qformAffine()
	}
	return h.baseAffine()
}

func (h *Header) sformAffine() *mat.Dense {
	a := mat.NewDense(4, 4, nil)
	for j := 0; j < 4; j++ {
		a.Set(0, j, float64(h.SrowX[j]))
		a.Set(1, j, float64(h.SrowY[j]))
		a.Set(2, j, float64(h.SrowZ[j]))
	}
	a.Set(3, 3, 1)
	return a
}

func (h *Header) qformAffine() *mat.Dense {
	b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		// b, c, d describe a 180 degree rotation; renormalize them
		n := math.Sqrt(b*b + c*c + d*d)
		b, c, d = b/n, c/n, d/n
		a = 0
	} else {
		a = math.Sqrt(a)
	}

	rot := mat.NewDense(3, 3, []float64{
		a*a + b*b - c*c - d*d, 2*b*c - 2*a*d, 2*b*d + 2*a*c,
		2*b*c + 2*a*d, a*a + c*c - b*b - d*d, 2*c*d - 2*a*b,
		2*b*d - 2*a*c, 2*c*d + 2*a*b, a*a + d*d - c*c - b*b,
	})

	qfac := float64(h.Pixdim[0])
	if qfac != -1 {
		qfac = 1
	}
	zooms := [3]float64{positive(h.Pixdim[1]), positive(h.Pixdim[2]), positive(h.Pixdim[3]) * qfac}

	out := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, rot.At(i, j)*zooms[j])
		}
	}
	out.Set(0, 3, float64(h.QoffsetX))
	out.Set(1, 3, float64(h.QoffsetY))
	out.Set(2, 3, float64(h.QoffsetZ))
	out.Set(3, 3, 1)
	return out
}

func (h *Header) baseAffine() *mat.Dense {
	nx, ny, nz := h.Shape()
	zx, zy, zz := positive(h.Pixdim[1]), positive(h.Pixdim[2]), positive(h.Pixdim[3])
	return mat.NewDense(4, 4, []float64{
		-zx, 0, 0, float64(nx-1) / 2 * zx,
		0, zy, 0, -float64(ny-1) / 2 * zy,
		0, 0, zz, -float64(nz-1) / 2 * zz,
		0, 0, 0, 1,
	})
}

// positive maps zero or negative voxel sizes to 1
func positive(v float32) float64 {
	if v <= 0 || math.IsNaN(float64(v)) {
		return 1
	}
	return float64(v)
}

// SetAffine stores affine in both the sform (with code sformCode) and the
// qform fields. The qform gets the nearest rigid rotation of the affine's
// linear part, derived by polar decomposition, along with pixdim and qfac.
// qform_code is left untouched.
func (h *Header) SetAffine(affine mat.Matrix, sformCode int16) {
	for j := 0; j < 4; j++ {
		h.SrowX[j] = float32(affine.At(0, j))
		h.SrowY[j] = float32(affine.At(1, j))
		h.SrowZ[j] = float32(affine.At(2, j))
	}
	h.SformCode = sformCode

	b, c, d, zooms, qfac := quaternFromAffine(affine)
	h.QuaternB, h.QuaternC, h.QuaternD = float32(b), float32(c), float32(d)
	h.QoffsetX = float32(affine.At(0, 3))
	h.QoffsetY = float32(affine.At(1, 3))
	h.QoffsetZ = float32(affine.At(2, 3))
	h.Pixdim[0] = float32(qfac)
	for i := 0; i < 3; i++ {
		h.Pixdim[i+1] = float32(zooms[i])
	}
}

// quaternFromAffine decomposes the 3x3 part of affine into a unit quaternion
// (b, c, d with a >= 0), column norms and the handedness factor.
func quaternFromAffine(affine mat.Matrix) (b, c, d float64, zooms [3]float64, qfac float64) {
	m := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, affine.At(i, j))
		}
	}

	for j := 0; j < 3; j++ {
		col := mat.Col(nil, j, m)
		n := math.Sqrt(col[0]*col[0] + col[1]*col[1] + col[2]*col[2])
		if n == 0 {
			// degenerate column: treat as the unit axis
			zooms[j] = 1
			m.Set(0, j, 0)
			m.Set(1, j, 0)
			m.Set(2, j, 0)
			m.Set(j, j, 1)
			continue
		}
		zooms[j] = n
		for i := 0; i < 3; i++ {
			m.Set(i, j, col[i]/n)
		}
	}

	// Nearest orthogonal matrix R = U * V^T
	var svd mat.SVD
	r := mat.NewDense(3, 3, nil)
	if svd.Factorize(m, mat.SVDFull) {
		var u, v mat.Dense
		svd.UTo(&u)
		svd.VTo(&v)
		r.Mul(&u, v.T())
	} else {
		r.Copy(m)
	}

	qfac = 1
	if mat.Det(r) < 0 {
		qfac = -1
		for i := 0; i < 3; i++ {
			r.Set(i, 2, -r.At(i, 2))
		}
	}

	r11, r12, r13 := r.At(0, 0), r.At(0, 1), r.At(0, 2)
	r21, r22, r23 := r.At(1, 0), r.At(1, 1), r.At(1, 2)
	r31, r32, r33 := r.At(2, 0), r.At(2, 1), r.At(2, 2)

	var a float64
	trace := r11 + r22 + r33 + 1
	if trace > 0.5 {
		a = 0.5 * math.Sqrt(trace)
		b = 0.25 * (r32 - r23) / a
		c = 0.25 * (r13 - r31) / a
		d = 0.25 * (r21 - r12) / a
	} else {
		xd := 1 + r11 - (r22 + r33)
		yd := 1 + r22 - (r11 + r33)
		zd := 1 + r33 - (r11 + r22)
		switch {
		case xd > 1:
			b = 0.5 * math.Sqrt(xd)
			c = 0.25 * (r12 + r21) / b
			d = 0.25 * (r13 + r31) / b
			a = 0.25 * (r32 - r23) / b
		case yd > 1:
			c = 0.5 * math.Sqrt(yd)
			b = 0.25 * (r12 + r21) / c
			d = 0.25 * (r23 + r32) / c
			a = 0.25 * (r13 - r31) / c
		default:
			d = 0.5 * math.Sqrt(zd)
			b = 0.25 * (r13 + r31) / d
			c = 0.25 * (r23 + r32) / d
			a = 0.25 * (r21 - r12) / d
		}
		if a < 0 {
			b, c, d = -b, -c, -d
		}
	}
	return b, c, d, zooms, qfac
}
