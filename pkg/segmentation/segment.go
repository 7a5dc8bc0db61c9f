// Package segmentation implements intensity-threshold segmentation of
// anatomical structures from a CT volume.
//
// A volume is rescaled to [0, 1] by its own minimum and maximum. Every organ
// is then a strict intensity band on that scale, cleaned up by binary erosion
// followed by binary dilation.
package segmentation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"ctsegment/internal/models"
	"ctsegment/pkg/morphology"
)

var (
	// ErrEmptyVolume is returned when a volume has no voxels
	ErrEmptyVolume = errors.New("volume has no voxels")

	// ErrConstantVolume is returned when every voxel has the same intensity,
	// which leaves the normalization range at zero
	ErrConstantVolume = errors.New("volume has constant intensity")

	// ErrNonFiniteIntensity is returned when a voxel is NaN or infinite
	ErrNonFiniteIntensity = errors.New("volume contains non-finite intensities")
)

// Range returns the minimum and maximum intensity of vol
func Range(vol *models.Volume) (min, max float64, err error) {
	if len(vol.Data) == 0 {
		return 0, 0, ErrEmptyVolume
	}
	for i, v := range vol.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, fmt.Errorf("%w: voxel %d is %v", ErrNonFiniteIntensity, i, v)
		}
	}
	return floats.Min(vol.Data), floats.Max(vol.Data), nil
}

// Normalize returns a copy of vol rescaled linearly so that its minimum maps
// to 0 and its maximum to 1
func Normalize(vol *models.Volume) (*models.Volume, error) {
	lo, hi, err := Range(vol)
	if err != nil {
		return nil, err
	}
	return normalize(vol, lo, hi)
}

// normalize rescales vol with a range already computed by Range
func normalize(vol *models.Volume, lo, hi float64) (*models.Volume, error) {
	if hi == lo {
		return nil, fmt.Errorf("%w: every voxel is %v", ErrConstantVolume, lo)
	}

	span := hi - lo
	out := make([]float64, len(vol.Data))
	for i, v := range vol.Data {
		out[i] = (v - lo) / span
	}
	return vol.WithData(out), nil
}

// Threshold marks voxels strictly inside the open band (low, high)
func Threshold(vol *models.Volume, low, high float64) *models.Mask {
	mask := models.NewMask(vol.Width, vol.Height, vol.Depth)
	for i, v := range vol.Data {
		mask.Data[i] = v > low && v < high
	}
	return mask
}

// SegmentOrgan computes the mask of one organ on a normalized volume:
// the intensity band, then spec.Erosion rounds of erosion, then
// spec.Dilation rounds of dilation
func SegmentOrgan(normalized *models.Volume, spec models.OrganSpec) *models.Mask {
	raw := Threshold(normalized, spec.Low, spec.High)
	return morphology.ErodeDilate(raw, spec.Erosion, spec.Dilation)
}
