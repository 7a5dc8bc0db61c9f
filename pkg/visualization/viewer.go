// Package visualization renders axis-aligned slices of a volume, optionally
// with a segmentation mask tinted on top, as JPEG previews.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"ctsegment/internal/models"
)

// overlayAlpha is the weight of the mask color over the grayscale voxel
const overlayAlpha = 0.45

// MaskColor tints voxels covered by a mask
var MaskColor = color.RGBA{R: 255, G: 32, B: 32, A: 255}

// Viewer extracts 2D slices from a volume whose intensities lie in [0, 1],
// such as a normalized CT volume. Values outside that range are clamped.
type Viewer struct {
	vol *models.Volume
}

// NewViewer creates a slice viewer over vol
func NewViewer(vol *models.Volume) *Viewer {
	return &Viewer{vol: vol}
}

// plane describes the 2D grid of one axis and maps its pixels back to voxels
type plane struct {
	width, height int
	voxel         func(u, v int) (x, y, z int)
}

// planeFor returns the slice geometry for axis at position
func (v *Viewer) planeFor(axis string, position int) (plane, error) {
	if position < 0 {
		return plane{}, fmt.Errorf("position must be non-negative")
	}

	vol := v.vol
	switch axis {
	case "x", "X":
		// YZ plane
		if position >= vol.Width {
			return plane{}, fmt.Errorf("position %d exceeds width %d", position, vol.Width)
		}
		return plane{vol.Depth, vol.Height, func(u, w int) (int, int, int) { return position, w, u }}, nil
	case "y", "Y":
		// XZ plane
		if position >= vol.Height {
			return plane{}, fmt.Errorf("position %d exceeds height %d", position, vol.Height)
		}
		return plane{vol.Width, vol.Depth, func(u, w int) (int, int, int) { return u, position, w }}, nil
	case "z", "Z":
		// XY plane
		if position >= vol.Depth {
			return plane{}, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth)
		}
		return plane{vol.Width, vol.Height, func(u, w int) (int, int, int) { return u, w, position }}, nil
	}
	return plane{}, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// Extent returns the number of slices along axis
func (v *Viewer) Extent(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return v.vol.Width, nil
	case "y", "Y":
		return v.vol.Height, nil
	case "z", "Z":
		return v.vol.Depth, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts a 16-bit grayscale slice along axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	p, err := v.planeFor(axis, position)
	if err != nil {
		return nil, err
	}

	img := image.NewGray16(image.Rect(0, 0, p.width, p.height))
	for row := 0; row < p.height; row++ {
		for col := 0; col < p.width; col++ {
			x, y, z := p.voxel(col, row)
			img.SetGray16(col, row, color.Gray16{Y: gray16(v.vol.At(x, y, z))})
		}
	}
	return img, nil
}

// Overlay extracts a slice along axis and tints voxels set in mask
func (v *Viewer) Overlay(mask *models.Mask, axis string, position int) (image.Image, error) {
	if mask.Shape() != v.vol.Shape() {
		return nil, fmt.Errorf("mask shape %v does not match volume %v", mask.Shape(), v.vol.Shape())
	}
	p, err := v.planeFor(axis, position)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	for row := 0; row < p.height; row++ {
		for col := 0; col < p.width; col++ {
			x, y, z := p.voxel(col, row)
			g := uint8(gray16(v.vol.At(x, y, z)) >> 8)
			c := color.RGBA{R: g, G: g, B: g, A: 255}
			if mask.At(x, y, z) {
				c = blend(c, MaskColor)
			}
			img.SetRGBA(col, row, c)
		}
	}
	return img, nil
}

// SaveOverlay writes the middle slice along axis with mask tinted on top
func (v *Viewer) SaveOverlay(mask *models.Mask, axis, filename string) error {
	n, err := v.Extent(axis)
	if err != nil {
		return err
	}
	img, err := v.Overlay(mask, axis, n/2)
	if err != nil {
		return err
	}
	return v.SaveSlice(img, filename)
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	maxPos, err := v.Extent(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

func gray16(value float64) uint16 {
	if math.IsNaN(value) {
		return 0
	}
	return uint16(math.Max(0, math.Min(65535, value*65535)))
}

func blend(base, tint color.RGBA) color.RGBA {
	mix := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a)*(1-overlayAlpha) + float64(b)*overlayAlpha))
	}
	return color.RGBA{R: mix(base.R, tint.R), G: mix(base.G, tint.G), B: mix(base.B, tint.B), A: 255}
}
