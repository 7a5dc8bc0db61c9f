package segmentation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ctsegment/internal/models"
	"ctsegment/pkg/config"
	"ctsegment/pkg/nifti"
	"ctsegment/pkg/visualization"
)

// MaskExt is the file extension of every written mask
const MaskExt = ".nii.gz"

// Params holds the inputs of one segmentation run
type Params struct {
	// InputFile is the CT volume (.nii or .nii.gz)
	InputFile string

	// OutputDir receives <organ>.nii.gz; it is created with its parents if absent
	OutputDir string

	// Organs is the threshold table, processed in order
	Organs []models.OrganSpec

	// PreviewDir, when set, receives <organ>_z.jpg overlays of the middle axial slice
	PreviewDir string

	// Logger receives progress messages; slog.Default() when nil
	Logger *slog.Logger
}

// OrganResult describes one written mask
type OrganResult struct {
	Name     string
	Path     string
	Voxels   int
	Duration time.Duration
}

// Result summarizes a completed run
type Result struct {
	OutputDir string
	Shape     [3]int
	Range     [2]float64
	Organs    []OrganResult
	Duration  time.Duration
}

// Segmenter runs the load, normalize, segment and save pipeline for one volume
type Segmenter struct {
	params *Params
	logger *slog.Logger
}

// NewSegmenter creates a segmenter for params
func NewSegmenter(params *Params) *Segmenter {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{params: params, logger: logger}
}

// Run segments input into outputDir with the given organ table
func Run(input, outputDir string, organs []models.OrganSpec, logger *slog.Logger) (*Result, error) {
	return NewSegmenter(&Params{
		InputFile: input,
		OutputDir: outputDir,
		Organs:    organs,
		Logger:    logger,
	}).Process()
}

// Process runs the pipeline. It stops at the first error; masks already
// written stay on disk. Nothing is created until the input has loaded and
// normalized successfully.
func (s *Segmenter) Process() (*Result, error) {
	start := time.Now()
	p := s.params

	if err := config.ValidateOrgans(p.Organs); err != nil {
		return nil, err
	}

	s.logger.Info("loading volume", "input", p.InputFile)
	vol, err := nifti.Load(p.InputFile)
	if err != nil {
		return nil, fmt.Errorf("load volume: %w", err)
	}
	s.logger.Info("loaded volume",
		"shape", fmt.Sprintf("%dx%dx%d", vol.Width, vol.Height, vol.Depth),
		"voxel_size", fmt.Sprintf("%.3gx%.3gx%.3g", vol.VoxelSize.X, vol.VoxelSize.Y, vol.VoxelSize.Z),
	)

	lo, hi, err := Range(vol)
	if err != nil {
		return nil, fmt.Errorf("normalize volume: %w", err)
	}
	normalized, err := normalize(vol, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("normalize volume: %w", err)
	}
	s.logger.Debug("normalized intensities", "min", lo, "max", hi)

	if err := os.MkdirAll(p.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	var viewer *visualization.Viewer
	if p.PreviewDir != "" {
		if err := os.MkdirAll(p.PreviewDir, 0755); err != nil {
			return nil, fmt.Errorf("create preview directory: %w", err)
		}
		viewer = visualization.NewViewer(normalized)
	}

	result := &Result{
		OutputDir: p.OutputDir,
		Shape:     vol.Shape(),
		Range:     [2]float64{lo, hi},
		Organs:    make([]OrganResult, 0, len(p.Organs)),
	}

	for _, organ := range p.Organs {
		organStart := time.Now()
		mask := SegmentOrgan(normalized, organ)

		path := filepath.Join(p.OutputDir, organ.Name+MaskExt)
		if err := nifti.WriteMask(path, mask, vol); err != nil {
			return nil, fmt.Errorf("write mask %s: %w", organ.Name, err)
		}

		if viewer != nil {
			preview := filepath.Join(p.PreviewDir, organ.Name+"_z.jpg")
			if err := viewer.SaveOverlay(mask, "z", preview); err != nil {
				return nil, fmt.Errorf("write preview %s: %w", organ.Name, err)
			}
		}

		res := OrganResult{
			Name:     organ.Name,
			Path:     path,
			Voxels:   mask.Count(),
			Duration: time.Since(organStart),
		}
		result.Organs = append(result.Organs, res)
		s.logger.Debug("wrote mask", "organ", organ.Name, "voxels", res.Voxels, "path", path)
	}

	result.Duration = time.Since(start)
	s.logger.Info("Segmentation complete. Results saved in: "+p.OutputDir,
		"organs", len(result.Organs),
		"elapsed", result.Duration.Round(time.Millisecond),
	)
	return result, nil
}
