package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"ctsegment/pkg/nifti"
	"ctsegment/pkg/segmentation"
	"ctsegment/pkg/visualization"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <volume>",
		Short: "Print the header, affine and intensity range of a NIfTI volume",
		Long: `Info prints the shape, datatype, voxel size, affine and intensity range of a
NIfTI volume. With --slices-dir it also writes every slice of the normalized
volume along --axis as JPEG images.`,
		Args: cobra.ExactArgs(1),
		RunE: runInfo,
	}
	cmd.Flags().String("slices-dir", "", "write normalized slices of the volume here")
	cmd.Flags().String("axis", "z", "slice axis for --slices-dir: x, y or z")
	return cmd
}

func runInfo(cmd *cobra.Command, args []string) error {
	path := args[0]
	out := cmd.OutOrStdout()

	hdr, err := nifti.ReadHeader(path)
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	vol, err := nifti.Load(path)
	if err != nil {
		return fmt.Errorf("load volume: %w", err)
	}

	nx, ny, nz := hdr.Shape()
	fmt.Fprintf(out, "File:        %s\n", path)
	fmt.Fprintf(out, "Shape:       %d x %d x %d\n", nx, ny, nz)
	fmt.Fprintf(out, "Datatype:    %s\n", hdr.Datatype)
	fmt.Fprintf(out, "Voxel size:  %.4g x %.4g x %.4g\n", vol.VoxelSize.X, vol.VoxelSize.Y, vol.VoxelSize.Z)
	fmt.Fprintf(out, "qform/sform: %d/%d\n", hdr.QformCode, hdr.SformCode)
	if d := hdr.Description(); d != "" {
		fmt.Fprintf(out, "Description: %s\n", d)
	}
	fmt.Fprintf(out, "Affine:\n%v\n", mat.Formatted(vol.Affine, mat.Prefix("  "), mat.Squeeze()))

	lo, hi, err := segmentation.Range(vol)
	if err != nil {
		fmt.Fprintf(out, "Intensity:   %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "Intensity:   %g .. %g\n", lo, hi)

	slicesDir, _ := cmd.Flags().GetString("slices-dir")
	if slicesDir == "" {
		return nil
	}
	axis, _ := cmd.Flags().GetString("axis")
	normalized, err := segmentation.Normalize(vol)
	if err != nil {
		return err
	}
	loggerFrom(cmd).Info("saving slices", "axis", axis, "dir", slicesDir)
	return visualization.NewViewer(normalized).SaveSliceSequence(axis, slicesDir)
}
