// Package main is the entry point for the ctsegment CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ctsegment/pkg/config"
	"ctsegment/pkg/metrics"
	"ctsegment/pkg/segmentation"
)

type loggerKey struct{}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loggerFrom returns the logger the root command attached to cmd's context
func loggerFrom(cmd *cobra.Command) *slog.Logger {
	if ctx := cmd.Context(); ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return newLogger(cmd.ErrOrStderr(), false)
}

// newRootCmd builds the command tree. The root command segments one CT
// volume into per-organ masks.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ctsegment",
		Short: "Threshold-based organ segmentation of a CT volume",
		Long: `ctsegment reads a CT volume in NIfTI format, rescales its intensities to [0, 1]
and writes one binary mask per organ (liver, kidneys, spleen, lungs, heart, brain).
Each organ is a fixed intensity band cleaned up by binary erosion then dilation.
Masks are written as <organ>.nii.gz with the input's affine transform.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			cmd.SetContext(context.WithValue(ctx, loggerKey{}, newLogger(cmd.ErrOrStderr(), verbose)))
			return nil
		},
		RunE: runSegmentation,
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	f := rootCmd.Flags()
	f.String("config", "", "YAML config file with paths and the organ table")
	f.String("input", config.DefaultInput, "CT volume to segment (.nii or .nii.gz)")
	f.String("output-dir", config.DefaultOutputDir, "directory for <organ>.nii.gz masks")
	f.StringSlice("organs", nil, "only segment these organs (default: every organ in the table)")
	f.String("preview-dir", "", "write a JPEG overlay of each mask's middle axial slice here")
	f.String("metrics-file", "", "write a Prometheus text-format report of the run here")

	rootCmd.AddCommand(newInfoCmd(), newConfigCmd(), newVersionCmd())
	return rootCmd
}

// loadRunConfig merges the config file with explicitly set flags
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	f := cmd.Flags()

	cfg := config.DefaultConfig()
	if path, _ := f.GetString("config"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.Changed("input") {
		cfg.Input, _ = f.GetString("input")
	}
	if f.Changed("output-dir") {
		cfg.OutputDir, _ = f.GetString("output-dir")
	}
	if f.Changed("preview-dir") {
		cfg.Output.PreviewDir, _ = f.GetString("preview-dir")
	}
	if f.Changed("metrics-file") {
		cfg.Output.MetricsFile, _ = f.GetString("metrics-file")
	}
	if f.Changed("verbose") {
		cfg.Output.Verbose, _ = f.GetBool("verbose")
	}

	organs, _ := f.GetStringSlice("organs")
	if err := cfg.Select(organs); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSegmentation(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	logger := loggerFrom(cmd)
	if cfg.Output.Verbose {
		logger = newLogger(cmd.ErrOrStderr(), true)
	}

	seg := segmentation.NewSegmenter(&segmentation.Params{
		InputFile:  cfg.Input,
		OutputDir:  cfg.OutputDir,
		Organs:     cfg.Organs,
		PreviewDir: cfg.Output.PreviewDir,
		Logger:     logger,
	})
	result, err := seg.Process()
	if err != nil {
		return err
	}

	if cfg.Output.MetricsFile != "" {
		rec := metrics.NewRecorder()
		rec.Observe(result)
		if err := rec.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	for _, o := range result.Organs {
		fmt.Fprintf(out, "  %-14s %8d voxels  %s\n", o.Name, o.Voxels, o.Duration.Round(time.Millisecond))
	}
	fmt.Fprintln(out, "Segmentation complete. Results saved in:", result.OutputDir)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
