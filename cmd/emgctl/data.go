package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/emg.gesture/internal/monitoring"
	"github.com/banshee-data/emg.gesture/internal/recording"
	"github.com/banshee-data/emg.gesture/internal/segment"
)

func newExtractCmd(c *cli) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "extract CHANNEL_CSV...",
		Short: "Merge per-channel captures and cut them into one recording per gesture",
		Long: `Reads one single-column CSV per electrode, merges them into a
multi-channel recording and concatenates every scheduled gesture interval
into OUT/<label>.csv.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := recording.ReadChannelColumns(args)
			if err != nil {
				return err
			}
			rate := c.cfg.Device.Settings.SampleRate
			parts, err := segment.Extract(rec, rate, segment.DefaultProtocol())
			if err != nil {
				return err
			}
			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}
			labels := make([]string, 0, len(parts))
			for label := range parts {
				labels = append(labels, label)
			}
			slices.Sort(labels)
			for _, label := range labels {
				path := filepath.Join(out, label+".csv")
				if err := recording.WriteCSV(path, parts[label].Samples); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d samples -> %s\n", label, parts[label].Len(), path)
			}
			monitoring.Logf("extracted %d gestures from %d samples at %g Hz", len(parts), rec.Len(), rate)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "extracted", "output directory")
	cmd.Flags().Float64("rate", 2000, "sample rate of the captures in Hz")
	return cmd
}

func newSegmentCmd(c *cli) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "segment RECORDING_CSV...",
		Short: "Cut gesture recordings into fixed-size training windows",
		Long: `Each input is a headerless multi-channel CSV named <label>.csv.
Windows are written to OUT/<label>/<label>_NNNN.csv.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := segment.Params{WindowSize: c.cfg.Segment.WindowSize, StepSize: c.cfg.Segment.StepSize}
			if err := p.Validate(); err != nil {
				return err
			}
			total := 0
			for _, path := range args {
				label := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				rec, err := recording.ReadCSV(path)
				if err != nil {
					return err
				}
				n, err := segment.WriteWindows(out, label, rec, p)
				if err != nil {
					return fmt.Errorf("segment %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d samples -> %d windows\n", label, rec.Len(), n)
				total += n
			}
			monitoring.Logf("wrote %d windows of %d samples (step %d) under %s", total, p.WindowSize, p.StepSize, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "windows", "output directory")
	cmd.Flags().Int("window", 3000, "window size in samples")
	cmd.Flags().Int("step", 500, "step between window starts in samples")
	return cmd
}
