package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/emg.gesture/internal/classifier"
	"github.com/banshee-data/emg.gesture/internal/monitoring"
)

func newTrainCmd(c *cli) *cobra.Command {
	var (
		data         string
		out          string
		labels       string
		testFraction float64
		seed         int64
		opts         = classifier.DefaultTrainOptions()
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a gesture model on segmented windows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ls := classifier.NewLabelSet(strings.Split(labels, ",")...)
			window, channels := c.cfg.Segment.WindowSize, c.cfg.Device.Settings.Channels
			ds, stats, err := classifier.LoadDataset(data, ls, window, channels)
			if err != nil {
				return err
			}
			monitoring.Logf("loaded %d windows (skipped %d wrong size, %d flat)", stats.Loaded, stats.WrongSize, stats.Flat)

			train, test, err := classifier.SplitStratified(ds, testFraction, seed)
			if err != nil {
				return err
			}
			model, err := classifier.Train(train, window, channels, opts)
			if err != nil {
				return err
			}
			if test.Len() > 0 {
				acc, err := classifier.Evaluate(model, test)
				if err != nil {
					return err
				}
				model.Accuracy = acc
			}
			if err := model.Save(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "trained on %d windows, test accuracy %.3f on %d, saved %s\n",
				train.Len(), model.Accuracy, test.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "windows", "directory of <label>/*.csv windows")
	cmd.Flags().StringVar(&out, "out", "model.json", "model artifact to write")
	cmd.Flags().StringVar(&labels, "labels", "i,b,h,e", "comma-separated labels in output order")
	cmd.Flags().Float64Var(&testFraction, "test-fraction", 0.2, "share of each class held out for evaluation")
	cmd.Flags().Int64Var(&seed, "seed", 1, "shuffle seed for the train/test split")
	cmd.Flags().IntVar(&opts.Epochs, "epochs", opts.Epochs, "gradient descent epochs")
	cmd.Flags().Float64Var(&opts.LearningRate, "learning-rate", opts.LearningRate, "gradient descent step")
	cmd.Flags().Int("window", 3000, "window size in samples")
	cmd.Flags().Int("channels", 4, "channels per sample")
	return cmd
}

// predictResult is one line of `emgctl predict` output.
type predictResult struct {
	File string `json:"file"`
	classifier.Prediction
	Error string `json:"error,omitempty"`
}

func newPredictCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict WINDOW_CSV...",
		Short: "Classify recorded windows with a trained model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clf, err := classifier.Load(c.cfg.Recognition.ModelPath, c.cfg.Recognition.MinConfidence)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			failed := 0
			for _, path := range args {
				res := predictResult{File: path}
				p, err := clf.PredictCSV(path)
				if err != nil {
					res.Error = err.Error()
					failed++
				} else {
					res.Prediction = p
				}
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be classified", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().String("model", "model.json", "gesture model artifact")
	return cmd
}
