// Command emgctl segments EMG recordings, trains and runs gesture models,
// and serves the live acquisition and recognition service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/banshee-data/emg.gesture/internal/config"
	"github.com/banshee-data/emg.gesture/internal/monitoring"
	"github.com/banshee-data/emg.gesture/internal/version"
)

// flagKeys maps command-line flags onto configuration keys. A flag only
// overrides the file and environment when it is set explicitly.
var flagKeys = map[string]string{
	"log-level": "log.level",
	"listen":    "http.listen",
	"source":    "device.source",
	"port":      "device.port",
	"db":        "storage.db_path",
	"model":     "recognition.model_path",
	"window":    "segment.window_size",
	"step":      "segment.step_size",
	"rate":      "device.settings.sample_rate",
	"channels":  "device.settings.channels",
}

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	cfg        *config.Config
}

func (c *cli) loadConfig(cmd *cobra.Command) error {
	bindings := make(map[string]*pflag.Flag)
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			bindings[key] = f
		}
	}
	cfg, err := config.Load(c.configPath, bindings)
	if err != nil {
		return err
	}
	if err := monitoring.SetLevel(cfg.Log.Level); err != nil {
		return err
	}
	monitoring.SetJSON(cfg.Log.JSON)
	c.cfg = cfg
	return nil
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "emgctl",
		Short:         "EMG gesture segmentation, training and live recognition",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig(cmd)
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", config.DefaultConfigPath, "YAML configuration file")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(c),
		newExtractCmd(c),
		newSegmentCmd(c),
		newTrainCmd(c),
		newPredictCmd(c),
		newMigrateCmd(c),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		// Version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "emgctl "+version.String())
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		monitoring.Logger().Error(err)
		stop()
		os.Exit(1)
	}
}
