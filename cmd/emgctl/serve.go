package main

import (
	"github.com/spf13/cobra"

	"github.com/banshee-data/emg.gesture/internal/app"
	"github.com/banshee-data/emg.gesture/internal/monitoring"
	"github.com/banshee-data/emg.gesture/internal/version"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run live acquisition, recognition and the operator API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			monitoring.Logf("emgctl %s starting", version.String())
			a, err := app.New(c.cfg, c.configPath, app.Deps{})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().String("listen", ":8080", "operator API listen address")
	cmd.Flags().String("source", "mock", "DAQ source: mock or serial")
	cmd.Flags().String("port", "", "serial device path for the serial source")
	cmd.Flags().String("db", "emg.db", "session database path")
	cmd.Flags().String("model", "model.json", "gesture model artifact")
	return cmd
}
