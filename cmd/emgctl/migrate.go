package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/emg.gesture/internal/db"
)

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the session database schema",
	}
	cmd.PersistentFlags().String("db", "emg.db", "session database path")

	withDB := func(f func(cmd *cobra.Command, d *db.DB, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			d, err := db.OpenDB(c.cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer d.Close()
			return f(cmd, d, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, d *db.DB, _ []string) error {
				if err := d.MigrateUp(); err != nil {
					return err
				}
				return printStatus(cmd, d)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, d *db.DB, _ []string) error {
				if err := d.MigrateDown(); err != nil {
					return err
				}
				return printStatus(cmd, d)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied and latest schema versions",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, d *db.DB, _ []string) error {
				return printStatus(cmd, d)
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Record VERSION as applied without running it, to clear a dirty state",
			Args:  cobra.ExactArgs(1),
			RunE: withDB(func(cmd *cobra.Command, d *db.DB, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return err
				}
				if err := d.MigrateForce(v); err != nil {
					return err
				}
				return printStatus(cmd, d)
			}),
		},
	)
	return cmd
}

func printStatus(cmd *cobra.Command, d *db.DB) error {
	st, err := d.MigrateStatus()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version %d of %d", st.Version, st.Latest)
	if st.Dirty {
		fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
	}
	if st.Pending() {
		fmt.Fprintf(cmd.OutOrStdout(), ", %d pending", st.Latest-st.Version)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
