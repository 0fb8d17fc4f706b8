// Package main is a bench CLI that runs a swerve module profile against simulated Thrifty Novas.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "swervesim",
		Short:        "Run swerve module profiles against simulated Thrifty Nova controllers",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newValidateCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var debug bool
	var verbosity string
	var showTelemetry bool

	cmd := &cobra.Command{
		Use:   "run <profile.yaml>",
		Short: "Run every setpoint of a profile and print the resulting motion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := LoadProfile(args[0])
			if err != nil {
				return err
			}
			if verbosity != "" {
				p.Verbosity = verbosity
				if err := Validate(p); err != nil {
					return err
				}
			}

			logger := logging.NewLogger("swervesim")
			if debug {
				logger.SetLevel(logging.DEBUG)
			}

			ctx := cmd.Context()
			b, err := newBench(ctx, p, clock.New(), logger, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			b.wait = utils.SelectContextOrWait

			err = b.run(ctx)
			if showTelemetry {
				b.printTelemetry()
			}
			return multierr.Combine(err, b.Close(ctx))
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "log at debug level")
	cmd.Flags().StringVar(&verbosity, "verbosity", "", "override the profile telemetry verbosity")
	cmd.Flags().BoolVar(&showTelemetry, "telemetry", false, "print the published telemetry when done")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <profile.yaml>",
		Short: "Check a profile without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := LoadProfile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d setpoints every %s\n", p.Module.Name, len(p.Module.Setpoints), p.Period())
			return nil
		},
	}
}
