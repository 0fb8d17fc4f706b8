package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"

	"github.com/viam-modules/swerve/novaswerve"
	"github.com/viam-modules/swerve/sim"
	"github.com/viam-modules/swerve/telemetry"
)

// bench is a swerve module built on two simulated controllers.
type bench struct {
	profile  *Profile
	drive    *novaswerve.SwerveMotor
	steer    *novaswerve.SwerveMotor
	driveSim *sim.Controller
	steerSim *sim.Controller
	pub      *telemetry.Publisher
	out      io.Writer

	// wait blocks for one period and reports whether the run should continue.
	wait func(ctx context.Context, d time.Duration) bool
}

func newBench(ctx context.Context, p *Profile, clk clock.Clock, logger logging.Logger, out io.Writer) (*bench, error) {
	verbosity, err := telemetry.ParseVerbosity(p.Verbosity)
	if err != nil {
		return nil, err
	}
	b := &bench{
		profile: p,
		pub:     telemetry.NewPublisher(verbosity, logger),
		out:     out,
	}

	build := func(mp MotorProfile, role novaswerve.Role) (*novaswerve.SwerveMotor, *sim.Controller, error) {
		model, _ := sim.MotorByName(mp.MotorType, 1)
		ctrl := sim.NewController(mp.CANID, model, clk, logger.Sublogger(fmt.Sprintf("nova%d", mp.CANID)))
		m, err := novaswerve.NewSwerveMotor(ctx, ctrl, role, model, novaswerve.Options{
			Telemetry: b.pub,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		errs := []error{
			m.ConfigureIntegratedEncoder(ctx, mp.ConversionFactor),
			m.SetInverted(ctx, mp.Inverted),
		}
		if mp.CurrentLimit > 0 {
			errs = append(errs, m.SetCurrentLimit(ctx, mp.CurrentLimit))
		}
		if err := multierr.Combine(errs...); err != nil {
			return nil, nil, errors.Wrapf(err, "configuring %s motor", role)
		}
		return m, ctrl, nil
	}

	if b.drive, b.driveSim, err = build(p.Module.Drive, novaswerve.Drive); err != nil {
		return nil, err
	}
	if b.steer, b.steerSim, err = build(p.Module.Steer, novaswerve.Steer); err != nil {
		return nil, multierr.Combine(err, b.drive.Close(ctx))
	}
	return b, nil
}

// run holds each setpoint for its duration, commanding both motors every period, and prints a
// line per setpoint.
func (b *bench) run(ctx context.Context) error {
	period := b.profile.Period()
	fmt.Fprintf(b.out, "%s: %d setpoints every %s\n", b.profile.Module.Name, len(b.profile.Module.Setpoints), period)

	for i, step := range b.profile.Module.Setpoints {
		if step.Fault != "" {
			b.steerSim.InjectFault(faultsByName[step.Fault])
		}

		hold := time.Duration(step.HoldMs) * time.Millisecond
		for elapsed := time.Duration(0); elapsed < hold; elapsed += period {
			if err := b.drive.SetReference(ctx, 0, step.DriveVolts); err != nil {
				return err
			}
			if err := b.steer.SetReference(ctx, step.SteerDegrees, 0); err != nil {
				return err
			}
			if !b.wait(ctx, period) {
				return ctx.Err()
			}
		}

		message := fmt.Sprintf("setpoint %d: ", i)
		b.drive.CheckErrors(ctx, message)
		b.steer.CheckErrors(ctx, message)
		if err := b.report(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

func (b *bench) report(ctx context.Context, i int) error {
	drivePos, err := b.drive.Position(ctx)
	if err != nil {
		return err
	}
	driveVel, err := b.drive.Velocity(ctx)
	if err != nil {
		return err
	}
	steerPos, err := b.steer.Position(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(b.out, "%3d  drive %10.3f %10.3f/s  steer %8.2f deg\n", i, drivePos, driveVel, steerPos)
	return nil
}

// printTelemetry writes every published number, sorted by key.
func (b *bench) printTelemetry() {
	for _, key := range b.pub.Keys() {
		v, _ := b.pub.Number(key)
		fmt.Fprintf(b.out, "%-20s %12.4f\n", key, v)
	}
}

func (b *bench) Close(ctx context.Context) error {
	return multierr.Combine(b.drive.Close(ctx), b.steer.Close(ctx))
}
