// Package novaswerve implements a swerve module actuator on a Thrifty Nova motor controller:
// unit conversion, feedback source selection, closed-loop dispatch for drive and steer motors,
// device initialization and fault reporting. It also registers the actuator as an rdk motor.
package novaswerve

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"

	"github.com/viam-modules/swerve/nova"
	"github.com/viam-modules/swerve/sim"
	"github.com/viam-modules/swerve/telemetry"
)

const componentName = "NovaSwerveMotor"

// Role is what the actuator turns in a swerve module.
type Role int

// Roles.
const (
	Drive Role = iota
	Steer
)

func (r Role) String() string {
	if r == Steer {
		return "steer"
	}
	return "drive"
}

// ParseRole parses "drive" or "steer".
func ParseRole(s string) (Role, error) {
	switch s {
	case "drive":
		return Drive, nil
	case "steer":
		return Steer, nil
	default:
		return Drive, errors.Errorf("role must be drive or steer, got %q", s)
	}
}

// Environment reports whether the actuator runs against real hardware. Every call that
// mutates the device is skipped, and succeeds, when it does not.
type Environment interface {
	IsReal() bool
}

type fixedEnvironment bool

func (e fixedEnvironment) IsReal() bool {
	return bool(e)
}

// Fixed environments.
var (
	RealHardware Environment = fixedEnvironment(true)
	Simulation   Environment = fixedEnvironment(false)
)

// configState tracks whether factory defaults have been applied. It only moves forward.
type configState int

const (
	notDefaulted configState = iota
	defaulted
)

// Factory default values.
const (
	defaultCurrentLimit = 40
	defaultRamp         = 100 * time.Millisecond
)

var (
	defaultStatusFrames = nova.StatusFrames{
		Fault:      250 * time.Millisecond,
		Sensor:     100 * time.Millisecond,
		QuadSensor: 250 * time.Millisecond,
		Control:    500 * time.Millisecond,
		Current:    500 * time.Millisecond,
	}
	integratedEncoderStatusFrames = nova.StatusFrames{
		Fault:      250 * time.Millisecond,
		Sensor:     10 * time.Millisecond,
		QuadSensor: 10 * time.Millisecond,
		Control:    20 * time.Millisecond,
		Current:    200 * time.Millisecond,
	}
)

// Options configures a SwerveMotor. Zero values select RealHardware, an Info level
// telemetry.Publisher and a new logger.
type Options struct {
	Environment Environment
	Telemetry   telemetry.Sink
	Logger      logging.Logger
}

// A SwerveMotor is one drive or steer motor of a swerve module driven by a Thrifty Nova. It is
// not safe for concurrent use; the owner serializes calls.
type SwerveMotor struct {
	ctrl     nova.Controller
	role     Role
	simMotor sim.DCMotor
	env      Environment
	sink     telemetry.Sink
	logger   logging.Logger

	conv     UnitConverter
	feedback FeedbackSource
	config   configState
}

// NewSwerveMotor takes over ctrl, applies factory defaults, clears sticky faults and selects
// the primary gain slot. Configuration failures are logged and do not fail construction.
func NewSwerveMotor(ctx context.Context, ctrl nova.Controller, role Role, simMotor sim.DCMotor, opts Options) (*SwerveMotor, error) {
	if ctrl == nil {
		return nil, errors.New("swerve motor requires a controller")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(componentName)
	}
	if opts.Environment == nil {
		opts.Environment = RealHardware
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewPublisher(telemetry.Info, opts.Logger)
	}
	conv, err := UnitConverterFromPosition(1)
	if err != nil {
		return nil, err
	}

	m := &SwerveMotor{
		ctrl:     ctrl,
		role:     role,
		simMotor: simMotor,
		env:      opts.Environment,
		sink:     opts.Telemetry,
		logger:   opts.Logger,
		conv:     conv,
	}
	m.feedback = &internalFeedback{m: m}

	err = multierr.Combine(
		m.FactoryDefaults(ctx),
		m.ClearStickyFaults(ctx),
		m.onHardware(func() error {
			return multierr.Combine(
				m.ctrl.UsePIDSlot(ctx, nova.Slot0),
				m.ctrl.SetPIDF(ctx, nova.Slot0, nova.PIDF{}),
			)
		}),
	)
	if err != nil {
		m.logger.CError(ctx, errors.Wrapf(err, "error configuring motor (%s)", m.name()))
	}
	m.checkFirmware(ctx)

	return m, nil
}

// onHardware runs fn only when the environment is real hardware.
func (m *SwerveMotor) onHardware(fn func() error) error {
	if !m.env.IsReal() {
		return nil
	}
	return fn()
}

func (m *SwerveMotor) name() string {
	return fmt.Sprintf("%s %d", m.role, m.ctrl.ID())
}

// key builds a telemetry key, "D" for drive and "A" for steer (angle) motors.
func (m *SwerveMotor) key(label string) string {
	prefix := "D"
	if m.role == Steer {
		prefix = "A"
	}
	return fmt.Sprintf("%s%d %s", prefix, m.ctrl.ID(), label)
}

// Role returns the role the motor was built for.
func (m *SwerveMotor) Role() Role {
	return m.role
}

// Controller returns the underlying controller.
func (m *SwerveMotor) Controller() nova.Controller {
	return m.ctrl
}

// SimMotor returns the motor model used by simulation.
func (m *SwerveMotor) SimMotor() sim.DCMotor {
	return m.simMotor
}

// Converter returns the active unit converter.
func (m *SwerveMotor) Converter() UnitConverter {
	return m.conv
}

// FactoryDefaults restores the controller's factory configuration. It takes effect at most
// once per SwerveMotor; later calls do nothing.
func (m *SwerveMotor) FactoryDefaults(ctx context.Context) error {
	if m.config == defaulted {
		return nil
	}
	m.config = defaulted

	return m.onHardware(func() error {
		return multierr.Combine(
			m.ctrl.SetInverted(ctx, false),
			m.ctrl.SetBrakeMode(ctx, false),
			m.SetCurrentLimit(ctx, defaultCurrentLimit),
			m.ctrl.SetEncoderPosition(ctx, 0),
			m.ctrl.SetMaxOutput(ctx, 1.0),
			m.ctrl.SetRampDown(ctx, defaultRamp),
			m.ctrl.SetRampUp(ctx, defaultRamp),
			m.ConfigureCANStatusFrames(ctx, defaultStatusFrames),
			m.ctrl.SetSoftLimits(ctx, 0, 0),
			m.ConfigurePIDF(ctx, nova.PIDF{}),
			m.ctrl.SetPIDF(ctx, nova.Slot1, nova.PIDF{}),
		)
	})
}

// ClearStickyFaults clears latched faults on the controller.
func (m *SwerveMotor) ClearStickyFaults(ctx context.Context) error {
	return m.onHardware(func() error {
		return m.ctrl.ClearFaults(ctx)
	})
}

// SetAbsoluteEncoder makes enc the feedback source; nil returns to the integrated encoder.
// The encoder is not owned: it is never closed by the motor. A typed nil pointer is not nil.
func (m *SwerveMotor) SetAbsoluteEncoder(ctx context.Context, enc AbsoluteEncoder) error {
	if enc == nil {
		m.feedback = &internalFeedback{m: m}
	} else {
		m.feedback = &externalFeedback{enc: enc}
	}
	return m.onHardware(func() error {
		return m.ctrl.UseEncoderType(ctx, m.feedback.EncoderType())
	})
}

// UsingExternalFeedbackSensor reports whether an absolute encoder is the feedback source.
func (m *SwerveMotor) UsingExternalFeedbackSensor() bool {
	return m.feedback.External()
}

// ConfigureIntegratedEncoder sets the number of physical units per motor rotation and speeds
// up the sensor status frames.
func (m *SwerveMotor) ConfigureIntegratedEncoder(ctx context.Context, positionFactor float64) error {
	conv, err := UnitConverterFromPosition(positionFactor)
	if err != nil {
		return err
	}
	m.conv = conv

	return m.onHardware(func() error {
		return multierr.Combine(
			m.ctrl.UseEncoderType(ctx, m.feedback.EncoderType()),
			m.ConfigureCANStatusFrames(ctx, integratedEncoderStatusFrames),
		)
	})
}

// SetVelocityConversionFactor overrides the velocity factor derived from the position factor.
func (m *SwerveMotor) SetVelocityConversionFactor(velocityFactor float64) error {
	conv, err := NewUnitConverter(m.conv.PositionFactor(), velocityFactor)
	if err != nil {
		return err
	}
	m.conv = conv
	return nil
}

// ConfigureCANStatusFrames sets the status frame periods.
func (m *SwerveMotor) ConfigureCANStatusFrames(ctx context.Context, frames nova.StatusFrames) error {
	return m.onHardware(func() error {
		err := m.ctrl.SetStatusFrames(ctx, frames)
		m.CheckErrors(ctx, "Configuring CAN status frames failed: ")
		return err
	})
}

// ConfigurePIDF writes the primary slot gains and selects that slot.
func (m *SwerveMotor) ConfigurePIDF(ctx context.Context, gains nova.PIDF) error {
	return m.onHardware(func() error {
		err := multierr.Combine(
			m.ctrl.SetPIDF(ctx, nova.Slot0, gains),
			m.ctrl.UsePIDSlot(ctx, nova.Slot0),
		)
		m.CheckErrors(ctx, "Configuring PIDF failed: ")
		return err
	})
}

// ConfigurePIDWrapping is accepted but does nothing: this controller has no continuous input
// mode, so setpoints must already be normalized.
func (m *SwerveMotor) ConfigurePIDWrapping(minInput, maxInput float64) {}

// DisablePIDWrapping does nothing, see ConfigurePIDWrapping.
func (m *SwerveMotor) DisablePIDWrapping() {}

// BurnFlash does nothing: the Nova persists its configuration on its own.
func (m *SwerveMotor) BurnFlash() {}

// SetMotorBrake sets brake (true) or coast (false) idle mode.
func (m *SwerveMotor) SetMotorBrake(ctx context.Context, brake bool) error {
	return m.onHardware(func() error {
		err := m.ctrl.SetBrakeMode(ctx, brake)
		m.CheckErrors(ctx, "Setting motor brake mode failed: ")
		return err
	})
}

// SetInverted sets the motor inversion.
func (m *SwerveMotor) SetInverted(ctx context.Context, inverted bool) error {
	return m.onHardware(func() error {
		err := m.ctrl.SetInverted(ctx, inverted)
		m.CheckErrors(ctx, "Setting motor inversion failed: ")
		return err
	})
}

// SetCurrentLimit limits the stator current. Combined with voltage compensation this can make
// the output jump.
func (m *SwerveMotor) SetCurrentLimit(ctx context.Context, amps int) error {
	return m.onHardware(func() error {
		err := m.ctrl.SetMaxCurrent(ctx, nova.CurrentStator, float64(amps))
		m.CheckErrors(ctx, "Setting current limit failed: ")
		return err
	})
}

// SetLoopRampRate sets the time in seconds to go from zero to full output, both ways.
func (m *SwerveMotor) SetLoopRampRate(ctx context.Context, seconds float64) error {
	ramp := time.Duration(seconds * float64(time.Second))
	return m.onHardware(func() error {
		err := multierr.Combine(
			m.ctrl.SetRampUp(ctx, ramp),
			m.ctrl.SetRampDown(ctx, ramp),
		)
		m.CheckErrors(ctx, "Setting loop ramp rate failed: ")
		return err
	})
}

// SetVoltageCompensation sets the nominal voltage output is scaled against.
func (m *SwerveMotor) SetVoltageCompensation(ctx context.Context, nominalVolts float64) error {
	return m.onHardware(func() error {
		err := m.ctrl.SetVoltageCompensation(ctx, nominalVolts)
		m.CheckErrors(ctx, "Setting voltage compensation failed: ")
		return err
	})
}

// Set commands a percent output in [-1, 1].
func (m *SwerveMotor) Set(ctx context.Context, percent float64) error {
	return m.onHardware(func() error {
		return m.ctrl.SetPercent(ctx, percent)
	})
}

// SetVoltage commands a voltage.
func (m *SwerveMotor) SetVoltage(ctx context.Context, volts float64) error {
	m.sink.PutNumber(m.key("Voltage"), volts)
	return m.onHardware(func() error {
		return m.ctrl.SetVoltage(ctx, volts)
	})
}

// Voltage returns the controller's output voltage.
func (m *SwerveMotor) Voltage(ctx context.Context) (float64, error) {
	return m.ctrl.Voltage(ctx)
}

// AppliedOutput returns the stator current.
func (m *SwerveMotor) AppliedOutput(ctx context.Context) (float64, error) {
	return m.ctrl.StatorCurrent(ctx)
}

// Position returns the position in meters or degrees from the active feedback source.
func (m *SwerveMotor) Position(ctx context.Context) (float64, error) {
	return m.feedback.ReadPosition(ctx)
}

// Velocity returns the velocity in meters or degrees per second from the active feedback
// source.
func (m *SwerveMotor) Velocity(ctx context.Context) (float64, error) {
	return m.feedback.ReadVelocity(ctx)
}

// SetPosition overwrites the integrated encoder position, in meters or degrees. It is
// ignored while an absolute encoder is the feedback source.
func (m *SwerveMotor) SetPosition(ctx context.Context, position float64) error {
	return m.onHardware(func() error {
		return m.feedback.WritePosition(ctx, position)
	})
}

// SetReference is SetReferenceAt with the motor's current position. A failed position read is
// logged and the reference is commanded anyway.
func (m *SwerveMotor) SetReference(ctx context.Context, setpoint, feedforward float64) error {
	position, err := m.Position(ctx)
	if err != nil {
		m.logger.CWarn(ctx, errors.Wrapf(err, "commanding motor (%s) without its position", m.name()))
		position = math.NaN()
	}
	return m.SetReferenceAt(ctx, setpoint, feedforward, position)
}

// SetReferenceAt commands the closed loop. A drive motor applies feedforward as a voltage and
// ignores setpoint; position is recorded for diagnostics only. A steer motor commands the
// position setpoint in degrees, converted to rotations unless an absolute encoder is the
// feedback source.
func (m *SwerveMotor) SetReferenceAt(ctx context.Context, setpoint, feedforward, position float64) error {
	if !m.env.IsReal() {
		return nil
	}

	if m.role == Drive {
		if !math.IsNaN(position) {
			m.sink.PutNumber(m.key("Reference Pos"), position)
		}
		return m.SetVoltage(ctx, feedforward)
	}

	converted := m.feedback.PositionCommand(setpoint)
	m.sink.PutNumber(m.key("SetPoint Conv"), converted)
	m.sink.PutNumber(m.key("SetPoint Motor"), converted)
	if err := m.ctrl.SetPosition(ctx, converted); err != nil {
		return errors.Wrapf(err, "error in SetReference from motor (%s)", m.name())
	}
	return nil
}

// Close releases the controller.
func (m *SwerveMotor) Close(ctx context.Context) error {
	if err := m.ctrl.Close(ctx); err != nil {
		return errors.Wrapf(err, "error closing motor (%s)", m.name())
	}
	return nil
}
