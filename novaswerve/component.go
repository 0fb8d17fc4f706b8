package novaswerve

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/encoder"
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/components/motor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/operation"
	"go.viam.com/rdk/resource"

	"github.com/viam-modules/swerve/nova"
	"github.com/viam-modules/swerve/sim"
	"github.com/viam-modules/swerve/telemetry"
)

// Model for the Thrifty Nova swerve motor.
var Model = resource.NewModel("viam", "swerve", "thrifty-nova")

// maxCANID is the highest CAN id the Nova accepts.
const maxCANID = 62

// movingThreshold is the speed, in physical units per second, below which the motor is
// considered stopped.
const movingThreshold = 1e-3

// Config describes the configuration of a swerve motor.
type Config struct {
	CANID                    int        `json:"can_id"`
	Role                     string     `json:"role"`
	MotorType                string     `json:"motor_type,omitempty"`
	ConversionFactor         float64    `json:"conversion_factor,omitempty"`          // physical units per motor rotation
	VelocityConversionFactor float64    `json:"velocity_conversion_factor,omitempty"` // physical units per second per RPM
	Inverted                 bool       `json:"inverted,omitempty"`
	Brake                    bool       `json:"brake,omitempty"`
	CurrentLimit             int        `json:"current_limit_amps,omitempty"`
	RampRate                 float64    `json:"ramp_rate_sec,omitempty"`
	VoltageCompensation      float64    `json:"voltage_compensation,omitempty"`
	PIDF                     *nova.PIDF `json:"pidf,omitempty"`
	Controller               string     `json:"controller,omitempty"` // generic component driving the Nova, simulated if empty
	AbsoluteEncoder          string     `json:"absolute_encoder,omitempty"`
	Simulation               bool       `json:"simulation,omitempty"`
	Verbosity                string     `json:"verbosity,omitempty"`
	PositionTolerance        float64    `json:"position_tolerance,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (config *Config) Validate(path string) ([]string, []string, error) {
	var deps []string
	if config.CANID == 0 {
		return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "can_id")
	}
	if config.CANID < 0 || config.CANID > maxCANID {
		return nil, nil, errors.Errorf("can_id must be between 1 and %d, got %d", maxCANID, config.CANID)
	}
	if config.Role == "" {
		return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "role")
	}
	if _, err := ParseRole(config.Role); err != nil {
		return nil, nil, err
	}
	if _, ok := sim.MotorByName(config.MotorType, 1); !ok {
		return nil, nil, errors.Errorf("motor_type must be one of neo, neo550 or vortex, got %q", config.MotorType)
	}
	if config.ConversionFactor < 0 {
		return nil, nil, errors.New("conversion_factor must be positive")
	}
	if config.VelocityConversionFactor < 0 {
		return nil, nil, errors.New("velocity_conversion_factor must be positive")
	}
	if config.CurrentLimit < 0 {
		return nil, nil, errors.New("current_limit_amps can't be negative")
	}
	if config.RampRate < 0 {
		return nil, nil, errors.New("ramp_rate_sec can't be negative")
	}
	if config.PositionTolerance < 0 {
		return nil, nil, errors.New("position_tolerance can't be negative")
	}
	if _, err := telemetry.ParseVerbosity(config.Verbosity); err != nil {
		return nil, nil, err
	}
	if config.Controller != "" {
		deps = append(deps, config.Controller)
	}
	if config.AbsoluteEncoder != "" {
		deps = append(deps, config.AbsoluteEncoder)
	}
	return deps, nil, nil
}

func init() {
	resource.RegisterComponent(motor.API, Model, resource.Registration[motor.Motor, *Config]{
		Constructor: newMotor,
	})
}

// A Motor exposes a SwerveMotor as an rdk motor. Positions and velocities are in the
// configured physical units: meters for drive motors and degrees for steer motors.
type Motor struct {
	resource.Named
	resource.AlwaysRebuild

	mu        sync.Mutex
	swerve    *SwerveMotor
	env       Environment
	telemetry *telemetry.Publisher
	logger    logging.Logger
	opMgr     *operation.SingleOperationManager
	powerPct  float64
	tolerance float64
	motorName string
}

// newMotor returns a swerve motor driven by the configured controller, or by a simulated
// Nova when none is configured.
func newMotor(ctx context.Context, deps resource.Dependencies, c resource.Config, logger logging.Logger,
) (motor.Motor, error) {
	conf, err := resource.NativeConfig[*Config](c)
	if err != nil {
		return nil, err
	}

	var ctrl nova.Controller
	if conf.Controller != "" {
		driver, err := resource.FromDependencies[resource.Resource](deps, generic.Named(conf.Controller))
		if err != nil {
			return nil, errors.Wrapf(err, "%q is not a nova controller", conf.Controller)
		}
		ctrl = nova.FromResource(driver, conf.CANID, logger)
	} else {
		simMotor, _ := sim.MotorByName(conf.MotorType, 1)
		logger.CInfof(ctx, "no controller configured, simulating nova %d", conf.CANID)
		ctrl = sim.NewController(conf.CANID, simMotor, nil, logger)
	}

	var abs AbsoluteEncoder
	if conf.AbsoluteEncoder != "" {
		enc, err := encoder.FromDependencies(deps, conf.AbsoluteEncoder)
		if err != nil {
			return nil, errors.Wrapf(err, "%q is not an encoder", conf.AbsoluteEncoder)
		}
		abs = newEncoderFeedback(enc, nil)
	}

	return makeMotor(ctx, *conf, c.ResourceName(), logger, ctrl, abs)
}

// makeMotor returns a swerve motor. It is separate from newMotor, above, so a recording
// controller and a fake encoder can be injected during testing.
func makeMotor(ctx context.Context, c Config, name resource.Name, logger logging.Logger,
	ctrl nova.Controller, abs AbsoluteEncoder,
) (*Motor, error) {
	role, err := ParseRole(c.Role)
	if err != nil {
		return nil, err
	}
	simMotor, ok := sim.MotorByName(c.MotorType, 1)
	if !ok {
		return nil, errors.Errorf("unknown motor_type %q", c.MotorType)
	}
	verbosity, err := telemetry.ParseVerbosity(c.Verbosity)
	if err != nil {
		return nil, err
	}
	if c.ConversionFactor == 0 {
		logger.CWarn(ctx, "conversion_factor not set, using 1 physical unit per rotation")
		c.ConversionFactor = 1
	}
	if c.CurrentLimit == 0 {
		c.CurrentLimit = defaultCurrentLimit
	}
	if c.PositionTolerance == 0 {
		c.PositionTolerance = 1
	}

	env := RealHardware
	if c.Simulation {
		env = Simulation
	}
	pub := telemetry.NewPublisher(verbosity, logger)

	sm, err := NewSwerveMotor(ctx, ctrl, role, simMotor, Options{
		Environment: env,
		Telemetry:   pub,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	if err := sm.ConfigureIntegratedEncoder(ctx, c.ConversionFactor); err != nil {
		return nil, err
	}
	if c.VelocityConversionFactor > 0 {
		if err := sm.SetVelocityConversionFactor(c.VelocityConversionFactor); err != nil {
			return nil, err
		}
	}

	errs := []error{
		sm.SetInverted(ctx, c.Inverted),
		sm.SetMotorBrake(ctx, c.Brake),
		sm.SetCurrentLimit(ctx, c.CurrentLimit),
	}
	if c.RampRate > 0 {
		errs = append(errs, sm.SetLoopRampRate(ctx, c.RampRate))
	}
	if c.VoltageCompensation > 0 {
		errs = append(errs, sm.SetVoltageCompensation(ctx, c.VoltageCompensation))
	}
	if c.PIDF != nil {
		errs = append(errs, sm.ConfigurePIDF(ctx, *c.PIDF))
	}
	if abs != nil {
		errs = append(errs, sm.SetAbsoluteEncoder(ctx, abs))
	}
	if err := multierr.Combine(errs...); err != nil {
		logger.CError(ctx, errors.Wrapf(err, "error configuring motor (%s)", name.ShortName()))
	}

	return &Motor{
		Named:     name.AsNamed(),
		swerve:    sm,
		env:       env,
		telemetry: pub,
		logger:    logger,
		opMgr:     operation.NewSingleOperationManager(),
		tolerance: c.PositionTolerance,
		motorName: name.ShortName(),
	}, nil
}

// Swerve returns the underlying actuator.
func (m *Motor) Swerve() *SwerveMotor {
	return m.swerve
}

// SetPower sets the percent output, between -1 and 1.
func (m *Motor) SetPower(ctx context.Context, powerPct float64, extra map[string]interface{}) error {
	m.opMgr.CancelRunning(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powerPct = powerPct
	if err := m.swerve.Set(ctx, powerPct); err != nil {
		return errors.Wrapf(err, "error in SetPower from motor (%s)", m.motorName)
	}
	return nil
}

// SetRPM applies the voltage the motor model needs to spin the motor at rpm unloaded.
func (m *Motor) SetRPM(ctx context.Context, rpm float64, extra map[string]interface{}) error {
	m.opMgr.CancelRunning(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()

	model := m.swerve.SimMotor()
	warning, err := motor.CheckSpeed(rpm, model.FreeSpeedRPM())
	if rpm != 0 {
		if warning != "" {
			m.logger.CWarn(ctx, warning)
		}
		if err != nil {
			m.logger.CError(ctx, err)
		}
	}

	volts := model.Voltage(0, sim.RPMToRadPerSec(rpm))
	m.powerPct = volts / model.NominalVoltage
	if err := m.swerve.SetVoltage(ctx, volts); err != nil {
		return errors.Wrapf(err, "error in SetRPM from motor (%s)", m.motorName)
	}
	return nil
}

// GoTo drives a steer motor to position degrees. The firmware closed loop picks the speed, so
// rpm is only checked. It returns once the motor is within position_tolerance.
func (m *Motor) GoTo(ctx context.Context, rpm, position float64, extra map[string]interface{}) error {
	if m.swerve.Role() != Steer {
		return errors.Errorf("GoTo is only supported by steer motors, motor (%s) is a %s motor", m.motorName, m.swerve.Role())
	}
	warning, err := motor.CheckSpeed(rpm, m.swerve.SimMotor().FreeSpeedRPM())
	if warning != "" {
		m.logger.CWarn(ctx, warning)
	}
	if err != nil {
		return err
	}

	ctx, done := m.opMgr.New(ctx)
	defer done()

	m.mu.Lock()
	err = m.swerve.SetReference(ctx, position, 0)
	if err == nil && m.env.IsReal() {
		m.powerPct = m.travelPower(ctx, rpm, position)
	}
	m.mu.Unlock()
	if err != nil {
		return errors.Wrapf(err, "error in GoTo from motor (%s)", m.motorName)
	}
	if !m.env.IsReal() {
		return nil
	}

	if err := m.opMgr.WaitForSuccess(
		ctx,
		time.Millisecond*10,
		func(ctx context.Context) (bool, error) {
			return m.atPosition(ctx, position)
		},
	); err != nil {
		return err
	}
	m.mu.Lock()
	m.powerPct = 0
	m.mu.Unlock()
	return nil
}

// travelPower is the output reported by IsPowered while the position loop moves toward target:
// rpm as a fraction of free speed, signed by the direction of travel.
func (m *Motor) travelPower(ctx context.Context, rpm, target float64) float64 {
	pct := math.Min(math.Abs(rpm)/m.swerve.SimMotor().FreeSpeedRPM(), 1)
	if pos, err := m.swerve.Position(ctx); err == nil && target < pos {
		pct = -pct
	}
	return pct
}

// GoFor moves a steer motor by the given number of degrees from where it is. Both rpm and the
// distance can be negative; if both are, the motor moves forward.
func (m *Motor) GoFor(ctx context.Context, rpm, degrees float64, extra map[string]interface{}) error {
	curPos, err := m.Position(ctx, extra)
	if err != nil {
		return errors.Wrapf(err, "error in GoFor from motor (%s)", m.motorName)
	}

	d := 1.0
	if math.Signbit(degrees) != math.Signbit(rpm) {
		d = -1
	}
	target := curPos + math.Abs(degrees)*d
	return m.GoTo(ctx, math.Abs(rpm), target, extra)
}

func (m *Motor) atPosition(ctx context.Context, target float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, err := m.swerve.Position(ctx)
	if err != nil {
		return false, err
	}
	return math.Abs(pos-target) <= m.tolerance, nil
}

// ResetZeroPosition makes the current position (adjusted by offset) the new zero.
func (m *Motor) ResetZeroPosition(ctx context.Context, offset float64, extra map[string]interface{}) error {
	on, _, err := m.IsPowered(ctx, extra)
	if err != nil {
		return errors.Wrapf(err, "error in ResetZeroPosition from motor (%s)", m.motorName)
	} else if on {
		return errors.Errorf("can't zero motor (%s) while moving", m.motorName)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.swerve.SetPosition(ctx, -offset)
}

// Position reports the position in physical units.
func (m *Motor) Position(ctx context.Context, extra map[string]interface{}) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, err := m.swerve.Position(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "error in Position from motor (%s)", m.motorName)
	}
	return pos, nil
}

// Properties returns the status of optional properties on the motor.
func (m *Motor) Properties(ctx context.Context, extra map[string]interface{}) (motor.Properties, error) {
	return motor.Properties{
		PositionReporting: true,
	}, nil
}

// IsPowered returns whether a non-zero output was last commanded. A GoTo in progress counts as
// powered until the motor arrives.
func (m *Motor) IsPowered(ctx context.Context, extra map[string]interface{}) (bool, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.powerPct != 0, m.powerPct, nil
}

// IsMoving returns true if the motor is turning.
func (m *Motor) IsMoving(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vel, err := m.swerve.Velocity(ctx)
	if err != nil {
		return false, errors.Wrapf(err, "error in IsMoving from motor (%s)", m.motorName)
	}
	return math.Abs(vel) > movingThreshold, nil
}

// Stop stops the motor.
func (m *Motor) Stop(ctx context.Context, extra map[string]interface{}) error {
	m.opMgr.CancelRunning(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powerPct = 0
	return m.swerve.Set(ctx, 0)
}

// Close releases the controller.
func (m *Motor) Close(ctx context.Context) error {
	m.opMgr.CancelRunning(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.swerve.Close(ctx)
}
