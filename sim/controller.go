package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"github.com/viam-modules/swerve/nova"
)

// FirmwareVersion is the firmware a simulated controller reports.
const FirmwareVersion = "1.4.0"

type controlMode int

const (
	modePercent controlMode = iota
	modeVoltage
	modePosition
)

// State is a snapshot of a simulated controller's configuration and motion.
type State struct {
	Inverted      bool
	Brake         bool
	StatorLimit   float64
	SupplyLimit   float64
	MaxOutput     float64
	RampUp        time.Duration
	RampDown      time.Duration
	SoftForward   float64
	SoftReverse   float64
	Gains         [2]nova.PIDF
	Slot          nova.PIDSlot
	Encoder       nova.EncoderType
	Frames        nova.StatusFrames
	VoltageComp   float64
	Position      float64 // rotations
	Velocity      float64 // rotations per minute
	AppliedVolts  float64
	PositionGoal  float64
	PositionMode  bool
	Closed        bool
	ConfigWrites  int
	CommandWrites int
}

// Controller is an in-process Thrifty Nova. Motion follows the steady-state response of its
// DCMotor, integrated every time the controller is touched.
type Controller struct {
	mu     sync.Mutex
	id     int
	motor  DCMotor
	clk    clock.Clock
	logger logging.Logger

	last   time.Time
	mode   controlMode
	output float64
	state  State
	faults []nova.Fault
}

var _ nova.Controller = (*Controller)(nil)

// NewController returns a simulated controller with the given CAN id driving motor. A nil
// clock uses wall time.
func NewController(id int, motor DCMotor, clk clock.Clock, logger logging.Logger) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	return &Controller{
		id:     id,
		motor:  motor,
		clk:    clk,
		logger: logger,
		last:   clk.Now(),
		state: State{
			MaxOutput:   1.0,
			StatorLimit: 40,
			RampUp:      100 * time.Millisecond,
			RampDown:    100 * time.Millisecond,
		},
	}
}

// ID returns the CAN id.
func (c *Controller) ID() int {
	return c.id
}

// Motor returns the simulated motor model.
func (c *Controller) Motor() DCMotor {
	return c.motor
}

// State returns a snapshot after advancing the simulation to now.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step()
	return c.state
}

// InjectFault latches a fault until ClearFaults is called.
func (c *Controller) InjectFault(f nova.Fault) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = append(c.faults, f)
}

// step integrates motion since the last call. Callers hold mu.
func (c *Controller) step() {
	now := c.clk.Now()
	dt := now.Sub(c.last).Seconds()
	c.last = now
	if c.state.Closed {
		return
	}

	maxVolts := c.supplyVoltage() * c.state.MaxOutput
	var volts float64
	switch c.mode {
	case modePercent:
		volts = clamp(c.output, -c.state.MaxOutput, c.state.MaxOutput) * c.supplyVoltage()
	case modeVoltage:
		volts = clamp(c.output, -maxVolts, maxVolts)
	case modePosition:
		c.state.AppliedVolts = 0
		c.stepPosition(dt, maxVolts)
		return
	}
	c.state.AppliedVolts = volts
	if c.state.Inverted {
		volts = -volts
	}

	rpm := RadPerSecToRPM(c.motor.Speed(0, volts))
	c.state.Velocity = rpm
	c.state.Position = c.applySoftLimits(c.state.Position + rpm/60*dt)
}

// stepPosition moves toward the position goal at the fastest speed the output limit allows.
func (c *Controller) stepPosition(dt, maxVolts float64) {
	maxRPM := RadPerSecToRPM(c.motor.Speed(0, maxVolts))
	remaining := c.state.PositionGoal - c.state.Position
	travel := maxRPM / 60 * dt
	if math.Abs(remaining) <= travel {
		c.state.Position = c.applySoftLimits(c.state.PositionGoal)
		c.state.Velocity = 0
		return
	}
	dir := math.Copysign(1, remaining)
	c.state.Position = c.applySoftLimits(c.state.Position + dir*travel)
	c.state.Velocity = dir * maxRPM
	c.state.AppliedVolts = dir * maxVolts
}

func (c *Controller) supplyVoltage() float64 {
	if c.state.VoltageComp > 0 {
		return c.state.VoltageComp
	}
	return c.motor.NominalVoltage
}

// applySoftLimits clamps a position when a non-empty soft limit window is configured.
func (c *Controller) applySoftLimits(pos float64) float64 {
	if c.state.SoftForward <= c.state.SoftReverse {
		return pos
	}
	return clamp(pos, c.state.SoftReverse, c.state.SoftForward)
}

func (c *Controller) command(mode controlMode, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Closed {
		return errors.Errorf("simulated controller (%d) is closed", c.id)
	}
	c.step()
	c.mode = mode
	c.output = value
	if mode == modePosition {
		c.state.PositionGoal = value
	}
	c.state.PositionMode = mode == modePosition
	c.state.CommandWrites++
	return nil
}

func (c *Controller) configure(name string, apply func(*State)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Closed {
		return errors.Errorf("simulated controller (%d) is closed", c.id)
	}
	c.step()
	apply(&c.state)
	c.state.ConfigWrites++
	if c.logger != nil {
		c.logger.Debugf("sim nova %d: %s", c.id, name)
	}
	return nil
}

func (c *Controller) read(get func(*State) float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step()
	return get(&c.state), nil
}

// SetPercent commands a duty cycle in [-1, 1].
func (c *Controller) SetPercent(ctx context.Context, percent float64) error {
	return c.command(modePercent, percent)
}

// SetVoltage commands a voltage.
func (c *Controller) SetVoltage(ctx context.Context, volts float64) error {
	return c.command(modeVoltage, volts)
}

// SetPosition commands the position closed loop.
func (c *Controller) SetPosition(ctx context.Context, rotations float64) error {
	return c.command(modePosition, rotations)
}

// Position returns native rotations.
func (c *Controller) Position(ctx context.Context) (float64, error) {
	return c.read(func(s *State) float64 { return s.Position })
}

// Velocity returns native rotations per minute.
func (c *Controller) Velocity(ctx context.Context) (float64, error) {
	return c.read(func(s *State) float64 { return s.Velocity })
}

// Voltage returns the applied voltage.
func (c *Controller) Voltage(ctx context.Context) (float64, error) {
	return c.read(func(s *State) float64 { return s.AppliedVolts })
}

// StatorCurrent returns the current drawn at the present speed and voltage, capped by the
// stator limit.
func (c *Controller) StatorCurrent(ctx context.Context) (float64, error) {
	return c.read(func(s *State) float64 {
		amps := math.Abs(c.motor.Current(RPMToRadPerSec(s.Velocity), s.AppliedVolts))
		if s.StatorLimit > 0 {
			amps = math.Min(amps, s.StatorLimit)
		}
		return amps
	})
}

// SetInverted sets the inversion flag. Inverted percent and voltage output turns the motor
// backwards.
func (c *Controller) SetInverted(ctx context.Context, inverted bool) error {
	return c.configure("set inverted", func(s *State) { s.Inverted = inverted })
}

// SetBrakeMode sets the idle mode.
func (c *Controller) SetBrakeMode(ctx context.Context, brake bool) error {
	return c.configure("set brake mode", func(s *State) { s.Brake = brake })
}

// SetMaxCurrent sets a current limit.
func (c *Controller) SetMaxCurrent(ctx context.Context, kind nova.CurrentType, amps float64) error {
	return c.configure("set max current", func(s *State) {
		if kind == nova.CurrentSupply {
			s.SupplyLimit = amps
			return
		}
		s.StatorLimit = amps
	})
}

// SetEncoderPosition overwrites the integrated encoder position.
func (c *Controller) SetEncoderPosition(ctx context.Context, rotations float64) error {
	return c.configure("set encoder position", func(s *State) { s.Position = rotations })
}

// SetMaxOutput sets the output ceiling.
func (c *Controller) SetMaxOutput(ctx context.Context, percent float64) error {
	return c.configure("set max output", func(s *State) { s.MaxOutput = percent })
}

// SetRampUp sets the time to ramp from zero to full output.
func (c *Controller) SetRampUp(ctx context.Context, ramp time.Duration) error {
	return c.configure("set ramp up", func(s *State) { s.RampUp = ramp })
}

// SetRampDown sets the time to ramp from full output to zero.
func (c *Controller) SetRampDown(ctx context.Context, ramp time.Duration) error {
	return c.configure("set ramp down", func(s *State) { s.RampDown = ramp })
}

// SetSoftLimits sets the soft limit window. An empty window disables it.
func (c *Controller) SetSoftLimits(ctx context.Context, forward, reverse float64) error {
	return c.configure("set soft limits", func(s *State) {
		s.SoftForward = forward
		s.SoftReverse = reverse
	})
}

// SetPIDF writes gains to a slot.
func (c *Controller) SetPIDF(ctx context.Context, slot nova.PIDSlot, gains nova.PIDF) error {
	if slot != nova.Slot0 && slot != nova.Slot1 {
		return errors.Errorf("simulated controller (%d) has no pid slot %d", c.id, slot)
	}
	return c.configure("set pidf", func(s *State) { s.Gains[slot] = gains })
}

// UsePIDSlot selects the active slot.
func (c *Controller) UsePIDSlot(ctx context.Context, slot nova.PIDSlot) error {
	return c.configure("use pid slot", func(s *State) { s.Slot = slot })
}

// UseEncoderType selects the feedback encoder.
func (c *Controller) UseEncoderType(ctx context.Context, kind nova.EncoderType) error {
	return c.configure("use encoder type", func(s *State) { s.Encoder = kind })
}

// SetStatusFrames sets the status frame periods.
func (c *Controller) SetStatusFrames(ctx context.Context, frames nova.StatusFrames) error {
	return c.configure("set status frames", func(s *State) { s.Frames = frames })
}

// SetVoltageCompensation sets the nominal voltage percent output is scaled against.
func (c *Controller) SetVoltageCompensation(ctx context.Context, volts float64) error {
	return c.configure("set voltage compensation", func(s *State) { s.VoltageComp = volts })
}

// Faults returns the latched faults.
func (c *Controller) Faults(ctx context.Context) ([]nova.Fault, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]nova.Fault, len(c.faults))
	copy(out, c.faults)
	return out, nil
}

// ClearFaults clears the latched faults.
func (c *Controller) ClearFaults(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = nil
	return nil
}

// FirmwareVersion returns FirmwareVersion.
func (c *Controller) FirmwareVersion(ctx context.Context) (string, error) {
	return FirmwareVersion, nil
}

// Close stops the simulation. Further commands fail.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Closed {
		return errors.Errorf("simulated controller (%d) already closed", c.id)
	}
	c.step()
	c.state.Closed = true
	c.state.Velocity = 0
	c.state.AppliedVolts = 0
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
