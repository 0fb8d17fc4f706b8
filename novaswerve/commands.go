package novaswerve

import (
	"context"

	"github.com/pkg/errors"

	"github.com/viam-modules/swerve/nova"
)

// DoCommand() related constants.
const (
	Command            = "command"
	SetReferenceCmd    = "set_reference"
	SetVoltageCmd      = "set_voltage"
	TelemetryCmd       = "telemetry"
	StatusCmd          = "status"
	CheckFaultsCmd     = "check_faults"
	ClearFaultsCmd     = "clear_faults"
	FactoryDefaultsCmd = "factory_defaults"
	SetBrakeCmd        = "set_brake"
	SetCurrentCmd      = "set_current_limit"
	SetRampRateCmd     = "set_ramp_rate"
	ConfigurePIDFCmd   = "configure_pidf"

	SetpointVal    = "setpoint"
	FeedforwardVal = "feedforward"
	VoltsVal       = "volts"
	MessageVal     = "message"
	BrakeVal       = "brake"
	AmpsVal        = "amps"
	SecondsVal     = "seconds"
)

// DoCommand executes additional commands beyond the Motor{} interface.
func (m *Motor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	name, ok := cmd[Command]
	if !ok {
		return nil, errors.Errorf("missing %s value", Command)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case SetReferenceCmd:
		setpoint, err := floatArg(cmd, SetpointVal, true)
		if err != nil {
			return nil, err
		}
		ff, err := floatArg(cmd, FeedforwardVal, false)
		if err != nil {
			return nil, err
		}
		if err := m.swerve.SetReference(ctx, setpoint, ff); err != nil {
			return nil, err
		}
		if m.swerve.Role() == Drive {
			m.powerPct = ff / m.swerve.SimMotor().NominalVoltage
		} else {
			// the position loop stays engaged until Stop or SetPower
			m.powerPct = 1
		}
		return nil, nil
	case SetVoltageCmd:
		volts, err := floatArg(cmd, VoltsVal, true)
		if err != nil {
			return nil, err
		}
		m.powerPct = volts / m.swerve.SimMotor().NominalVoltage
		return nil, m.swerve.SetVoltage(ctx, volts)
	case TelemetryCmd:
		out := map[string]interface{}{}
		for k, v := range m.telemetry.Snapshot() {
			out[k] = v
		}
		return out, nil
	case StatusCmd:
		return m.status(ctx)
	case CheckFaultsCmd:
		message, _ := cmd[MessageVal].(string)
		m.swerve.CheckErrors(ctx, message)
		return nil, nil
	case ClearFaultsCmd:
		return nil, m.swerve.ClearStickyFaults(ctx)
	case FactoryDefaultsCmd:
		return nil, m.swerve.FactoryDefaults(ctx)
	case SetBrakeCmd:
		brake, ok := cmd[BrakeVal].(bool)
		if !ok {
			return nil, errors.Errorf("need boolean %s value for %s", BrakeVal, SetBrakeCmd)
		}
		return nil, m.swerve.SetMotorBrake(ctx, brake)
	case SetCurrentCmd:
		amps, err := floatArg(cmd, AmpsVal, true)
		if err != nil {
			return nil, err
		}
		return nil, m.swerve.SetCurrentLimit(ctx, int(amps))
	case SetRampRateCmd:
		seconds, err := floatArg(cmd, SecondsVal, true)
		if err != nil {
			return nil, err
		}
		return nil, m.swerve.SetLoopRampRate(ctx, seconds)
	case ConfigurePIDFCmd:
		var gains nova.PIDF
		var err error
		for key, dst := range map[string]*float64{"p": &gains.P, "i": &gains.I, "d": &gains.D, "f": &gains.F} {
			if *dst, err = floatArg(cmd, key, false); err != nil {
				return nil, err
			}
		}
		return nil, m.swerve.ConfigurePIDF(ctx, gains)
	default:
		return nil, errors.Errorf("no such command: %s", name)
	}
}

func (m *Motor) status(ctx context.Context) (map[string]interface{}, error) {
	pos, err := m.swerve.Position(ctx)
	if err != nil {
		return nil, err
	}
	vel, err := m.swerve.Velocity(ctx)
	if err != nil {
		return nil, err
	}
	volts, err := m.swerve.Voltage(ctx)
	if err != nil {
		return nil, err
	}
	amps, err := m.swerve.AppliedOutput(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"role":     m.swerve.Role().String(),
		"position": pos,
		"velocity": vel,
		"volts":    volts,
		"amps":     amps,
		"external": m.swerve.UsingExternalFeedbackSensor(),
	}, nil
}

// floatArg reads a number from cmd. Missing optional values are zero.
func floatArg(cmd map[string]interface{}, key string, required bool) (float64, error) {
	raw, ok := cmd[key]
	if !ok {
		if required {
			return 0, errors.Errorf("need %s value for %s", key, cmd[Command])
		}
		return 0, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, errors.Errorf("%s value must be floating point", key)
	}
}
