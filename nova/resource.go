package nova

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

// Command names understood by a Nova driver resource. Every command carries the "command"
// key and the target "can_id".
const (
	Command = "command"
	CANID   = "can_id"

	CmdSetPercent         = "set_percent"
	CmdSetVoltage         = "set_voltage"
	CmdSetPosition        = "set_position"
	CmdGetPosition        = "get_position"
	CmdGetVelocity        = "get_velocity"
	CmdGetVoltage         = "get_voltage"
	CmdGetStatorCurrent   = "get_stator_current"
	CmdSetInverted        = "set_inverted"
	CmdSetBrakeMode       = "set_brake_mode"
	CmdSetMaxCurrent      = "set_max_current"
	CmdSetEncoderPosition = "set_encoder_position"
	CmdSetMaxOutput       = "set_max_output"
	CmdSetRampUp          = "set_ramp_up"
	CmdSetRampDown        = "set_ramp_down"
	CmdSetSoftLimits      = "set_soft_limits"
	CmdSetPIDF            = "set_pidf"
	CmdUsePIDSlot         = "use_pid_slot"
	CmdUseEncoderType     = "use_encoder_type"
	CmdSetStatusFrames    = "set_status_frames"
	CmdSetVoltageComp     = "set_voltage_compensation"
	CmdGetErrors          = "get_errors"
	CmdClearErrors        = "clear_errors"
	CmdGetFirmware        = "get_firmware_version"
	CmdClose              = "close"
)

// resourceController drives a Nova that is exposed by another resource (usually a generic
// component provided by the vendor driver module) through DoCommand.
type resourceController struct {
	res    resource.Resource
	id     int
	logger logging.Logger
}

// FromResource returns a Controller that forwards every call for the Nova with the given
// CAN id to res.DoCommand.
func FromResource(res resource.Resource, id int, logger logging.Logger) Controller {
	return &resourceController{res: res, id: id, logger: logger}
}

func (c *resourceController) ID() int {
	return c.id
}

func (c *resourceController) do(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	cmd := map[string]interface{}{Command: name, CANID: c.id}
	for k, v := range args {
		cmd[k] = v
	}
	c.logger.Debugf("Command to %s: %v", c.res.Name().ShortName(), cmd)

	resp, err := c.res.DoCommand(ctx, cmd)
	if err != nil {
		return nil, errors.Wrapf(err, "error in %s from controller (%d)", name, c.id)
	}
	return resp, nil
}

func (c *resourceController) read(ctx context.Context, name, key string) (float64, error) {
	resp, err := c.do(ctx, name, nil)
	if err != nil {
		return 0, err
	}
	val, ok := toFloat(resp[key])
	if !ok {
		return 0, errors.Errorf("%s from controller (%d) returned no numeric %q", name, c.id, key)
	}
	return val, nil
}

func (c *resourceController) send(ctx context.Context, name string, args map[string]interface{}) error {
	_, err := c.do(ctx, name, args)
	return err
}

func (c *resourceController) SetPercent(ctx context.Context, percent float64) error {
	return c.send(ctx, CmdSetPercent, map[string]interface{}{"value": percent})
}

func (c *resourceController) SetVoltage(ctx context.Context, volts float64) error {
	return c.send(ctx, CmdSetVoltage, map[string]interface{}{"volts": volts})
}

func (c *resourceController) SetPosition(ctx context.Context, rotations float64) error {
	return c.send(ctx, CmdSetPosition, map[string]interface{}{"rotations": rotations})
}

func (c *resourceController) Position(ctx context.Context) (float64, error) {
	return c.read(ctx, CmdGetPosition, "position")
}

func (c *resourceController) Velocity(ctx context.Context) (float64, error) {
	return c.read(ctx, CmdGetVelocity, "velocity")
}

func (c *resourceController) Voltage(ctx context.Context) (float64, error) {
	return c.read(ctx, CmdGetVoltage, "volts")
}

func (c *resourceController) StatorCurrent(ctx context.Context) (float64, error) {
	return c.read(ctx, CmdGetStatorCurrent, "amps")
}

func (c *resourceController) SetInverted(ctx context.Context, inverted bool) error {
	return c.send(ctx, CmdSetInverted, map[string]interface{}{"inverted": inverted})
}

func (c *resourceController) SetBrakeMode(ctx context.Context, brake bool) error {
	return c.send(ctx, CmdSetBrakeMode, map[string]interface{}{"brake": brake})
}

func (c *resourceController) SetMaxCurrent(ctx context.Context, kind CurrentType, amps float64) error {
	return c.send(ctx, CmdSetMaxCurrent, map[string]interface{}{"type": kind.String(), "amps": amps})
}

func (c *resourceController) SetEncoderPosition(ctx context.Context, rotations float64) error {
	return c.send(ctx, CmdSetEncoderPosition, map[string]interface{}{"rotations": rotations})
}

func (c *resourceController) SetMaxOutput(ctx context.Context, percent float64) error {
	return c.send(ctx, CmdSetMaxOutput, map[string]interface{}{"value": percent})
}

func (c *resourceController) SetRampUp(ctx context.Context, ramp time.Duration) error {
	return c.send(ctx, CmdSetRampUp, map[string]interface{}{"ms": ramp.Milliseconds()})
}

func (c *resourceController) SetRampDown(ctx context.Context, ramp time.Duration) error {
	return c.send(ctx, CmdSetRampDown, map[string]interface{}{"ms": ramp.Milliseconds()})
}

func (c *resourceController) SetSoftLimits(ctx context.Context, forward, reverse float64) error {
	return c.send(ctx, CmdSetSoftLimits, map[string]interface{}{"forward": forward, "reverse": reverse})
}

func (c *resourceController) SetPIDF(ctx context.Context, slot PIDSlot, gains PIDF) error {
	return c.send(ctx, CmdSetPIDF, map[string]interface{}{
		"slot": int(slot),
		"p":    gains.P,
		"i":    gains.I,
		"d":    gains.D,
		"f":    gains.F,
	})
}

func (c *resourceController) UsePIDSlot(ctx context.Context, slot PIDSlot) error {
	return c.send(ctx, CmdUsePIDSlot, map[string]interface{}{"slot": int(slot)})
}

func (c *resourceController) UseEncoderType(ctx context.Context, kind EncoderType) error {
	return c.send(ctx, CmdUseEncoderType, map[string]interface{}{"type": kind.String()})
}

func (c *resourceController) SetStatusFrames(ctx context.Context, frames StatusFrames) error {
	return c.send(ctx, CmdSetStatusFrames, map[string]interface{}{
		"fault_ms":       frames.Fault.Milliseconds(),
		"sensor_ms":      frames.Sensor.Milliseconds(),
		"quad_sensor_ms": frames.QuadSensor.Milliseconds(),
		"control_ms":     frames.Control.Milliseconds(),
		"current_ms":     frames.Current.Milliseconds(),
	})
}

func (c *resourceController) SetVoltageCompensation(ctx context.Context, volts float64) error {
	return c.send(ctx, CmdSetVoltageComp, map[string]interface{}{"volts": volts})
}

func (c *resourceController) Faults(ctx context.Context) ([]Fault, error) {
	resp, err := c.do(ctx, CmdGetErrors, nil)
	if err != nil {
		return nil, err
	}
	raw, ok := resp["errors"]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, errors.Errorf("errors from controller (%d) must be a list, got %T", c.id, raw)
	}

	faults := make([]Fault, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("error entry from controller (%d) must be a map, got %T", c.id, entry)
		}
		code, _ := toFloat(m["code"])
		name, _ := m["name"].(string)
		faults = append(faults, Fault{Code: int(code), Name: name})
	}
	return faults, nil
}

func (c *resourceController) ClearFaults(ctx context.Context) error {
	return c.send(ctx, CmdClearErrors, nil)
}

func (c *resourceController) FirmwareVersion(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, CmdGetFirmware, nil)
	if err != nil {
		return "", err
	}
	version, ok := resp["version"].(string)
	if !ok {
		return "", errors.Errorf("%s from controller (%d) returned no version", CmdGetFirmware, c.id)
	}
	return version, nil
}

// Close releases this controller's handle on the driver. The driver resource itself is
// owned by the robot and stays open.
func (c *resourceController) Close(ctx context.Context) error {
	return c.send(ctx, CmdClose, nil)
}

// toFloat converts the numeric types that can come back through DoCommand to float64.
func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint32:
		return float64(val), true
	default:
		return 0, false
	}
}
