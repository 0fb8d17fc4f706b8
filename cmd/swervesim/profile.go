package main

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/viam-modules/swerve/nova"
	"github.com/viam-modules/swerve/sim"
	"github.com/viam-modules/swerve/telemetry"
)

// Profile describes one swerve module on the bench and the setpoints to run through.
type Profile struct {
	PeriodMs  int           `yaml:"period_ms"`
	Verbosity string        `yaml:"verbosity"`
	Module    ModuleProfile `yaml:"module"`
}

// ModuleProfile is a drive and a steer motor plus their setpoint sequence.
type ModuleProfile struct {
	Name      string         `yaml:"name"`
	Drive     MotorProfile   `yaml:"drive"`
	Steer     MotorProfile   `yaml:"steer"`
	Setpoints []SetpointStep `yaml:"setpoints"`
}

// MotorProfile configures one simulated Nova.
type MotorProfile struct {
	CANID            int     `yaml:"can_id"`
	MotorType        string  `yaml:"motor_type"`
	ConversionFactor float64 `yaml:"conversion_factor"`
	Inverted         bool    `yaml:"inverted"`
	CurrentLimit     int     `yaml:"current_limit_amps"`
}

// SetpointStep holds a drive feedforward voltage and a steer angle for HoldMs.
type SetpointStep struct {
	DriveVolts   float64 `yaml:"drive_volts"`
	SteerDegrees float64 `yaml:"steer_degrees"`
	HoldMs       int     `yaml:"hold_ms"`
	// Fault is latched on the steer controller when the step starts.
	Fault string `yaml:"fault"`
}

const (
	defaultPeriodMs = 20
	defaultHoldMs   = 1000
)

var faultsByName = map[string]nova.Fault{
	"set_parameter_failed": nova.FaultSetParameter,
	"can_timeout":          nova.FaultCANTimeout,
	"over_current":         nova.FaultOverCurrent,
	"over_temperature":     nova.FaultOverTemp,
	"under_voltage":        nova.FaultUnderVoltage,
	"encoder_disconnected": nova.FaultEncoderMissing,
}

// LoadProfile reads, normalizes and validates a YAML profile.
func LoadProfile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading profile %s", path)
	}
	return ParseProfile(raw)
}

// ParseProfile decodes a YAML profile, fills defaults and validates it.
func ParseProfile(raw []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(err, "decoding profile")
	}
	normalize(&p)
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// normalize fills defaults. It runs before Validate.
func normalize(p *Profile) {
	if p.PeriodMs == 0 {
		p.PeriodMs = defaultPeriodMs
	}
	if p.Module.Name == "" {
		p.Module.Name = "module"
	}
	for _, m := range []*MotorProfile{&p.Module.Drive, &p.Module.Steer} {
		if m.MotorType == "" {
			m.MotorType = "neo"
		}
		if m.ConversionFactor == 0 {
			m.ConversionFactor = 1
		}
	}
	for i := range p.Module.Setpoints {
		if p.Module.Setpoints[i].HoldMs == 0 {
			p.Module.Setpoints[i].HoldMs = defaultHoldMs
		}
		p.Module.Setpoints[i].Fault = strings.ToLower(p.Module.Setpoints[i].Fault)
	}
}

// Validate checks a normalized profile. It does not modify it.
func Validate(p *Profile) error {
	if p.PeriodMs < 0 {
		return errors.Errorf("period_ms must be positive, got %d", p.PeriodMs)
	}
	if _, err := telemetry.ParseVerbosity(p.Verbosity); err != nil {
		return err
	}

	for _, m := range []struct {
		role string
		mp   MotorProfile
	}{{"drive", p.Module.Drive}, {"steer", p.Module.Steer}} {
		if m.mp.CANID < 1 || m.mp.CANID > 62 {
			return errors.Errorf("module %q: %s can_id must be between 1 and 62, got %d", p.Module.Name, m.role, m.mp.CANID)
		}
		if _, ok := sim.MotorByName(m.mp.MotorType, 1); !ok {
			return errors.Errorf("module %q: unknown %s motor_type %q", p.Module.Name, m.role, m.mp.MotorType)
		}
		if m.mp.ConversionFactor < 0 {
			return errors.Errorf("module %q: %s conversion_factor must be positive", p.Module.Name, m.role)
		}
		if m.mp.CurrentLimit < 0 {
			return errors.Errorf("module %q: %s current_limit_amps can't be negative", p.Module.Name, m.role)
		}
	}
	if p.Module.Drive.CANID == p.Module.Steer.CANID {
		return errors.Errorf("module %q: drive and steer share can_id %d", p.Module.Name, p.Module.Drive.CANID)
	}

	if len(p.Module.Setpoints) == 0 {
		return errors.Errorf("module %q: no setpoints", p.Module.Name)
	}
	for i, s := range p.Module.Setpoints {
		if s.HoldMs < 0 {
			return errors.Errorf("module %q: setpoint %d hold_ms must be positive", p.Module.Name, i)
		}
		if s.Fault != "" {
			if _, ok := faultsByName[s.Fault]; !ok {
				return errors.Errorf("module %q: setpoint %d has unknown fault %q", p.Module.Name, i, s.Fault)
			}
		}
	}
	return nil
}

// Period is the command period.
func (p *Profile) Period() time.Duration {
	return time.Duration(p.PeriodMs) * time.Millisecond
}
