// Package nova defines the boundary to a Thrifty Nova motor controller: the calls a swerve
// actuator makes into the vendor driver and the value types that cross it.
package nova

import (
	"context"
	"fmt"
	"time"
)

// EncoderType selects which encoder feeds the controller's native position and velocity.
type EncoderType int

// Encoder types understood by the controller.
const (
	EncoderInternal EncoderType = iota
	EncoderQuadrature
	EncoderAbsolute
)

func (e EncoderType) String() string {
	switch e {
	case EncoderInternal:
		return "internal"
	case EncoderQuadrature:
		return "quadrature"
	case EncoderAbsolute:
		return "absolute"
	default:
		return fmt.Sprintf("encoder(%d)", int(e))
	}
}

// CurrentType selects which current the controller limits.
type CurrentType int

// Current limit types.
const (
	CurrentStator CurrentType = iota
	CurrentSupply
)

func (c CurrentType) String() string {
	if c == CurrentSupply {
		return "supply"
	}
	return "stator"
}

// PIDSlot addresses one of the controller's gain slots.
type PIDSlot int

// Gain slots. Slot0 drives the default closed loop, Slot1 is kept zeroed for alternate use.
const (
	Slot0 PIDSlot = iota
	Slot1
)

// PIDF holds closed-loop gains for one slot.
type PIDF struct {
	P float64 `json:"p"`
	I float64 `json:"i"`
	D float64 `json:"d"`
	F float64 `json:"f"`
}

// StatusFrames holds the transmission period of each periodic CAN status frame.
type StatusFrames struct {
	Fault      time.Duration
	Sensor     time.Duration
	QuadSensor time.Duration
	Control    time.Duration
	Current    time.Duration
}

// Fault is a device-reported fault code.
type Fault struct {
	Code int
	Name string
}

func (f Fault) String() string {
	if f.Name == "" {
		return fmt.Sprintf("fault %d", f.Code)
	}
	return fmt.Sprintf("%s (%d)", f.Name, f.Code)
}

// Known fault codes.
var (
	FaultSetParameter   = Fault{Code: 1, Name: "SET_PARAMETER_FAILED"}
	FaultCANTimeout     = Fault{Code: 2, Name: "CAN_TIMEOUT"}
	FaultOverCurrent    = Fault{Code: 3, Name: "OVER_CURRENT"}
	FaultOverTemp       = Fault{Code: 4, Name: "OVER_TEMPERATURE"}
	FaultUnderVoltage   = Fault{Code: 5, Name: "UNDER_VOLTAGE"}
	FaultEncoderMissing = Fault{Code: 6, Name: "ENCODER_DISCONNECTED"}
)

// A Controller is a single Thrifty Nova. Positions are native rotations and velocities are
// native rotations per minute. Every call is synchronous.
type Controller interface {
	// ID is the CAN id of the controller.
	ID() int

	SetPercent(ctx context.Context, percent float64) error
	SetVoltage(ctx context.Context, volts float64) error
	// SetPosition commands the firmware position closed loop to the given native position.
	SetPosition(ctx context.Context, rotations float64) error

	Position(ctx context.Context) (float64, error)
	Velocity(ctx context.Context) (float64, error)
	Voltage(ctx context.Context) (float64, error)
	StatorCurrent(ctx context.Context) (float64, error)

	SetInverted(ctx context.Context, inverted bool) error
	SetBrakeMode(ctx context.Context, brake bool) error
	SetMaxCurrent(ctx context.Context, kind CurrentType, amps float64) error
	SetEncoderPosition(ctx context.Context, rotations float64) error
	SetMaxOutput(ctx context.Context, percent float64) error
	SetRampUp(ctx context.Context, ramp time.Duration) error
	SetRampDown(ctx context.Context, ramp time.Duration) error
	SetSoftLimits(ctx context.Context, forward, reverse float64) error
	SetPIDF(ctx context.Context, slot PIDSlot, gains PIDF) error
	UsePIDSlot(ctx context.Context, slot PIDSlot) error
	UseEncoderType(ctx context.Context, kind EncoderType) error
	SetStatusFrames(ctx context.Context, frames StatusFrames) error
	SetVoltageCompensation(ctx context.Context, volts float64) error

	// Faults returns the faults currently latched on the device.
	Faults(ctx context.Context) ([]Fault, error)
	ClearFaults(ctx context.Context) error
	FirmwareVersion(ctx context.Context) (string, error)

	Close(ctx context.Context) error
}
