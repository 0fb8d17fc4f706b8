// Package sim provides a physical model of a brushed/brushless DC motor and a simulated Thrifty
// Nova controller built on it.
package sim

import "math"

// DCMotor describes a DC motor (or a gearbox-less group of identical motors) by its datasheet
// constants. Speeds are radians per second.
type DCMotor struct {
	Name           string
	NominalVoltage float64
	StallTorque    float64 // N*m
	StallCurrent   float64 // A
	FreeCurrent    float64 // A
	FreeSpeed      float64 // rad/s

	R  float64 // ohms
	Kv float64 // rad/s per volt
	Kt float64 // N*m per amp
}

// NewDCMotor derives the electrical constants of numMotors identical motors sharing a load.
func NewDCMotor(name string, nominalVoltage, stallTorque, stallCurrent, freeCurrent, freeSpeed float64, numMotors int) DCMotor {
	n := float64(numMotors)
	m := DCMotor{
		Name:           name,
		NominalVoltage: nominalVoltage,
		StallTorque:    stallTorque * n,
		StallCurrent:   stallCurrent * n,
		FreeCurrent:    freeCurrent * n,
		FreeSpeed:      freeSpeed,
	}
	m.R = m.NominalVoltage / m.StallCurrent
	m.Kv = m.FreeSpeed / (m.NominalVoltage - m.R*m.FreeCurrent)
	m.Kt = m.StallTorque / m.StallCurrent
	return m
}

// NEO is a REV NEO brushless motor.
func NEO(numMotors int) DCMotor {
	return NewDCMotor("neo", 12, 2.6, 105, 1.8, RPMToRadPerSec(5676), numMotors)
}

// NEO550 is a REV NEO 550 brushless motor.
func NEO550(numMotors int) DCMotor {
	return NewDCMotor("neo550", 12, 0.97, 100, 1.4, RPMToRadPerSec(11000), numMotors)
}

// Vortex is a REV NEO Vortex brushless motor.
func Vortex(numMotors int) DCMotor {
	return NewDCMotor("vortex", 12, 3.6, 211, 3.6, RPMToRadPerSec(6784), numMotors)
}

// MotorByName returns the preset with the given name.
func MotorByName(name string, numMotors int) (DCMotor, bool) {
	switch name {
	case "neo", "":
		return NEO(numMotors), true
	case "neo550":
		return NEO550(numMotors), true
	case "vortex":
		return Vortex(numMotors), true
	default:
		return DCMotor{}, false
	}
}

// Current is the current drawn at the given speed and applied voltage.
func (m DCMotor) Current(speed, voltage float64) float64 {
	return -1.0/m.Kv/m.R*speed + 1.0/m.R*voltage
}

// Torque is the torque produced by the given current.
func (m DCMotor) Torque(current float64) float64 {
	return current * m.Kt
}

// Voltage is the voltage needed to produce the given torque at the given speed.
func (m DCMotor) Voltage(torque, speed float64) float64 {
	return 1.0/m.Kv*speed + 1.0/m.Kt*m.R*torque
}

// Speed is the speed reached when producing the given torque at the given voltage.
func (m DCMotor) Speed(torque, voltage float64) float64 {
	return voltage*m.Kv - 1.0/m.Kt*torque*m.R*m.Kv
}

// FreeSpeedRPM is the unloaded speed at nominal voltage in rotations per minute.
func (m DCMotor) FreeSpeedRPM() float64 {
	return RadPerSecToRPM(m.FreeSpeed)
}

// RPMToRadPerSec converts rotations per minute to radians per second.
func RPMToRadPerSec(rpm float64) float64 {
	return rpm * 2 * math.Pi / 60
}

// RadPerSecToRPM converts radians per second to rotations per minute.
func RadPerSecToRPM(radPerSec float64) float64 {
	return radPerSec * 60 / (2 * math.Pi)
}
