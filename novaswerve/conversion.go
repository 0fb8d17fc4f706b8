package novaswerve

import "github.com/pkg/errors"

// secondsPerMinute relates native rotations per minute to per-second physical rates.
const secondsPerMinute = 60.0

// ToNative converts a physical value to native units, where factor is the number of physical
// units per native unit. factor must be positive.
func ToNative(physical, factor float64) float64 {
	return physical / factor
}

// ToPhysical converts a native value to physical units. It is the inverse of ToNative.
func ToPhysical(native, factor float64) float64 {
	return native * factor
}

// UnitConverter maps between physical units (meters or degrees, and per-second rates) and the
// controller's native units (rotations and rotations per minute).
type UnitConverter struct {
	position float64 // physical units per rotation
	velocity float64 // physical units per second per RPM
}

// NewUnitConverter returns a converter with independent position and velocity factors.
func NewUnitConverter(positionFactor, velocityFactor float64) (UnitConverter, error) {
	if positionFactor <= 0 {
		return UnitConverter{}, errors.Errorf("position conversion factor must be positive, got %v", positionFactor)
	}
	if velocityFactor <= 0 {
		return UnitConverter{}, errors.Errorf("velocity conversion factor must be positive, got %v", velocityFactor)
	}
	return UnitConverter{position: positionFactor, velocity: velocityFactor}, nil
}

// UnitConverterFromPosition returns a converter whose velocity factor is derived from the
// position factor, turning native rotations per minute into physical units per second.
func UnitConverterFromPosition(positionFactor float64) (UnitConverter, error) {
	return NewUnitConverter(positionFactor, positionFactor/secondsPerMinute)
}

// PositionFactor is the number of physical units per native rotation.
func (u UnitConverter) PositionFactor() float64 {
	return u.position
}

// VelocityFactor is the number of physical units per second per native RPM.
func (u UnitConverter) VelocityFactor() float64 {
	return u.velocity
}

// PositionToNative converts meters or degrees to rotations.
func (u UnitConverter) PositionToNative(physical float64) float64 {
	return ToNative(physical, u.position)
}

// PositionToPhysical converts rotations to meters or degrees.
func (u UnitConverter) PositionToPhysical(native float64) float64 {
	return ToPhysical(native, u.position)
}

// VelocityToNative converts meters or degrees per second to RPM.
func (u UnitConverter) VelocityToNative(physical float64) float64 {
	return ToNative(physical, u.velocity)
}

// VelocityToPhysical converts RPM to meters or degrees per second.
func (u UnitConverter) VelocityToPhysical(native float64) float64 {
	return ToPhysical(native, u.velocity)
}
