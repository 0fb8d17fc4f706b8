package novaswerve

import (
	"context"

	"github.com/pkg/errors"

	"github.com/viam-modules/swerve/nova"
)

// AbsoluteEncoder is an encoder owned by the caller that reports position and velocity
// already in physical units.
type AbsoluteEncoder interface {
	AbsolutePosition(ctx context.Context) (float64, error)
	Velocity(ctx context.Context) (float64, error)
}

// FeedbackSource is where a SwerveMotor reads position and velocity from and how position
// setpoints and encoder writes are interpreted. Exactly one is active at a time.
type FeedbackSource interface {
	ReadPosition(ctx context.Context) (float64, error)
	ReadVelocity(ctx context.Context) (float64, error)
	// WritePosition overwrites the encoder position with a physical value.
	WritePosition(ctx context.Context, physical float64) error
	// PositionCommand maps a physical position setpoint to the controller's command units.
	PositionCommand(setpoint float64) float64
	// EncoderType is the controller encoder selection that matches this source.
	EncoderType() nova.EncoderType
	External() bool
}

// internalFeedback uses the controller's integrated encoder through the motor's converter.
type internalFeedback struct {
	m *SwerveMotor
}

func (f *internalFeedback) ReadPosition(ctx context.Context) (float64, error) {
	native, err := f.m.ctrl.Position(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "error in Position from motor (%s)", f.m.name())
	}
	f.m.sink.PutNumber(f.m.key("GetPos Motor"), native)
	physical := f.m.conv.PositionToPhysical(native)
	f.m.sink.PutNumber(f.m.key("GetPos Conv"), physical)
	return physical, nil
}

func (f *internalFeedback) ReadVelocity(ctx context.Context) (float64, error) {
	native, err := f.m.ctrl.Velocity(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "error in Velocity from motor (%s)", f.m.name())
	}
	f.m.sink.PutNumber(f.m.key("GetVel Motor"), native)
	physical := f.m.conv.VelocityToPhysical(native)
	f.m.sink.PutNumber(f.m.key("GetVel Conv"), physical)
	return physical, nil
}

func (f *internalFeedback) WritePosition(ctx context.Context, physical float64) error {
	native := f.m.conv.PositionToNative(physical)
	f.m.sink.PutNumber(f.m.key("SetPos Conv"), native)
	f.m.sink.PutNumber(f.m.key("SetPos Motor"), native)
	if err := f.m.ctrl.SetEncoderPosition(ctx, native); err != nil {
		return errors.Wrapf(err, "error in SetPosition from motor (%s)", f.m.name())
	}
	return nil
}

func (f *internalFeedback) PositionCommand(setpoint float64) float64 {
	return f.m.conv.PositionToNative(setpoint)
}

func (f *internalFeedback) EncoderType() nova.EncoderType {
	return nova.EncoderInternal
}

func (f *internalFeedback) External() bool {
	return false
}

// externalFeedback delegates to an absolute encoder. The encoder is the only source of
// truth, so encoder writes are dropped and setpoints are not converted.
type externalFeedback struct {
	enc AbsoluteEncoder
}

func (f *externalFeedback) ReadPosition(ctx context.Context) (float64, error) {
	return f.enc.AbsolutePosition(ctx)
}

func (f *externalFeedback) ReadVelocity(ctx context.Context) (float64, error) {
	return f.enc.Velocity(ctx)
}

func (f *externalFeedback) WritePosition(ctx context.Context, physical float64) error {
	return nil
}

func (f *externalFeedback) PositionCommand(setpoint float64) float64 {
	return setpoint
}

func (f *externalFeedback) EncoderType() nova.EncoderType {
	return nova.EncoderAbsolute
}

func (f *externalFeedback) External() bool {
	return true
}
