package novaswerve

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/viam-modules/swerve/nova"
)

// call formats a controller write the way fakeController records it.
func call(name string, args ...interface{}) string {
	return fmt.Sprintf("%s%v", name, args)
}

// fakeController records every write to the device. Reads return the configured values;
// SetEncoderPosition and SetPosition move the reported position so reads follow writes, unless
// lagging is set, in which case only moveTo does.
type fakeController struct {
	tb testing.TB
	id int

	mu         sync.Mutex
	writes     []string
	expected   []string
	position   float64
	velocity   float64
	volts      float64
	amps       float64
	faults     []nova.Fault
	faultReads int
	firmware   string
	readErr    error
	lagging    bool
	writeErr   error
	closeErr   error
}

func newFakeController(tb testing.TB, id int) *fakeController {
	return &fakeController{tb: tb, id: id, firmware: "1.4.0"}
}

func (f *fakeController) AddExpected(calls ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expected = append(f.expected, calls...)
}

func (f *fakeController) ExpectDone() {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Assert that exactly the expected writes were sent, in order
	test.That(f.tb, f.writes, test.ShouldResemble, f.expected)
}

// Writes returns a copy of what was written so far.
func (f *fakeController) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.writes...)
}

func (f *fakeController) record(name string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, call(name, args...))
	return f.writeErr
}

func (f *fakeController) ID() int { return f.id }

func (f *fakeController) SetPercent(ctx context.Context, percent float64) error {
	return f.record("SetPercent", percent)
}

func (f *fakeController) SetVoltage(ctx context.Context, volts float64) error {
	return f.record("SetVoltage", volts)
}

func (f *fakeController) SetPosition(ctx context.Context, rotations float64) error {
	err := f.record("SetPosition", rotations)
	f.mu.Lock()
	if !f.lagging {
		f.position = rotations
	}
	f.mu.Unlock()
	return err
}

// moveTo sets the reported position as if the motor had travelled there.
func (f *fakeController) moveTo(rotations float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = rotations
}

func (f *fakeController) Position(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position, f.readErr
}

func (f *fakeController) Velocity(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.velocity, nil
}

func (f *fakeController) Voltage(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volts, nil
}

func (f *fakeController) StatorCurrent(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.amps, nil
}

func (f *fakeController) SetInverted(ctx context.Context, inverted bool) error {
	return f.record("SetInverted", inverted)
}

func (f *fakeController) SetBrakeMode(ctx context.Context, brake bool) error {
	return f.record("SetBrakeMode", brake)
}

func (f *fakeController) SetMaxCurrent(ctx context.Context, kind nova.CurrentType, amps float64) error {
	return f.record("SetMaxCurrent", int(kind), amps)
}

func (f *fakeController) SetEncoderPosition(ctx context.Context, rotations float64) error {
	err := f.record("SetEncoderPosition", rotations)
	f.mu.Lock()
	f.position = rotations
	f.mu.Unlock()
	return err
}

func (f *fakeController) SetMaxOutput(ctx context.Context, percent float64) error {
	return f.record("SetMaxOutput", percent)
}

func (f *fakeController) SetRampUp(ctx context.Context, ramp time.Duration) error {
	return f.record("SetRampUp", ramp)
}

func (f *fakeController) SetRampDown(ctx context.Context, ramp time.Duration) error {
	return f.record("SetRampDown", ramp)
}

func (f *fakeController) SetSoftLimits(ctx context.Context, forward, reverse float64) error {
	return f.record("SetSoftLimits", forward, reverse)
}

func (f *fakeController) SetPIDF(ctx context.Context, slot nova.PIDSlot, gains nova.PIDF) error {
	return f.record("SetPIDF", int(slot), gains)
}

func (f *fakeController) UsePIDSlot(ctx context.Context, slot nova.PIDSlot) error {
	return f.record("UsePIDSlot", int(slot))
}

func (f *fakeController) UseEncoderType(ctx context.Context, kind nova.EncoderType) error {
	return f.record("UseEncoderType", kind)
}

func (f *fakeController) SetStatusFrames(ctx context.Context, frames nova.StatusFrames) error {
	return f.record("SetStatusFrames", frames)
}

func (f *fakeController) SetVoltageCompensation(ctx context.Context, volts float64) error {
	return f.record("SetVoltageCompensation", volts)
}

func (f *fakeController) Faults(ctx context.Context) ([]nova.Fault, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faultReads++
	return append([]nova.Fault{}, f.faults...), nil
}

func (f *fakeController) ClearFaults(ctx context.Context) error {
	return f.record("ClearFaults")
}

func (f *fakeController) FirmwareVersion(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.firmware, nil
}

func (f *fakeController) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeErr
}

// constructionCalls are the writes NewSwerveMotor sends to real hardware.
func constructionCalls() []string {
	return []string{
		// factory defaults
		call("SetInverted", false),
		call("SetBrakeMode", false),
		call("SetMaxCurrent", int(nova.CurrentStator), 40.0),
		call("SetEncoderPosition", 0.0),
		call("SetMaxOutput", 1.0),
		call("SetRampDown", 100*time.Millisecond),
		call("SetRampUp", 100*time.Millisecond),
		call("SetStatusFrames", defaultStatusFrames),
		call("SetSoftLimits", 0.0, 0.0),
		call("SetPIDF", int(nova.Slot0), nova.PIDF{}),
		call("UsePIDSlot", int(nova.Slot0)),
		call("SetPIDF", int(nova.Slot1), nova.PIDF{}),
		// sticky faults and primary slot
		call("ClearFaults"),
		call("UsePIDSlot", int(nova.Slot0)),
		call("SetPIDF", int(nova.Slot0), nova.PIDF{}),
	}
}

// fakeAbsoluteEncoder reports fixed values in physical units.
type fakeAbsoluteEncoder struct {
	position float64
	velocity float64
}

func (e *fakeAbsoluteEncoder) AbsolutePosition(ctx context.Context) (float64, error) {
	return e.position, nil
}

func (e *fakeAbsoluteEncoder) Velocity(ctx context.Context) (float64, error) {
	return e.velocity, nil
}
