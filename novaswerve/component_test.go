package novaswerve

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/motor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/viam-modules/swerve/nova"
	"github.com/viam-modules/swerve/sim"
)

func TestConfig(t *testing.T) {
	t.Run("attributes from JSON", func(t *testing.T) {
		jsonConfig := `{
			"can_id": 7,
			"role": "steer",
			"motor_type": "neo550",
			"conversion_factor": 16.36,
			"inverted": true,
			"current_limit_amps": 20,
			"ramp_rate_sec": 0.1,
			"pidf": {"p": 0.01, "d": 0.2},
			"controller": "can0",
			"absolute_encoder": "steer7-abs",
			"verbosity": "high"
		}`
		var conf Config
		test.That(t, json.Unmarshal([]byte(jsonConfig), &conf), test.ShouldBeNil)
		test.That(t, conf.CANID, test.ShouldEqual, 7)
		test.That(t, conf.Inverted, test.ShouldBeTrue)
		test.That(t, *conf.PIDF, test.ShouldResemble, nova.PIDF{P: 0.01, D: 0.2})

		deps, _, err := conf.Validate("path")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, deps, test.ShouldResemble, []string{"can0", "steer7-abs"})
	})

	t.Run("simulated controller needs no dependencies", func(t *testing.T) {
		conf := Config{CANID: 1, Role: "drive"}
		deps, _, err := conf.Validate("path")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, deps, test.ShouldBeEmpty)
	})

	for _, tc := range []struct {
		name   string
		conf   Config
		errMsg string
	}{
		{"missing can id", Config{Role: "drive"}, "can_id"},
		{"can id out of range", Config{CANID: 63, Role: "drive"}, "between 1 and 62"},
		{"missing role", Config{CANID: 1}, "role"},
		{"unknown role", Config{CANID: 1, Role: "strafe"}, "drive or steer"},
		{"unknown motor", Config{CANID: 1, Role: "drive", MotorType: "cim"}, "motor_type"},
		{"negative factor", Config{CANID: 1, Role: "drive", ConversionFactor: -1}, "conversion_factor"},
		{"negative current", Config{CANID: 1, Role: "drive", CurrentLimit: -5}, "current_limit_amps"},
		{"unknown verbosity", Config{CANID: 1, Role: "drive", Verbosity: "loud"}, "verbosity"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := tc.conf.Validate("path")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errMsg)
		})
	}
}

func TestSteerMotor(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	ctrl := newFakeController(t, 3)
	ctrl.AddExpected(constructionCalls()...)
	ctrl.AddExpected(
		call("UseEncoderType", nova.EncoderInternal),
		call("SetStatusFrames", integratedEncoderStatusFrames),
		call("SetInverted", true),
		call("SetBrakeMode", false),
		call("SetMaxCurrent", int(nova.CurrentStator), 30.0),
	)

	mc := Config{
		CANID:            3,
		Role:             "steer",
		ConversionFactor: 360,
		Inverted:         true,
		CurrentLimit:     30,
	}
	name := resource.NewName(motor.API, "steer3")
	motorDep, err := makeMotor(ctx, mc, name, logger, ctrl, nil)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		ctrl.ExpectDone()
		test.That(t, motorDep.Close(context.Background()), test.ShouldBeNil)
	}()

	t.Run("motor supports position reporting", func(t *testing.T) {
		properties, err := motorDep.Properties(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, properties.PositionReporting, test.ShouldBeTrue)
	})

	t.Run("motor GoTo", func(t *testing.T) {
		ctrl.AddExpected(call("SetPosition", 0.5))
		test.That(t, motorDep.GoTo(ctx, 100, 180, nil), test.ShouldBeNil)

		pos, err := motorDep.Position(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pos, test.ShouldEqual, 180.0)
	})

	t.Run("motor GoFor with positive rpm and positive degrees", func(t *testing.T) {
		ctrl.AddExpected(call("SetPosition", 0.75))
		test.That(t, motorDep.GoFor(ctx, 100, 90, nil), test.ShouldBeNil)
	})

	t.Run("motor GoFor with negative rpm and positive degrees", func(t *testing.T) {
		ctrl.AddExpected(call("SetPosition", 0.5))
		test.That(t, motorDep.GoFor(ctx, -100, 90, nil), test.ShouldBeNil)
	})

	t.Run("motor GoTo with zero rpm", func(t *testing.T) {
		test.That(t, motorDep.GoTo(ctx, 0, 90, nil), test.ShouldBeError, motor.NewZeroRPMError())
	})

	t.Run("motor SetPower and Stop", func(t *testing.T) {
		ctrl.AddExpected(call("SetPercent", 0.5))
		test.That(t, motorDep.SetPower(ctx, 0.5, nil), test.ShouldBeNil)
		on, powerPct, err := motorDep.IsPowered(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, on, test.ShouldBeTrue)
		test.That(t, powerPct, test.ShouldEqual, 0.5)

		test.That(t, motorDep.ResetZeroPosition(ctx, 0, nil), test.ShouldNotBeNil)

		ctrl.AddExpected(call("SetPercent", 0.0))
		test.That(t, motorDep.Stop(ctx, nil), test.ShouldBeNil)
		on, _, err = motorDep.IsPowered(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, on, test.ShouldBeFalse)
	})

	t.Run("motor zero testing", func(t *testing.T) {
		ctrl.AddExpected(call("SetEncoderPosition", -10.0/360))
		test.That(t, motorDep.ResetZeroPosition(ctx, 10, nil), test.ShouldBeNil)
		pos, err := motorDep.Position(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pos, test.ShouldAlmostEqual, -10.0)
	})

	t.Run("motor is moving testing", func(t *testing.T) {
		moving, err := motorDep.IsMoving(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, moving, test.ShouldBeFalse)

		ctrl.velocity = 60
		moving, err = motorDep.IsMoving(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, moving, test.ShouldBeTrue)
		ctrl.velocity = 0
	})

	t.Run("motor GoTo is powered until it arrives", func(t *testing.T) {
		ctrl.lagging = true
		ctrl.AddExpected(call("SetPosition", 0.25))
		done := make(chan error, 1)
		go func() {
			done <- motorDep.GoTo(ctx, 100, 90, nil)
		}()

		testutils.WaitForAssertion(t, func(tb testing.TB) {
			on, powerPct, err := motorDep.IsPowered(ctx, nil)
			test.That(tb, err, test.ShouldBeNil)
			test.That(tb, on, test.ShouldBeTrue)
			test.That(tb, powerPct, test.ShouldAlmostEqual, 100/sim.NEO(1).FreeSpeedRPM())
		})
		err := motorDep.ResetZeroPosition(ctx, 0, nil)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "while moving")

		ctrl.moveTo(0.25)
		test.That(t, <-done, test.ShouldBeNil)
		ctrl.lagging = false

		on, _, err := motorDep.IsPowered(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, on, test.ShouldBeFalse)
	})

	t.Run("do command", func(t *testing.T) {
		ctrl.AddExpected(call("SetPosition", 0.25))
		_, err := motorDep.DoCommand(ctx, map[string]interface{}{Command: SetReferenceCmd, SetpointVal: 90.0})
		test.That(t, err, test.ShouldBeNil)
		on, _, err := motorDep.IsPowered(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, on, test.ShouldBeTrue)

		resp, err := motorDep.DoCommand(ctx, map[string]interface{}{Command: TelemetryCmd})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, resp["A3 SetPoint Conv"], test.ShouldEqual, 0.25)

		ctrl.AddExpected(
			call("SetPIDF", int(nova.Slot0), nova.PIDF{P: 0.5, D: 0.01}),
			call("UsePIDSlot", int(nova.Slot0)),
		)
		_, err = motorDep.DoCommand(ctx, map[string]interface{}{Command: ConfigurePIDFCmd, "p": 0.5, "d": 0.01})
		test.That(t, err, test.ShouldBeNil)

		ctrl.AddExpected(call("SetBrakeMode", true))
		_, err = motorDep.DoCommand(ctx, map[string]interface{}{Command: SetBrakeCmd, BrakeVal: true})
		test.That(t, err, test.ShouldBeNil)

		ctrl.AddExpected(call("SetRampUp", 500*time.Millisecond), call("SetRampDown", 500*time.Millisecond))
		_, err = motorDep.DoCommand(ctx, map[string]interface{}{Command: SetRampRateCmd, SecondsVal: 0.5})
		test.That(t, err, test.ShouldBeNil)

		ctrl.amps = 4
		resp, err = motorDep.DoCommand(ctx, map[string]interface{}{Command: StatusCmd})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, resp["role"], test.ShouldEqual, "steer")
		test.That(t, resp["position"], test.ShouldEqual, 90.0)
		test.That(t, resp["amps"], test.ShouldEqual, 4.0)
		test.That(t, resp["external"], test.ShouldEqual, false)

		_, err = motorDep.DoCommand(ctx, map[string]interface{}{Command: SetBrakeCmd})
		test.That(t, err, test.ShouldNotBeNil)
		_, err = motorDep.DoCommand(ctx, map[string]interface{}{Command: SetReferenceCmd, SetpointVal: "ninety"})
		test.That(t, err, test.ShouldNotBeNil)
		_, err = motorDep.DoCommand(ctx, map[string]interface{}{Command: "spin"})
		test.That(t, err.Error(), test.ShouldContainSubstring, "no such command")
		_, err = motorDep.DoCommand(ctx, map[string]interface{}{})
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestDriveMotor(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	ctrl := newFakeController(t, 5)
	mc := Config{CANID: 5, Role: "drive", ConversionFactor: 0.0478, Brake: true}
	motorDep, err := makeMotor(ctx, mc, resource.NewName(motor.API, "drive5"), logger, ctrl, nil)
	test.That(t, err, test.ShouldBeNil)

	t.Run("SetRPM applies the model voltage", func(t *testing.T) {
		n := len(ctrl.Writes())
		test.That(t, motorDep.SetRPM(ctx, 1000, nil), test.ShouldBeNil)
		volts := sim.NEO(1).Voltage(0, sim.RPMToRadPerSec(1000))
		test.That(t, ctrl.Writes()[n:], test.ShouldResemble, []string{call("SetVoltage", volts)})

		_, powerPct, err := motorDep.IsPowered(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, powerPct, test.ShouldAlmostEqual, volts/12)
	})

	t.Run("drive motors can't GoTo", func(t *testing.T) {
		err := motorDep.GoTo(ctx, 100, 1, nil)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "only supported by steer motors")
	})

	t.Run("set_voltage command", func(t *testing.T) {
		n := len(ctrl.Writes())
		_, err := motorDep.DoCommand(ctx, map[string]interface{}{Command: SetVoltageCmd, VoltsVal: 6.0})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ctrl.Writes()[n:], test.ShouldResemble, []string{call("SetVoltage", 6.0)})
	})

	t.Run("set_reference command powers the motor", func(t *testing.T) {
		n := len(ctrl.Writes())
		_, err := motorDep.DoCommand(ctx, map[string]interface{}{Command: SetReferenceCmd, SetpointVal: 0.0, FeedforwardVal: 3.0})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ctrl.Writes()[n:], test.ShouldResemble, []string{call("SetVoltage", 3.0)})

		on, powerPct, err := motorDep.IsPowered(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, on, test.ShouldBeTrue)
		test.That(t, powerPct, test.ShouldAlmostEqual, 0.25)
		test.That(t, motorDep.ResetZeroPosition(ctx, 0, nil), test.ShouldNotBeNil)
	})

	t.Run("close errors are wrapped", func(t *testing.T) {
		ctrl.closeErr = errors.New("gone")
		err := motorDep.Close(ctx)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "error closing motor (drive 5)")
	})
}

func TestSimulatedMotor(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	ctrl := newFakeController(t, 8)
	abs := &fakeAbsoluteEncoder{position: 33}
	mc := Config{CANID: 8, Role: "steer", ConversionFactor: 360, Simulation: true, VoltageCompensation: 12}
	motorDep, err := makeMotor(ctx, mc, resource.NewName(motor.API, "steer8"), logger, ctrl, abs)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, motorDep.GoTo(ctx, 100, 270, nil), test.ShouldBeNil)
	test.That(t, motorDep.SetPower(ctx, 1, nil), test.ShouldBeNil)
	test.That(t, ctrl.Writes(), test.ShouldBeEmpty)

	pos, err := motorDep.Position(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 33.0)
	test.That(t, motorDep.Swerve().UsingExternalFeedbackSensor(), test.ShouldBeTrue)
}

func TestBenchMotor(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	// with no controller configured the motor drives a simulated nova
	conf := resource.Config{
		Name:  "bench",
		API:   motor.API,
		Model: Model,
		ConvertedAttributes: &Config{
			CANID:            2,
			Role:             "steer",
			ConversionFactor: 360,
		},
	}
	m, err := newMotor(ctx, resource.Dependencies{}, conf, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, m.Close(ctx), test.ShouldBeNil)
	}()

	steer, ok := m.(*Motor)
	test.That(t, ok, test.ShouldBeTrue)
	_, ok = steer.Swerve().Controller().(*sim.Controller)
	test.That(t, ok, test.ShouldBeTrue)
}
