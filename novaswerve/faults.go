package novaswerve

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"

	"github.com/viam-modules/swerve/telemetry"
)

// supportedFirmware is the Nova firmware range this package has been run against.
const supportedFirmware = ">= 1.0.0"

// CheckErrors reports the controller's current faults, each prefixed with message. Nothing is
// read below Info verbosity; lines are echoed to the console at High and above. Faults never
// become errors.
func (m *SwerveMotor) CheckErrors(ctx context.Context, message string) {
	verbosity := m.sink.Verbosity()
	if verbosity < telemetry.Info {
		return
	}

	faults, err := m.ctrl.Faults(ctx)
	if err != nil {
		m.logger.CWarn(ctx, errors.Wrapf(err, "error reading faults from motor (%s)", m.name()))
		return
	}
	for _, fault := range faults {
		line := fmt.Sprintf("%s: %s%s", componentName, message, fault)
		if verbosity >= telemetry.High {
			m.sink.Print(line)
		}
		m.sink.Log(line)
	}
}

// checkFirmware warns when the controller runs firmware outside supportedFirmware.
func (m *SwerveMotor) checkFirmware(ctx context.Context) {
	if !m.env.IsReal() {
		return
	}

	raw, err := m.ctrl.FirmwareVersion(ctx)
	if err != nil {
		m.logger.CWarn(ctx, errors.Wrapf(err, "error reading firmware version from motor (%s)", m.name()))
		return
	}
	version, err := semver.NewVersion(raw)
	if err != nil {
		m.logger.CWarnf(ctx, "motor (%s) reports unrecognized firmware version %q", m.name(), raw)
		return
	}
	constraint, err := semver.NewConstraint(supportedFirmware)
	if err != nil {
		m.logger.CError(ctx, err)
		return
	}
	if !constraint.Check(version) {
		m.logger.CWarnf(ctx, "motor (%s) firmware %s is outside the supported range %s", m.name(), version, supportedFirmware)
	}
}
