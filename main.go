// Package main is the module entrypoint serving the Thrifty Nova swerve motor model.
package main

import (
	"context"

	"go.viam.com/rdk/components/motor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/module"
	"go.viam.com/utils"

	"github.com/viam-modules/swerve/novaswerve"
)

func main() {
	utils.ContextualMain(mainWithArgs, module.NewLoggerFromArgs("swerve"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	swerveModule, err := module.NewModuleFromArgs(ctx)
	if err != nil {
		return err
	}

	if err = swerveModule.AddModelFromRegistry(ctx, motor.API, novaswerve.Model); err != nil {
		return err
	}

	err = swerveModule.Start(ctx)
	defer swerveModule.Close(ctx)
	if err != nil {
		return err
	}

	logger.Infof("serving %s", novaswerve.Model)
	<-ctx.Done()
	return nil
}
