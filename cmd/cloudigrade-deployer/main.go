package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cloudigrade/deployer/cmd/cloudigrade-deployer/commands"
	"github.com/cloudigrade/deployer/internal/di"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "cloudigrade-deployer",
		Usage: "Provision and manage cloudigrade's AWS footprint",
		Description: `A unified CLI tool for managing cloudigrade deployment environments.

This tool provides commands for:
  - Provisioning and tearing down the ECS inspection cluster, its EC2
    capacity, and the CloudTrail S3/SQS pipeline
  - Rendering and linting ClowdJobInvocation smoke test manifests
  - Verifying customer-account inspection access
  - Auditing past provisioning runs`,
		Commands: []*cli.Command{
			commands.NamesCommand(&logger),
			commands.ValidateCommand(&logger),
			commands.SmokeTestCommand(&logger),
			commands.ProvisionCommand(&logger),
			commands.TeardownCommand(&logger),
			commands.RunsCommand(&logger),
			commands.InspectCommand(&logger),
			commands.AMICommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
