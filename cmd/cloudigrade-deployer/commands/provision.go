package commands

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/cloudigrade/deployer/internal/config"
	"github.com/cloudigrade/deployer/internal/di"
	"github.com/cloudigrade/deployer/internal/orchestrator"
)

// stateFlags are shared by provision; each group can be converged independently.
func stateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "env",
			Aliases:  []string{"e"},
			Usage:    "Deployment environment",
			Required: true,
			EnvVars:  []string{"CLOUDIGRADE_ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "ecs-state",
			Usage:   "Desired state of the ECS cluster group: present or absent",
			EnvVars: []string{"ECS_STATE"},
		},
		&cli.StringFlag{
			Name:    "ec2-state",
			Usage:   "Desired state of the EC2 capacity group: present or absent",
			EnvVars: []string{"EC2_STATE"},
		},
		&cli.StringFlag{
			Name:    "s3-state",
			Usage:   "Desired state of the CloudTrail storage group: present or absent",
			EnvVars: []string{"S3_STATE"},
		},
	}
}

// exportFlags copies CLI flag values into the environment so config.Load sees
// a single source of truth regardless of how the deployer was invoked.
func exportFlags(c *cli.Context) {
	for flag, key := range map[string]string{
		"env":       "CLOUDIGRADE_ENVIRONMENT",
		"ecs-state": "ECS_STATE",
		"ec2-state": "EC2_STATE",
		"s3-state":  "S3_STATE",
	} {
		if v := c.String(flag); v != "" {
			os.Setenv(key, v)
		}
	}
}

// ProvisionCommand returns the provision command that converges every
// resource group toward its desired state
func ProvisionCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:    "provision",
		Aliases: []string{"apply"},
		Usage:   "Provision the cloudigrade AWS footprint for an environment",
		Description: `Converge the ECS cluster, EC2 capacity, and CloudTrail storage groups
toward their desired states. Each group defaults to present; mark a group
absent to remove it while leaving the others in place.

Examples:
  # Provision everything for stage
  cloudigrade-deployer provision --env stage

  # Keep storage but remove compute
  cloudigrade-deployer provision --env stage --ecs-state absent --ec2-state absent`,
		Flags: stateFlags(),
		Action: func(c *cli.Context) error {
			exportFlags(c)

			container, err := di.New(c.String("env"))
			if err != nil {
				return err
			}

			return container.Invoke(func(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator) error {
				record, err := orch.Apply(ctx, cfg.States)
				if err != nil {
					return err
				}
				logger.Info().Str("run_id", record.GetID().String()).Msg("provision complete")
				return nil
			})
		},
	}
}

// TeardownCommand returns the teardown command that removes every resource group
func TeardownCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "teardown",
		Usage: "Remove the cloudigrade AWS footprint for an environment",
		Description: `Tear down every resource group in reverse dependency order. The trail
bucket and its queues go last so in-flight CloudTrail events drain first.

Example:
  cloudigrade-deployer teardown --env stage`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Aliases:  []string{"e"},
				Usage:    "Deployment environment",
				Required: true,
				EnvVars:  []string{"CLOUDIGRADE_ENVIRONMENT"},
			},
		},
		Action: func(c *cli.Context) error {
			os.Setenv("CLOUDIGRADE_ENVIRONMENT", c.String("env"))

			container, err := di.New(c.String("env"))
			if err != nil {
				return err
			}

			return container.Invoke(func(ctx context.Context, orch *orchestrator.Orchestrator) error {
				record, err := orch.Teardown(ctx)
				if err != nil {
					return err
				}
				logger.Info().Str("run_id", record.GetID().String()).Msg("teardown complete")
				return nil
			})
		},
	}
}
