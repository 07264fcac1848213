package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/cloudigrade/deployer/internal/clowder"
	"github.com/cloudigrade/deployer/internal/naming"
	"github.com/cloudigrade/deployer/internal/policy"
)

// ValidateCommand returns the validate command that checks naming conventions
// and, optionally, smoke test manifests
func ValidateCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate environment naming and smoke test manifests",
		ArgsUsage: "[MANIFEST...]",
		Description: `Check that every resource name derived from the environment satisfies
its AWS constraints, then lint any manifest files given as arguments.
Exits non-zero on the first violation.

Examples:
  # Validate naming only
  cloudigrade-deployer validate --env stage

  # Validate naming and a rendered manifest
  cloudigrade-deployer validate --env stage smoke.yaml`,
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
			env := c.String("env")
			if err := naming.ValidateEnv(env); err != nil {
				return err
			}

			names := naming.ForEnv(env)
			if err := names.Validate(); err != nil {
				return err
			}
			logger.Info().Str("env", env).Msg("resource names valid")

			if c.NArg() == 0 {
				return nil
			}

			validator, err := policy.NewValidator()
			if err != nil {
				return err
			}

			for _, path := range c.Args().Slice() {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read manifest: %w", err)
				}

				inv, err := clowder.Parse(data)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}

				result, err := validator.ValidateInvocation(c.Context, inv)
				if err != nil {
					return err
				}
				if !result.Allowed {
					for _, violation := range result.Violations {
						logger.Error().Str("file", path).Msg(violation)
					}
					return fmt.Errorf("manifest %s failed policy with %d violation(s)", path, len(result.Violations))
				}
				logger.Info().Str("file", path).Msg("manifest valid")
			}

			return nil
		},
	}
}
