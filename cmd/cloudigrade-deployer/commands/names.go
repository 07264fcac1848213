package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/cloudigrade/deployer/internal/naming"
)

// NamesCommand returns the names command for printing resource name conventions
func NamesCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "names",
		Usage: "Print the AWS resource names for an environment",
		Description: `Print every resource name cloudigrade derives from an environment.

Examples:
  # Print names for the stage environment as YAML
  cloudigrade-deployer names --env stage

  # Print names as JSON for scripting
  cloudigrade-deployer names --env prod --output json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Aliases:  []string{"e"},
				Usage:    "Deployment environment",
				Required: true,
				EnvVars:  []string{"CLOUDIGRADE_ENVIRONMENT"},
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output format: yaml or json",
				Value:   "yaml",
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

			switch c.String("output") {
			case "json":
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(names)
			case "yaml":
				return yaml.NewEncoder(os.Stdout).Encode(names)
			default:
				return fmt.Errorf("unknown output format: %s", c.String("output"))
			}
		},
	}
}
