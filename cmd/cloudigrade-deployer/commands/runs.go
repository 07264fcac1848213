package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/cloudigrade/deployer/internal/dao/rundao"
	"github.com/cloudigrade/deployer/internal/di"
)

// RunsCommand returns the runs command for auditing provisioning history
func RunsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect recorded provisioning runs",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List all runs for an environment, oldest first",
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

					return container.Invoke(func(ctx context.Context, dao *rundao.DAO) error {
						records, err := dao.Query(ctx, c.String("env"))
						if err != nil {
							return err
						}

						encoder := json.NewEncoder(os.Stdout)
						encoder.SetIndent("", "  ")
						return encoder.Encode(records)
					})
				},
			},
			{
				Name:  "latest",
				Usage: "Show the most recent run for an environment",
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

					return container.Invoke(func(ctx context.Context, dao *rundao.DAO) error {
						record, err := dao.Latest(ctx, c.String("env"))
						if err != nil {
							return err
						}
						if record == nil {
							logger.Info().Str("env", c.String("env")).Msg("no runs recorded")
							return nil
						}

						encoder := json.NewEncoder(os.Stdout)
						encoder.SetIndent("", "  ")
						return encoder.Encode(record)
					})
				},
			},
		},
	}
}
