package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/cloudigrade/deployer/internal/clowder"
	"github.com/cloudigrade/deployer/internal/policy"
)

// SmokeTestCommand returns the smoketest command for rendering and linting
// ClowdJobInvocation manifests
func SmokeTestCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:    "smoketest",
		Aliases: []string{"smoke"},
		Usage:   "Render and lint ClowdJobInvocation smoke test manifests",
		Subcommands: []*cli.Command{
			{
				Name:  "render",
				Usage: "Render a smoke test manifest for an image tag",
				Description: `Render the ClowdJobInvocation manifest that runs the IQE smoke suite
against a cloudigrade image.

Examples:
  # Render a manifest for a freshly built image
  cloudigrade-deployer smoketest render --image-tag a1b2c3d

  # Pin the job suffix and enable IQE debug output
  cloudigrade-deployer smoketest render --image-tag a1b2c3d --uid x7k2p9 --debug`,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "image-tag",
						Aliases:  []string{"t"},
						Usage:    "Image tag under test",
						Required: true,
						EnvVars:  []string{"IMAGE_TAG"},
					},
					&cli.StringFlag{
						Name:    "uid",
						Usage:   "Job name suffix, 6 chars of [a-z0-9]; generated when omitted",
						EnvVars: []string{"UID"},
					},
					&cli.StringFlag{
						Name:    "dynaconf-env",
						Usage:   "IQE settings environment",
						EnvVars: []string{"IQE_DYNACONF_ENV_NAME"},
					},
					&cli.StringFlag{
						Name:  "filter",
						Usage: "IQE test filter expression",
					},
					&cli.BoolFlag{
						Name:  "debug",
						Usage: "Enable verbose IQE output",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the manifest to a file instead of stdout",
					},
				},
				Action: func(c *cli.Context) error {
					inv, err := clowder.Render(clowder.Params{
						ImageTag:        c.String("image-tag"),
						UID:             c.String("uid"),
						DynaconfEnvName: c.String("dynaconf-env"),
						Filter:          c.String("filter"),
						Debug:           c.Bool("debug"),
					})
					if err != nil {
						return err
					}

					data, err := inv.Encode()
					if err != nil {
						return err
					}

					if out := c.String("output"); out != "" {
						if err := os.WriteFile(out, data, 0o644); err != nil {
							return fmt.Errorf("failed to write manifest: %w", err)
						}
						logger.Info().Str("path", out).Str("job", inv.Metadata.Name).Msg("manifest written")
						return nil
					}

					_, err = os.Stdout.Write(data)
					return err
				},
			},
			{
				Name:  "lint",
				Usage: "Validate a smoke test manifest against policy",
				Description: `Parse a manifest file and evaluate it against the smoke test policy.
Exits non-zero and lists every violation when the manifest does not conform.

Example:
  cloudigrade-deployer smoketest lint manifest.yaml`,
				ArgsUsage: "FILE",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("expected exactly one manifest file argument")
					}
					path := c.Args().First()

					data, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("failed to read manifest: %w", err)
					}

					inv, err := clowder.Parse(data)
					if err != nil {
						return err
					}

					validator, err := policy.NewValidator()
					if err != nil {
						return err
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

					logger.Info().Str("file", path).Str("job", inv.Metadata.Name).Msg("manifest conforms to policy")
					return nil
				},
			},
		},
	}
}
