package commands

import (
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/cloudigrade/deployer/internal/services"
)

// AMICommand returns the ami command for resolving the recommended cluster AMI
func AMICommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "ami",
		Usage: "Resolve the recommended ECS-optimized AMI for a region",
		Description: `Look up the current ECS-optimized Amazon Linux 2 AMI from the public
SSM parameter. This is the image cluster instances boot from.

Example:
  cloudigrade-deployer ami --region us-east-1`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "region",
				Usage:   "AWS region",
				Value:   "us-east-1",
				EnvVars: []string{"AWS_REGION"},
			},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.String("region")))
			if err != nil {
				return fmt.Errorf("failed to load AWS config: %w", err)
			}

			resolver := services.NewSSMAMIResolver(ssm.NewFromConfig(cfg))
			amiID, err := resolver.RecommendedAMI(ctx)
			if err != nil {
				return err
			}

			fmt.Println(amiID)
			return nil
		},
	}
}
