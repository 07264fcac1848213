package commands

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/cloudigrade/deployer/internal/services"
)

type inspectHandler struct {
	sts *services.STSService
}

func newInspectHandler(ctx context.Context, region string) (*inspectHandler, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &inspectHandler{sts: services.NewSTSService(cfg)}, nil
}

// customerEC2 assumes the customer role and returns an EC2 service scoped to
// the customer account.
func (h *inspectHandler) customerEC2(ctx context.Context, roleARN, region string) (*services.EC2Service, error) {
	creds, err := h.sts.AssumeCustomerRole(ctx, roleARN)
	if err != nil {
		return nil, err
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				creds.AccessKeyID,
				creds.SecretAccessKey,
				creds.SessionToken,
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer AWS config: %w", err)
	}

	return services.NewEC2Service(cfg), nil
}

// InspectCommand returns the inspect command for working with customer accounts
func InspectCommand(logger *zerolog.Logger) *cli.Command {
	roleFlag := &cli.StringFlag{
		Name:     "role-arn",
		Usage:    "ARN of the customer account role cloudigrade assumes",
		Required: true,
		EnvVars:  []string{"CUSTOMER_ROLE_ARN"},
	}
	regionFlag := &cli.StringFlag{
		Name:    "region",
		Usage:   "AWS region",
		Value:   "us-east-1",
		EnvVars: []string{"AWS_REGION"},
	}

	return &cli.Command{
		Name:  "inspect",
		Usage: "Verify and exercise customer-account inspection access",
		Subcommands: []*cli.Command{
			{
				Name:  "verify",
				Usage: "Dry-run every action the inspection policy grants",
				Description: `Assume the customer role and dry-run each EC2 action cloudigrade needs.
Exits non-zero when any action is denied.

Example:
  cloudigrade-deployer inspect verify --role-arn arn:aws:iam::123456789012:role/cloudigrade-role`,
				Flags: []cli.Flag{roleFlag, regionFlag},
				Action: func(c *cli.Context) error {
					ctx := c.Context
					handler, err := newInspectHandler(ctx, c.String("region"))
					if err != nil {
						return err
					}

					ec2Service, err := handler.customerEC2(ctx, c.String("role-arn"), c.String("region"))
					if err != nil {
						return err
					}

					verified, err := ec2Service.VerifyInspectionAccess(ctx)
					if err != nil {
						return err
					}
					if !verified {
						return fmt.Errorf("customer role %s denies one or more inspection actions", c.String("role-arn"))
					}

					logger.Info().Str("role_arn", c.String("role-arn")).Msg("inspection access verified")
					return nil
				},
			},
			{
				Name:  "instances",
				Usage: "List running instances across every region of a customer account",
				Flags: []cli.Flag{roleFlag, regionFlag},
				Action: func(c *cli.Context) error {
					ctx := c.Context
					handler, err := newInspectHandler(ctx, c.String("region"))
					if err != nil {
						return err
					}

					ec2Service, err := handler.customerEC2(ctx, c.String("role-arn"), c.String("region"))
					if err != nil {
						return err
					}

					byRegion, err := ec2Service.RunningInstances(ctx)
					if err != nil {
						return err
					}

					total := 0
					for region, instances := range byRegion {
						for _, instance := range instances {
							total++
							logger.Info().
								Str("region", region).
								Str("instance_id", aws.ToString(instance.InstanceId)).
								Str("image_id", aws.ToString(instance.ImageId)).
								Msg("running instance")
						}
					}
					logger.Info().Int("count", total).Msg("running instances found")
					return nil
				},
			},
		},
	}
}
