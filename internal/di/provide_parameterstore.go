package di

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"

	"github.com/cloudigrade/deployer/internal/services"
)

// ProvideSSMClient provides an SSM client for Parameter Store access
// Returns nil if SSM is disabled (for local development)
func ProvideSSMClient(awsConfig aws.Config) *ssm.Client {
	if os.Getenv("DISABLE_SSM") == "true" {
		return nil
	}

	return ssm.NewFromConfig(awsConfig)
}

// ProvideAMIResolver provides the cluster AMI lookup. The public SSM parameter
// is the source of truth; CLOUDIGRADE_AMI_ID serves local development when SSM
// is disabled.
func ProvideAMIResolver(ctx context.Context, ssmClient *ssm.Client) services.AMIResolver {
	logger := zerolog.Ctx(ctx)

	if ssmClient == nil {
		logger.Info().Msg("Using CLOUDIGRADE_AMI_ID for AMI lookup (SSM disabled)")
		return services.NewEnvAMIResolver()
	}

	logger.Info().Msg("Using AWS Systems Manager Parameter Store for AMI lookup")
	return services.NewSSMAMIResolver(ssmClient)
}
