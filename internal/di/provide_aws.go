package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"

	"github.com/cloudigrade/deployer/internal/config"
	"github.com/cloudigrade/deployer/internal/dao/lockdao"
	"github.com/cloudigrade/deployer/internal/dao/rundao"
	"github.com/cloudigrade/deployer/internal/naming"
	"github.com/cloudigrade/deployer/internal/orchestrator"
	"github.com/cloudigrade/deployer/internal/services"
)

// ProvideContext provides the root context with the logger attached so that
// zerolog.Ctx works throughout the container.
func ProvideContext() context.Context {
	logger := ProvideLogger()
	return logger.WithContext(context.Background())
}

// ProvideAppConfig loads deployer configuration from the environment.
func ProvideAppConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("env", cfg.Env).
		Str("region", cfg.Region).
		Str("ecs_state", cfg.States.ECS.String()).
		Str("ec2_state", cfg.States.EC2.String()).
		Str("s3_state", cfg.States.S3.String()).
		Msg("configuration loaded")

	return cfg, nil
}

// ProvideConventions derives the resource names for the configured environment.
func ProvideConventions(cfg *config.Config) naming.Conventions {
	return cfg.Conventions()
}

func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
}

func ProvideDynamoDB(awsConfig aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsConfig)
}

func ProvideOrchestrator(
	names naming.Conventions,
	iamService *services.IAMService,
	ec2Service *services.EC2Service,
	ecsService *services.ECSService,
	capacity *services.CapacityService,
	s3Service *services.S3Service,
	sqsService *services.SQSService,
	resolver services.AMIResolver,
	dao *rundao.DAO,
	locks *lockdao.DAO,
) *orchestrator.Orchestrator {
	return orchestrator.New(
		names,
		iamService,
		ec2Service,
		ecsService,
		capacity,
		s3Service,
		sqsService,
		resolver,
		dao,
		locks,
	)
}
