package services

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	apperrors "github.com/cloudigrade/deployer/internal/errors"
	"github.com/cloudigrade/deployer/internal/naming"
)

// SSMGetParameterAPI is the slice of the SSM client used by the resolver.
type SSMGetParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// AMIResolver resolves the AMI ID used for inspection-cluster instances.
type AMIResolver interface {
	// RecommendedAMI returns the AMI ID for the current region.
	RecommendedAMI(ctx context.Context) (string, error)
}

// SSMAMIResolver resolves the recommended ECS-optimized AMI from the public
// SSM parameter AWS publishes per region.
type SSMAMIResolver struct {
	client SSMGetParameterAPI

	mu     sync.Mutex
	cached string
}

// NewSSMAMIResolver creates an SSM-backed AMI resolver.
func NewSSMAMIResolver(client SSMGetParameterAPI) *SSMAMIResolver {
	return &SSMAMIResolver{client: client}
}

// RecommendedAMI returns the current ECS-optimized Amazon Linux 2 AMI ID.
// The value is cached for the lifetime of the resolver; AMI churn within a
// single deployer run is not a concern.
func (r *SSMAMIResolver) RecommendedAMI(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != "" {
		return r.cached, nil
	}

	result, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(naming.RecommendedAMIParameter),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", naming.RecommendedAMIParameter, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil || *result.Parameter.Value == "" {
		return "", apperrors.ErrAMINotFound
	}

	r.cached = *result.Parameter.Value
	return r.cached, nil
}

// EnvAMIResolver reads the AMI ID from CLOUDIGRADE_AMI_ID. This is the
// offline fallback for development without an AWS connection.
type EnvAMIResolver struct{}

// NewEnvAMIResolver creates an environment-variable-backed AMI resolver.
func NewEnvAMIResolver() *EnvAMIResolver {
	return &EnvAMIResolver{}
}

// RecommendedAMI returns the AMI ID from the environment.
func (r *EnvAMIResolver) RecommendedAMI(ctx context.Context) (string, error) {
	if ami := os.Getenv("CLOUDIGRADE_AMI_ID"); ami != "" {
		return ami, nil
	}
	return "", apperrors.ErrAMINotFound
}
