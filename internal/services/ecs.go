package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

// ECSAPI is the slice of the ECS client used by the service.
type ECSAPI interface {
	CreateCluster(ctx context.Context, params *ecs.CreateClusterInput, optFns ...func(*ecs.Options)) (*ecs.CreateClusterOutput, error)
	DeleteCluster(ctx context.Context, params *ecs.DeleteClusterInput, optFns ...func(*ecs.Options)) (*ecs.DeleteClusterOutput, error)
	DescribeClusters(ctx context.Context, params *ecs.DescribeClustersInput, optFns ...func(*ecs.Options)) (*ecs.DescribeClustersOutput, error)
}

type ECSService struct {
	client ECSAPI
}

func NewECSService(cfg aws.Config) *ECSService {
	return &ECSService{client: ecs.NewFromConfig(cfg)}
}

// NewECSServiceWithClient creates an ECSService with a custom client. This is
// useful for testing.
func NewECSServiceWithClient(client ECSAPI) *ECSService {
	return &ECSService{client: client}
}

// EnsureCluster creates the inspection cluster if it does not exist and
// returns its ARN. CreateCluster is idempotent on cluster name.
func (s *ECSService) EnsureCluster(ctx context.Context, name string) (string, error) {
	result, err := s.client.CreateCluster(ctx, &ecs.CreateClusterInput{
		ClusterName: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create cluster %s: %w", name, err)
	}
	return aws.ToString(result.Cluster.ClusterArn), nil
}

// ClusterActive reports whether the named cluster exists and is ACTIVE.
// Deleted ECS clusters linger in INACTIVE status, which counts as absent.
func (s *ECSService) ClusterActive(ctx context.Context, name string) (bool, error) {
	result, err := s.client.DescribeClusters(ctx, &ecs.DescribeClustersInput{
		Clusters: []string{name},
	})
	if err != nil {
		return false, fmt.Errorf("failed to describe cluster %s: %w", name, err)
	}
	for _, cluster := range result.Clusters {
		if aws.ToString(cluster.ClusterName) == name && aws.ToString(cluster.Status) == "ACTIVE" {
			return true, nil
		}
	}
	return false, nil
}

// DeleteCluster removes the inspection cluster. A missing cluster is not an
// error.
func (s *ECSService) DeleteCluster(ctx context.Context, name string) error {
	_, err := s.client.DeleteCluster(ctx, &ecs.DeleteClusterInput{
		Cluster: aws.String(name),
	})
	if err != nil {
		var notFound *types.ClusterNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to delete cluster %s: %w", name, err)
	}
	return nil
}
