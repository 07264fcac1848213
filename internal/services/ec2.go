package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// EC2 instance state codes.
// https://docs.aws.amazon.com/AWSEC2/latest/APIReference/API_InstanceState.html
const (
	InstanceStatePending      = 0
	InstanceStateRunning      = 16
	InstanceStateShuttingDown = 32
	InstanceStateTerminated   = 48
	InstanceStateStopping     = 64
	InstanceStateStopped      = 80
)

// IsRunning reports whether an instance state code counts as running.
func IsRunning(code int32) bool {
	return code == InstanceStateRunning
}

// EC2API is the slice of the EC2 client used by the service.
type EC2API interface {
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
	DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
	DescribeSnapshotAttribute(ctx context.Context, params *ec2.DescribeSnapshotAttributeInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotAttributeOutput, error)
	ModifySnapshotAttribute(ctx context.Context, params *ec2.ModifySnapshotAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifySnapshotAttributeOutput, error)
	ModifyImageAttribute(ctx context.Context, params *ec2.ModifyImageAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyImageAttributeOutput, error)
	CreateSecurityGroup(ctx context.Context, params *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error)
	DeleteSecurityGroup(ctx context.Context, params *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
}

type EC2Service struct {
	client   EC2API
	regional func(region string) EC2API
}

func NewEC2Service(cfg aws.Config) *EC2Service {
	return &EC2Service{
		client: ec2.NewFromConfig(cfg),
		regional: func(region string) EC2API {
			return ec2.NewFromConfig(cfg, func(o *ec2.Options) {
				o.Region = region
			})
		},
	}
}

// NewEC2ServiceWithClient creates an EC2Service that uses the given client
// for every region. This is useful for testing.
func NewEC2ServiceWithClient(client EC2API) *EC2Service {
	return &EC2Service{
		client:   client,
		regional: func(string) EC2API { return client },
	}
}

// EnsureSecurityGroup creates the inspection-cluster security group if needed
// and returns its ID.
func (s *EC2Service) EnsureSecurityGroup(ctx context.Context, name string) (string, error) {
	result, err := s.client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String("cloudigrade inspection cluster"),
	})
	if err == nil {
		return aws.ToString(result.GroupId), nil
	}
	if !isEC2ErrorCode(err, "InvalidGroup.Duplicate") {
		return "", fmt.Errorf("failed to create security group %s: %w", name, err)
	}

	describe, err := s.client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []types.Filter{
			{Name: aws.String("group-name"), Values: []string{name}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe security group %s: %w", name, err)
	}
	if len(describe.SecurityGroups) == 0 {
		return "", fmt.Errorf("security group %s reported as duplicate but not found", name)
	}
	return aws.ToString(describe.SecurityGroups[0].GroupId), nil
}

// DeleteSecurityGroup removes the security group by name. A missing group is
// not an error.
func (s *EC2Service) DeleteSecurityGroup(ctx context.Context, name string) error {
	_, err := s.client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
		GroupName: aws.String(name),
	})
	if err != nil && !isEC2ErrorCode(err, "InvalidGroup.NotFound") {
		return fmt.Errorf("failed to delete security group %s: %w", name, err)
	}
	return nil
}

// RunningInstances finds all running instances visible to the current
// credentials, keyed by region.
func (s *EC2Service) RunningInstances(ctx context.Context) (map[string][]types.Instance, error) {
	logger := zerolog.Ctx(ctx)

	regionsResult, err := s.client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to describe regions: %w", err)
	}

	running := map[string][]types.Instance{}
	for _, region := range regionsResult.Regions {
		regionName := aws.ToString(region.RegionName)
		logger.Debug().Str("region", regionName).Msg("Describing instances")

		client := s.regional(regionName)
		paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to describe instances in %s: %w", regionName, err)
			}
			for _, reservation := range page.Reservations {
				for _, instance := range reservation.Instances {
					if instance.State != nil && IsRunning(aws.ToInt32(instance.State.Code)) {
						running[regionName] = append(running[regionName], instance)
					}
				}
			}
		}
	}

	return running, nil
}

// VerifyInspectionAccess dry-runs every action in the inspection policy
// against the given client and reports whether all are allowed. Each denied
// action is logged individually so a partially configured role shows every
// gap at once.
func (s *EC2Service) VerifyInspectionAccess(ctx context.Context) (bool, error) {
	success := true
	for _, action := range InspectionPolicyActions {
		allowed, err := s.verifyPolicyAction(ctx, action)
		if err != nil {
			return false, err
		}
		if !allowed {
			success = false
		}
	}
	return success, nil
}

func (s *EC2Service) verifyPolicyAction(ctx context.Context, action string) (bool, error) {
	logger := zerolog.Ctx(ctx)
	dryRun := aws.Bool(true)

	var err error
	switch action {
	case "ec2:DescribeImages":
		_, err = s.client.DescribeImages(ctx, &ec2.DescribeImagesInput{DryRun: dryRun})
	case "ec2:DescribeInstances":
		_, err = s.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{DryRun: dryRun})
	case "ec2:DescribeSnapshotAttribute":
		_, err = s.client.DescribeSnapshotAttribute(ctx, &ec2.DescribeSnapshotAttributeInput{
			DryRun:     dryRun,
			SnapshotId: aws.String("string"),
			Attribute:  types.SnapshotAttributeNameProductCodes,
		})
	case "ec2:DescribeSnapshots":
		_, err = s.client.DescribeSnapshots(ctx, &ec2.DescribeSnapshotsInput{DryRun: dryRun})
	case "ec2:ModifySnapshotAttribute":
		_, err = s.client.ModifySnapshotAttribute(ctx, &ec2.ModifySnapshotAttributeInput{
			DryRun:     dryRun,
			SnapshotId: aws.String("string"),
			Attribute:  types.SnapshotAttributeNameProductCodes,
			GroupNames: []string{"string"},
		})
	case "ec2:ModifyImageAttribute":
		_, err = s.client.ModifyImageAttribute(ctx, &ec2.ModifyImageAttributeInput{
			DryRun:    dryRun,
			ImageId:   aws.String("string"),
			Attribute: aws.String("description"),
		})
	default:
		logger.Warn().Str("action", action).Msg("No test case exists for action")
		return false, nil
	}

	switch {
	case isEC2ErrorCode(err, "DryRunOperation"):
		logger.Debug().Str("action", action).Msg("Verified access")
		return true, nil
	case isEC2ErrorCode(err, "UnauthorizedOperation"):
		logger.Warn().Str("action", action).Msg("No access")
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to verify action %s: %w", action, err)
	default:
		// A dry run that succeeds outright should not happen, but counts as access.
		return true, nil
	}
}

func isEC2ErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == code
}
