package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
)

// ECSInstancePolicyARN is the AWS managed policy that lets cluster instances
// register with ECS.
const ECSInstancePolicyARN = "arn:aws:iam::aws:policy/service-role/AmazonEC2ContainerServiceforEC2Role"

const ec2TrustPolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {"Service": "ec2.amazonaws.com"},
      "Action": "sts:AssumeRole"
    }
  ]
}`

// InspectionPolicy is the policy document scoped onto customer-account role
// sessions. It grants exactly the read/modify access the inspection pipeline
// needs and nothing else.
const InspectionPolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Sid": "CloudigradePolicy",
      "Effect": "Allow",
      "Action": [
        "ec2:DescribeImages",
        "ec2:DescribeInstances",
        "ec2:ModifySnapshotAttribute",
        "ec2:DescribeSnapshotAttribute",
        "ec2:ModifyImageAttribute",
        "ec2:DescribeSnapshots"
      ],
      "Resource": "*"
    }
  ]
}`

// InspectionPolicyActions lists the actions granted by InspectionPolicy, in
// policy order.
var InspectionPolicyActions = []string{
	"ec2:DescribeImages",
	"ec2:DescribeInstances",
	"ec2:ModifySnapshotAttribute",
	"ec2:DescribeSnapshotAttribute",
	"ec2:ModifyImageAttribute",
	"ec2:DescribeSnapshots",
}

// IAMAPI is the slice of the IAM client used by the service.
type IAMAPI interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	DeleteRole(ctx context.Context, params *iam.DeleteRoleInput, optFns ...func(*iam.Options)) (*iam.DeleteRoleOutput, error)
	AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error)
	DetachRolePolicy(ctx context.Context, params *iam.DetachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error)
	CreateInstanceProfile(ctx context.Context, params *iam.CreateInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.CreateInstanceProfileOutput, error)
	DeleteInstanceProfile(ctx context.Context, params *iam.DeleteInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.DeleteInstanceProfileOutput, error)
	AddRoleToInstanceProfile(ctx context.Context, params *iam.AddRoleToInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.AddRoleToInstanceProfileOutput, error)
	RemoveRoleFromInstanceProfile(ctx context.Context, params *iam.RemoveRoleFromInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.RemoveRoleFromInstanceProfileOutput, error)
}

type IAMService struct {
	client IAMAPI
}

func NewIAMService(cfg aws.Config) *IAMService {
	return &IAMService{client: iam.NewFromConfig(cfg)}
}

// NewIAMServiceWithClient creates an IAMService with a custom client.
// This is useful for testing.
func NewIAMServiceWithClient(client IAMAPI) *IAMService {
	return &IAMService{client: client}
}

// EnsureInstanceRole creates the inspection-cluster instance role and its
// instance profile if they do not exist, and returns the role ARN. The call
// is idempotent.
func (s *IAMService) EnsureInstanceRole(ctx context.Context, roleName string) (string, error) {
	var roleARN string

	getResult, err := s.client.GetRole(ctx, &iam.GetRoleInput{
		RoleName: aws.String(roleName),
	})
	switch {
	case err == nil:
		roleARN = aws.ToString(getResult.Role.Arn)
	case isNoSuchEntity(err):
		createResult, err := s.client.CreateRole(ctx, &iam.CreateRoleInput{
			RoleName:                 aws.String(roleName),
			AssumeRolePolicyDocument: aws.String(ec2TrustPolicy),
			Description:              aws.String("cloudigrade inspection cluster instance role"),
		})
		if err != nil {
			return "", fmt.Errorf("failed to create role %s: %w", roleName, err)
		}
		roleARN = aws.ToString(createResult.Role.Arn)
	default:
		return "", fmt.Errorf("failed to get role %s: %w", roleName, err)
	}

	_, err = s.client.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  aws.String(roleName),
		PolicyArn: aws.String(ECSInstancePolicyARN),
	})
	if err != nil {
		return "", fmt.Errorf("failed to attach policy to role %s: %w", roleName, err)
	}

	// The instance profile carries the same name as the role.
	_, err = s.client.CreateInstanceProfile(ctx, &iam.CreateInstanceProfileInput{
		InstanceProfileName: aws.String(roleName),
	})
	if err != nil && !isEntityAlreadyExists(err) {
		return "", fmt.Errorf("failed to create instance profile %s: %w", roleName, err)
	}

	_, err = s.client.AddRoleToInstanceProfile(ctx, &iam.AddRoleToInstanceProfileInput{
		InstanceProfileName: aws.String(roleName),
		RoleName:            aws.String(roleName),
	})
	if err != nil && !isLimitExceeded(err) && !isEntityAlreadyExists(err) {
		return "", fmt.Errorf("failed to add role to instance profile %s: %w", roleName, err)
	}

	return roleARN, nil
}

// DeleteInstanceRole removes the instance profile and role. Missing entities
// are not errors; teardown must be repeatable.
func (s *IAMService) DeleteInstanceRole(ctx context.Context, roleName string) error {
	_, err := s.client.RemoveRoleFromInstanceProfile(ctx, &iam.RemoveRoleFromInstanceProfileInput{
		InstanceProfileName: aws.String(roleName),
		RoleName:            aws.String(roleName),
	})
	if err != nil && !isNoSuchEntity(err) {
		return fmt.Errorf("failed to remove role from instance profile %s: %w", roleName, err)
	}

	_, err = s.client.DeleteInstanceProfile(ctx, &iam.DeleteInstanceProfileInput{
		InstanceProfileName: aws.String(roleName),
	})
	if err != nil && !isNoSuchEntity(err) {
		return fmt.Errorf("failed to delete instance profile %s: %w", roleName, err)
	}

	_, err = s.client.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  aws.String(roleName),
		PolicyArn: aws.String(ECSInstancePolicyARN),
	})
	if err != nil && !isNoSuchEntity(err) {
		return fmt.Errorf("failed to detach policy from role %s: %w", roleName, err)
	}

	_, err = s.client.DeleteRole(ctx, &iam.DeleteRoleInput{
		RoleName: aws.String(roleName),
	})
	if err != nil && !isNoSuchEntity(err) {
		return fmt.Errorf("failed to delete role %s: %w", roleName, err)
	}

	return nil
}

func isNoSuchEntity(err error) bool {
	var noSuchEntity *types.NoSuchEntityException
	return errors.As(err, &noSuchEntity)
}

func isEntityAlreadyExists(err error) bool {
	var alreadyExists *types.EntityAlreadyExistsException
	return errors.As(err, &alreadyExists)
}

func isLimitExceeded(err error) bool {
	var limitExceeded *types.LimitExceededException
	return errors.As(err, &limitExceeded)
}
