package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/cloudigrade/deployer/internal/userdata"
)

// DefaultInstanceType is the instance type houndigrade inspection tasks run
// on. Inspections are short-lived and I/O bound; small instances suffice.
const DefaultInstanceType = "t3.micro"

// LaunchTemplateAPI is the slice of the EC2 client used for launch templates.
type LaunchTemplateAPI interface {
	CreateLaunchTemplate(ctx context.Context, params *ec2.CreateLaunchTemplateInput, optFns ...func(*ec2.Options)) (*ec2.CreateLaunchTemplateOutput, error)
	CreateLaunchTemplateVersion(ctx context.Context, params *ec2.CreateLaunchTemplateVersionInput, optFns ...func(*ec2.Options)) (*ec2.CreateLaunchTemplateVersionOutput, error)
	DeleteLaunchTemplate(ctx context.Context, params *ec2.DeleteLaunchTemplateInput, optFns ...func(*ec2.Options)) (*ec2.DeleteLaunchTemplateOutput, error)
}

// AutoScalingAPI is the slice of the Auto Scaling client used by the service.
type AutoScalingAPI interface {
	CreateAutoScalingGroup(ctx context.Context, params *autoscaling.CreateAutoScalingGroupInput, optFns ...func(*autoscaling.Options)) (*autoscaling.CreateAutoScalingGroupOutput, error)
	UpdateAutoScalingGroup(ctx context.Context, params *autoscaling.UpdateAutoScalingGroupInput, optFns ...func(*autoscaling.Options)) (*autoscaling.UpdateAutoScalingGroupOutput, error)
	DeleteAutoScalingGroup(ctx context.Context, params *autoscaling.DeleteAutoScalingGroupInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DeleteAutoScalingGroupOutput, error)
}

// CapacityService manages the launch template and autoscaling group backing
// the inspection cluster.
type CapacityService struct {
	ec2Client LaunchTemplateAPI
	asgClient AutoScalingAPI
}

func NewCapacityService(cfg aws.Config) *CapacityService {
	return &CapacityService{
		ec2Client: ec2.NewFromConfig(cfg),
		asgClient: autoscaling.NewFromConfig(cfg),
	}
}

// NewCapacityServiceWithClients creates a CapacityService with custom
// clients. This is useful for testing.
func NewCapacityServiceWithClients(ec2Client LaunchTemplateAPI, asgClient AutoScalingAPI) *CapacityService {
	return &CapacityService{ec2Client: ec2Client, asgClient: asgClient}
}

// LaunchTemplateInput describes the launch template for cluster instances.
type LaunchTemplateInput struct {
	Name            string
	AMIID           string
	InstanceType    string
	KeyPairName     string
	InstanceProfile string
	SecurityGroupID string
	ClusterName     string
}

// EnsureLaunchTemplate creates the launch template, or adds a new default
// version when it already exists so AMI updates roll out on next scale-up.
func (s *CapacityService) EnsureLaunchTemplate(ctx context.Context, input LaunchTemplateInput) error {
	if input.InstanceType == "" {
		input.InstanceType = DefaultInstanceType
	}

	encoded, err := userdata.RenderBase64(userdata.Params{ClusterName: input.ClusterName})
	if err != nil {
		return err
	}

	data := &ec2types.RequestLaunchTemplateData{
		ImageId:      aws.String(input.AMIID),
		InstanceType: ec2types.InstanceType(input.InstanceType),
		UserData:     aws.String(encoded),
		IamInstanceProfile: &ec2types.LaunchTemplateIamInstanceProfileSpecificationRequest{
			Name: aws.String(input.InstanceProfile),
		},
	}
	if input.KeyPairName != "" {
		data.KeyName = aws.String(input.KeyPairName)
	}
	if input.SecurityGroupID != "" {
		data.SecurityGroupIds = []string{input.SecurityGroupID}
	}

	_, err = s.ec2Client.CreateLaunchTemplate(ctx, &ec2.CreateLaunchTemplateInput{
		LaunchTemplateName: aws.String(input.Name),
		LaunchTemplateData: data,
	})
	if err == nil {
		return nil
	}
	if !isEC2ErrorCode(err, "InvalidLaunchTemplateName.AlreadyExistsException") {
		return fmt.Errorf("failed to create launch template %s: %w", input.Name, err)
	}

	_, err = s.ec2Client.CreateLaunchTemplateVersion(ctx, &ec2.CreateLaunchTemplateVersionInput{
		LaunchTemplateName: aws.String(input.Name),
		LaunchTemplateData: data,
	})
	if err != nil {
		return fmt.Errorf("failed to update launch template %s: %w", input.Name, err)
	}
	return nil
}

// DeleteLaunchTemplate removes the launch template. A missing template is
// not an error.
func (s *CapacityService) DeleteLaunchTemplate(ctx context.Context, name string) error {
	_, err := s.ec2Client.DeleteLaunchTemplate(ctx, &ec2.DeleteLaunchTemplateInput{
		LaunchTemplateName: aws.String(name),
	})
	if err != nil && !isEC2ErrorCode(err, "InvalidLaunchTemplateName.NotFoundException") {
		return fmt.Errorf("failed to delete launch template %s: %w", name, err)
	}
	return nil
}

// GroupInput describes the autoscaling group for cluster instances.
type GroupInput struct {
	Name               string
	LaunchTemplateName string
	// MaxSize caps concurrent inspection instances. The group scales from
	// zero; houndigrade tasks drive capacity up on demand.
	MaxSize int32
}

// EnsureGroup creates or updates the autoscaling group.
func (s *CapacityService) EnsureGroup(ctx context.Context, input GroupInput) error {
	if input.MaxSize == 0 {
		input.MaxSize = 1
	}

	launchTemplate := &asgtypes.LaunchTemplateSpecification{
		LaunchTemplateName: aws.String(input.LaunchTemplateName),
		Version:            aws.String("$Latest"),
	}

	_, err := s.asgClient.CreateAutoScalingGroup(ctx, &autoscaling.CreateAutoScalingGroupInput{
		AutoScalingGroupName: aws.String(input.Name),
		LaunchTemplate:       launchTemplate,
		MinSize:              aws.Int32(0),
		MaxSize:              aws.Int32(input.MaxSize),
		DesiredCapacity:      aws.Int32(0),
	})
	if err == nil {
		return nil
	}

	var alreadyExists *asgtypes.AlreadyExistsFault
	if !errors.As(err, &alreadyExists) {
		return fmt.Errorf("failed to create autoscaling group %s: %w", input.Name, err)
	}

	_, err = s.asgClient.UpdateAutoScalingGroup(ctx, &autoscaling.UpdateAutoScalingGroupInput{
		AutoScalingGroupName: aws.String(input.Name),
		LaunchTemplate:       launchTemplate,
		MinSize:              aws.Int32(0),
		MaxSize:              aws.Int32(input.MaxSize),
	})
	if err != nil {
		return fmt.Errorf("failed to update autoscaling group %s: %w", input.Name, err)
	}
	return nil
}

// DeleteGroup force-deletes the autoscaling group and its instances. A
// missing group is not an error.
func (s *CapacityService) DeleteGroup(ctx context.Context, name string) error {
	_, err := s.asgClient.DeleteAutoScalingGroup(ctx, &autoscaling.DeleteAutoScalingGroupInput{
		AutoScalingGroupName: aws.String(name),
		ForceDelete:          aws.Bool(true),
	})
	if err != nil {
		var apiErr *asgtypes.ResourceContentionFault
		if errors.As(err, &apiErr) {
			return fmt.Errorf("autoscaling group %s is busy: %w", name, err)
		}
		if isEC2ErrorCode(err, "ValidationError") {
			// DeleteAutoScalingGroup reports a missing group as ValidationError
			return nil
		}
		return fmt.Errorf("failed to delete autoscaling group %s: %w", name, err)
	}
	return nil
}
