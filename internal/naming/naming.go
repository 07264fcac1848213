// Package naming derives the AWS resource names cloudigrade uses for a given
// deployment environment. Every name is a pure function of the environment
// string so that provisioning, teardown, and the running platform always agree
// on what a resource is called.
package naming

import (
	"fmt"
	"strconv"
	"strings"
)

// RecommendedAMIParameter is the public SSM parameter that tracks the current
// ECS-optimized Amazon Linux 2 AMI for the region.
const RecommendedAMIParameter = "/aws/service/ecs/optimized-ami/amazon-linux-2/recommended/image_id"

// Conventions holds every resource name derived from a deployment environment.
type Conventions struct {
	Env string `json:"env" yaml:"env"`

	// ECS inspection cluster
	ClusterName          string `json:"cluster_name" yaml:"cluster_name"`
	AutoScalingGroupName string `json:"autoscaling_group_name" yaml:"autoscaling_group_name"`
	LaunchTemplateName   string `json:"launch_template_name" yaml:"launch_template_name"`
	InstanceRoleName     string `json:"instance_role_name" yaml:"instance_role_name"`
	InstanceProfileName  string `json:"instance_profile_name" yaml:"instance_profile_name"`
	SecurityGroupName    string `json:"security_group_name" yaml:"security_group_name"`
	TaskFamily           string `json:"task_family" yaml:"task_family"`

	// EC2 bootstrap
	KeyPairName string `json:"key_pair_name" yaml:"key_pair_name"`

	// S3 / SQS
	TrailBucketName      string `json:"trail_bucket_name" yaml:"trail_bucket_name"`
	TrailBucketARN       string `json:"trail_bucket_arn" yaml:"trail_bucket_arn"`
	CloudTrailQueueName  string `json:"cloudtrail_queue_name" yaml:"cloudtrail_queue_name"`
	CloudTrailDLQName    string `json:"cloudtrail_dlq_name" yaml:"cloudtrail_dlq_name"`
	InspectionsQueueName string `json:"inspections_queue_name" yaml:"inspections_queue_name"`
}

// ForEnv computes the resource names for the given environment.
// The environment is not validated here; call Validate before using the
// names against AWS.
func ForEnv(env string) Conventions {
	bucket := fmt.Sprintf("%s-cloudigrade-trails", env)
	queue := fmt.Sprintf("%s-cloudigrade-cloudtrail-s3", env)

	return Conventions{
		Env: env,

		ClusterName:          fmt.Sprintf("cloudigrade-ecs-%s", env),
		AutoScalingGroupName: fmt.Sprintf("cloudigrade-ecs-asg-%s", env),
		LaunchTemplateName:   fmt.Sprintf("cloudigrade-ecs-lt-%s", env),
		InstanceRoleName:     fmt.Sprintf("cloudigrade-ecs-instance-%s", env),
		InstanceProfileName:  fmt.Sprintf("cloudigrade-ecs-instance-%s", env),
		SecurityGroupName:    fmt.Sprintf("cloudigrade-ecs-sg-%s", env),
		TaskFamily:           fmt.Sprintf("houndigrade-%s", env),

		KeyPairName: fmt.Sprintf("cloudigrade-%s", env),

		TrailBucketName:      bucket,
		TrailBucketARN:       BucketARN(bucket),
		CloudTrailQueueName:  queue,
		CloudTrailDLQName:    fmt.Sprintf("%s-dlq", queue),
		InspectionsQueueName: fmt.Sprintf("%s-cloudigrade-inspections", env),
	}
}

// BucketARN returns the ARN for an S3 bucket name. S3 ARNs carry no account
// or region component.
func BucketARN(bucket string) string {
	return "arn:aws:s3:::" + bucket
}

// RoleARN returns the ARN for an IAM role in the given account.
func RoleARN(accountID, roleName string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, roleName)
}

// QueueURL returns the URL for an SQS queue owned by the given account.
func QueueURL(region, accountID, queueName string) string {
	return fmt.Sprintf("https://sqs.%s.amazonaws.com/%s/%s", region, accountID, queueName)
}

// QueueARN returns the ARN for an SQS queue owned by the given account.
func QueueARN(region, accountID, queueName string) string {
	return fmt.Sprintf("arn:aws:sqs:%s:%s:%s", region, accountID, queueName)
}

// ExtractAccountID returns the account ID component of a well-formed ARN.
func ExtractAccountID(arn string) (string, error) {
	parts := strings.Split(arn, ":")
	if len(parts) < 6 {
		return "", fmt.Errorf("malformed ARN: %s", arn)
	}
	accountID := parts[4]
	if _, err := strconv.ParseUint(accountID, 10, 64); err != nil || len(accountID) != 12 {
		return "", fmt.Errorf("malformed account ID in ARN: %s", arn)
	}
	return accountID, nil
}
