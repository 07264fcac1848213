package naming

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

// AWS imposes different naming rules per resource type. The checks below cover
// the types cloudigrade provisions; see the AWS service documentation for the
// authoritative rules.
const (
	maxBucketNameLen   = 63
	minBucketNameLen   = 3
	maxQueueNameLen    = 80
	maxIAMRoleNameLen  = 64
	maxClusterNameLen  = 255
	maxSecurityGroupLen = 255
)

var (
	envPattern           = regexp.MustCompile(`^[a-z][a-z0-9-]{0,30}[a-z0-9]$`)
	bucketLabelPattern   = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	queueNamePattern     = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	iamRoleNamePattern   = regexp.MustCompile(`^[\w+=,.@-]+$`)
	clusterNamePattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	launchTemplatePattern = regexp.MustCompile(`^[a-zA-Z0-9().\-/_]+$`)
)

// ValidateEnv checks that an environment name is safe to embed in every
// derived resource name. Environments are short lowercase tokens (e.g. "ci",
// "qa", "stage", "prod", "review-1234").
func ValidateEnv(env string) error {
	if env == "" {
		return fmt.Errorf("environment name must not be empty")
	}
	if !envPattern.MatchString(env) {
		return fmt.Errorf("invalid environment name %q: must match %s", env, envPattern)
	}
	return nil
}

// Validate checks every derived name against the constraints of its AWS
// resource type. A valid environment always yields valid names; this guards
// against convention changes that silently break a resource type.
func (c Conventions) Validate() error {
	if err := ValidateEnv(c.Env); err != nil {
		return err
	}
	if err := ValidateBucketName(c.TrailBucketName); err != nil {
		return err
	}
	if want := BucketARN(c.TrailBucketName); c.TrailBucketARN != want {
		return fmt.Errorf("trail bucket ARN %q does not match bucket name (want %q)", c.TrailBucketARN, want)
	}
	for _, queue := range []string{c.CloudTrailQueueName, c.CloudTrailDLQName, c.InspectionsQueueName} {
		if err := ValidateQueueName(queue); err != nil {
			return err
		}
	}
	if err := ValidateRoleName(c.InstanceRoleName); err != nil {
		return err
	}
	if err := ValidateClusterName(c.ClusterName); err != nil {
		return err
	}
	if len(c.SecurityGroupName) == 0 || len(c.SecurityGroupName) > maxSecurityGroupLen {
		return fmt.Errorf("invalid security group name %q", c.SecurityGroupName)
	}
	if !launchTemplatePattern.MatchString(c.LaunchTemplateName) || len(c.LaunchTemplateName) > 128 {
		return fmt.Errorf("invalid launch template name %q", c.LaunchTemplateName)
	}
	return nil
}

// ValidateBucketName checks the S3 bucket naming rules: 3-63 characters,
// lowercase letters, digits, dots and hyphens, dot-separated labels starting
// and ending with a letter or digit, and not formatted like an IP address.
func ValidateBucketName(name string) error {
	if len(name) < minBucketNameLen || len(name) > maxBucketNameLen {
		return fmt.Errorf("bucket name %q must be %d-%d characters", name, minBucketNameLen, maxBucketNameLen)
	}
	if name != strings.ToLower(name) {
		return fmt.Errorf("bucket name %q must be lowercase", name)
	}
	for _, label := range strings.Split(name, ".") {
		if !bucketLabelPattern.MatchString(label) {
			return fmt.Errorf("bucket name %q has invalid label %q", name, label)
		}
	}
	if ip := net.ParseIP(name); ip != nil {
		return fmt.Errorf("bucket name %q must not be an IP address", name)
	}
	return nil
}

// ValidateQueueName checks the SQS queue naming rules: up to 80 characters of
// letters, digits, hyphens, and underscores.
func ValidateQueueName(name string) error {
	if name == "" || len(name) > maxQueueNameLen {
		return fmt.Errorf("queue name %q must be 1-%d characters", name, maxQueueNameLen)
	}
	if !queueNamePattern.MatchString(name) {
		return fmt.Errorf("queue name %q contains invalid characters", name)
	}
	return nil
}

// ValidateRoleName checks the IAM role naming rules: up to 64 characters of
// letters, digits, and +=,.@_- symbols.
func ValidateRoleName(name string) error {
	if name == "" || len(name) > maxIAMRoleNameLen {
		return fmt.Errorf("role name %q must be 1-%d characters", name, maxIAMRoleNameLen)
	}
	if !iamRoleNamePattern.MatchString(name) {
		return fmt.Errorf("role name %q contains invalid characters", name)
	}
	return nil
}

// ValidateClusterName checks the ECS cluster naming rules: up to 255
// characters of letters, digits, hyphens, and underscores.
func ValidateClusterName(name string) error {
	if name == "" || len(name) > maxClusterNameLen {
		return fmt.Errorf("cluster name %q must be 1-%d characters", name, maxClusterNameLen)
	}
	if !clusterNamePattern.MatchString(name) {
		return fmt.Errorf("cluster name %q contains invalid characters", name)
	}
	return nil
}
