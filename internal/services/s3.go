package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/cloudigrade/deployer/internal/naming"
)

// S3API is the slice of the S3 client used by the service.
type S3API interface {
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
	PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
	PutBucketNotificationConfiguration(ctx context.Context, params *s3.PutBucketNotificationConfigurationInput, optFns ...func(*s3.Options)) (*s3.PutBucketNotificationConfigurationOutput, error)
}

type S3Service struct {
	client S3API
	region string
}

func NewS3Service(cfg aws.Config) *S3Service {
	return &S3Service{client: s3.NewFromConfig(cfg), region: cfg.Region}
}

// NewS3ServiceWithClient creates an S3Service with a custom client. This is
// useful for testing.
func NewS3ServiceWithClient(client S3API, region string) *S3Service {
	return &S3Service{client: client, region: region}
}

// TrailBucketPolicy returns the bucket policy that lets CloudTrail deliver
// logs into the trail bucket.
func TrailBucketPolicy(bucket string) string {
	arn := naming.BucketARN(bucket)
	return fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Sid": "AWSCloudTrailAclCheck",
      "Effect": "Allow",
      "Principal": {"Service": "cloudtrail.amazonaws.com"},
      "Action": "s3:GetBucketAcl",
      "Resource": "%s"
    },
    {
      "Sid": "AWSCloudTrailWrite",
      "Effect": "Allow",
      "Principal": {"Service": "cloudtrail.amazonaws.com"},
      "Action": "s3:PutObject",
      "Resource": "%s/AWSLogs/*",
      "Condition": {
        "StringEquals": {"s3:x-amz-acl": "bucket-owner-full-control"}
      }
    }
  ]
}`, arn, arn)
}

// EnsureTrailBucket creates the CloudTrail delivery bucket and attaches the
// CloudTrail write policy. A bucket already owned by this account is fine.
func (s *S3Service) EnsureTrailBucket(ctx context.Context, bucket string) error {
	if err := naming.ValidateBucketName(bucket); err != nil {
		return err
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}
	// us-east-1 is the default location and must not be sent as a constraint
	if s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}

	_, err := s.client.CreateBucket(ctx, input)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if !errors.As(err, &owned) {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}

	_, err = s.client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(bucket),
		Policy: aws.String(TrailBucketPolicy(bucket)),
	})
	if err != nil {
		return fmt.Errorf("failed to put policy on bucket %s: %w", bucket, err)
	}

	return nil
}

// ConnectBucketToQueue wires object-created notifications from the trail
// bucket to the CloudTrail queue.
func (s *S3Service) ConnectBucketToQueue(ctx context.Context, bucket, queueARN string) error {
	_, err := s.client.PutBucketNotificationConfiguration(ctx, &s3.PutBucketNotificationConfigurationInput{
		Bucket: aws.String(bucket),
		NotificationConfiguration: &types.NotificationConfiguration{
			QueueConfigurations: []types.QueueConfiguration{
				{
					QueueArn: aws.String(queueARN),
					Events:   []types.Event{types.EventS3ObjectCreated},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to configure notifications on bucket %s: %w", bucket, err)
	}
	return nil
}

// DeleteTrailBucket removes the bucket. A missing bucket is not an error;
// a non-empty bucket is, and is left for the operator to resolve.
func (s *S3Service) DeleteTrailBucket(ctx context.Context, bucket string) error {
	_, err := s.client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket" {
			return nil
		}
		return fmt.Errorf("failed to delete bucket %s: %w", bucket, err)
	}
	return nil
}
