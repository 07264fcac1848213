package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// maxReceiveCount is how many delivery attempts a CloudTrail message gets
// before it lands on the dead-letter queue.
const maxReceiveCount = 5

// SQSAPI is the slice of the SQS client used by the service.
type SQSAPI interface {
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	DeleteQueue(ctx context.Context, params *sqs.DeleteQueueInput, optFns ...func(*sqs.Options)) (*sqs.DeleteQueueOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	SetQueueAttributes(ctx context.Context, params *sqs.SetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error)
}

// Queue identifies a provisioned queue.
type Queue struct {
	Name string
	URL  string
	ARN  string
}

type SQSService struct {
	client SQSAPI
}

func NewSQSService(cfg aws.Config) *SQSService {
	return &SQSService{client: sqs.NewFromConfig(cfg)}
}

// NewSQSServiceWithClient creates an SQSService with a custom client. This is
// useful for testing.
func NewSQSServiceWithClient(client SQSAPI) *SQSService {
	return &SQSService{client: client}
}

// RedrivePolicy returns the redrive policy JSON pointing at the given DLQ.
func RedrivePolicy(dlqARN string) string {
	policy, _ := json.Marshal(map[string]string{
		"deadLetterTargetArn": dlqARN,
		"maxReceiveCount":     fmt.Sprintf("%d", maxReceiveCount),
	})
	return string(policy)
}

// S3SendPolicy returns the queue policy that lets S3 deliver bucket
// notifications from the given bucket.
func S3SendPolicy(queueARN, bucketARN string) string {
	return fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Sid": "AllowS3Notifications",
      "Effect": "Allow",
      "Principal": {"Service": "s3.amazonaws.com"},
      "Action": "sqs:SendMessage",
      "Resource": "%s",
      "Condition": {
        "ArnLike": {"aws:SourceArn": "%s"}
      }
    }
  ]
}`, queueARN, bucketARN)
}

// EnsureQueue creates the queue if needed and returns its URL and ARN.
// CreateQueue is idempotent when attributes match.
func (s *SQSService) EnsureQueue(ctx context.Context, name string, attributes map[string]string) (Queue, error) {
	result, err := s.client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName:  aws.String(name),
		Attributes: attributes,
	})
	if err != nil {
		var nameExists *types.QueueNameExists
		if !errors.As(err, &nameExists) {
			return Queue{}, fmt.Errorf("failed to create queue %s: %w", name, err)
		}
		urlResult, err := s.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
			QueueName: aws.String(name),
		})
		if err != nil {
			return Queue{}, fmt.Errorf("failed to get queue url for %s: %w", name, err)
		}
		result = &sqs.CreateQueueOutput{QueueUrl: urlResult.QueueUrl}
	}

	url := aws.ToString(result.QueueUrl)
	arn, err := s.queueARN(ctx, url)
	if err != nil {
		return Queue{}, err
	}

	return Queue{Name: name, URL: url, ARN: arn}, nil
}

// EnsureQueueWithDLQ creates a dead-letter queue and a main queue wired to
// it, returning both.
func (s *SQSService) EnsureQueueWithDLQ(ctx context.Context, name, dlqName string) (main Queue, dlq Queue, err error) {
	dlq, err = s.EnsureQueue(ctx, dlqName, nil)
	if err != nil {
		return Queue{}, Queue{}, err
	}

	main, err = s.EnsureQueue(ctx, name, map[string]string{
		string(types.QueueAttributeNameRedrivePolicy): RedrivePolicy(dlq.ARN),
	})
	if err != nil {
		return Queue{}, Queue{}, err
	}

	return main, dlq, nil
}

// AllowS3Notifications attaches the S3 send policy to the queue.
func (s *SQSService) AllowS3Notifications(ctx context.Context, queue Queue, bucketARN string) error {
	_, err := s.client.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
		QueueUrl: aws.String(queue.URL),
		Attributes: map[string]string{
			string(types.QueueAttributeNamePolicy): S3SendPolicy(queue.ARN, bucketARN),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to set policy on queue %s: %w", queue.Name, err)
	}
	return nil
}

// DeleteQueue removes the named queue. A missing queue is not an error.
func (s *SQSService) DeleteQueue(ctx context.Context, name string) error {
	urlResult, err := s.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		var notFound *types.QueueDoesNotExist
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to get queue url for %s: %w", name, err)
	}

	_, err = s.client.DeleteQueue(ctx, &sqs.DeleteQueueInput{
		QueueUrl: urlResult.QueueUrl,
	})
	if err != nil {
		return fmt.Errorf("failed to delete queue %s: %w", name, err)
	}
	return nil
}

func (s *SQSService) queueARN(ctx context.Context, url string) (string, error) {
	result, err := s.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(url),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get attributes for queue %s: %w", url, err)
	}
	arn, ok := result.Attributes[string(types.QueueAttributeNameQueueArn)]
	if !ok {
		return "", fmt.Errorf("queue %s has no ARN attribute", url)
	}
	return arn, nil
}
