package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	created map[string]map[string]string
	deleted []string
	arns    map[string]string
	policies map[string]string
}

func newFakeSQS() *fakeSQS {
	return &fakeSQS{
		created:  map[string]map[string]string{},
		arns:     map[string]string{},
		policies: map[string]string{},
	}
}

func (f *fakeSQS) urlFor(name string) string {
	return "https://sqs.us-east-1.amazonaws.com/123456789012/" + name
}

func (f *fakeSQS) CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	name := aws.ToString(params.QueueName)
	f.created[name] = params.Attributes
	f.arns[f.urlFor(name)] = "arn:aws:sqs:us-east-1:123456789012:" + name
	return &sqs.CreateQueueOutput{QueueUrl: aws.String(f.urlFor(name))}, nil
}

func (f *fakeSQS) DeleteQueue(ctx context.Context, params *sqs.DeleteQueueInput, optFns ...func(*sqs.Options)) (*sqs.DeleteQueueOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.QueueUrl))
	return &sqs.DeleteQueueOutput{}, nil
}

func (f *fakeSQS) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	name := aws.ToString(params.QueueName)
	if _, ok := f.created[name]; !ok {
		return nil, &types.QueueDoesNotExist{}
	}
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String(f.urlFor(name))}, nil
}

func (f *fakeSQS) GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	return &sqs.GetQueueAttributesOutput{
		Attributes: map[string]string{
			string(types.QueueAttributeNameQueueArn): f.arns[aws.ToString(params.QueueUrl)],
		},
	}, nil
}

func (f *fakeSQS) SetQueueAttributes(ctx context.Context, params *sqs.SetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error) {
	f.policies[aws.ToString(params.QueueUrl)] = params.Attributes[string(types.QueueAttributeNamePolicy)]
	return &sqs.SetQueueAttributesOutput{}, nil
}

func TestEnsureQueueWithDLQ(t *testing.T) {
	fake := newFakeSQS()
	service := NewSQSServiceWithClient(fake)

	main, dlq, err := service.EnsureQueueWithDLQ(
		context.Background(),
		"stage-cloudigrade-cloudtrail-s3",
		"stage-cloudigrade-cloudtrail-s3-dlq",
	)
	require.NoError(t, err)

	assert.Equal(t, "arn:aws:sqs:us-east-1:123456789012:stage-cloudigrade-cloudtrail-s3", main.ARN)
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123456789012/stage-cloudigrade-cloudtrail-s3", main.URL)
	assert.Equal(t, "arn:aws:sqs:us-east-1:123456789012:stage-cloudigrade-cloudtrail-s3-dlq", dlq.ARN)

	// Main queue must carry a redrive policy pointing at the DLQ
	attrs := fake.created["stage-cloudigrade-cloudtrail-s3"]
	require.Contains(t, attrs, string(types.QueueAttributeNameRedrivePolicy))

	var redrive map[string]string
	require.NoError(t, json.Unmarshal([]byte(attrs[string(types.QueueAttributeNameRedrivePolicy)]), &redrive))
	assert.Equal(t, dlq.ARN, redrive["deadLetterTargetArn"])
	assert.Equal(t, "5", redrive["maxReceiveCount"])
}

func TestAllowS3Notifications(t *testing.T) {
	fake := newFakeSQS()
	service := NewSQSServiceWithClient(fake)

	queue, err := service.EnsureQueue(context.Background(), "stage-cloudigrade-cloudtrail-s3", nil)
	require.NoError(t, err)

	err = service.AllowS3Notifications(context.Background(), queue, "arn:aws:s3:::stage-cloudigrade-trails")
	require.NoError(t, err)

	policy := fake.policies[queue.URL]
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(policy), &doc))
	assert.Contains(t, policy, queue.ARN)
	assert.Contains(t, policy, "arn:aws:s3:::stage-cloudigrade-trails")
	assert.Contains(t, policy, "s3.amazonaws.com")
}

func TestDeleteQueueMissing(t *testing.T) {
	service := NewSQSServiceWithClient(newFakeSQS())

	// Deleting a queue that never existed is fine
	err := service.DeleteQueue(context.Background(), "stage-cloudigrade-inspections")
	assert.NoError(t, err)
}

func TestDeleteQueue(t *testing.T) {
	fake := newFakeSQS()
	service := NewSQSServiceWithClient(fake)

	_, err := service.EnsureQueue(context.Background(), "stage-cloudigrade-inspections", nil)
	require.NoError(t, err)

	err = service.DeleteQueue(context.Background(), "stage-cloudigrade-inspections")
	require.NoError(t, err)
	assert.Len(t, fake.deleted, 1)
}
