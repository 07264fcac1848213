package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/cloudigrade/deployer/internal/naming"
)

// STSAPI is the slice of the STS client used by the service.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

type STSService struct {
	client STSAPI
}

func NewSTSService(cfg aws.Config) *STSService {
	return &STSService{client: sts.NewFromConfig(cfg)}
}

// NewSTSServiceWithClient creates an STSService with a custom client. This is
// useful for testing.
func NewSTSServiceWithClient(client STSAPI) *STSService {
	return &STSService{client: client}
}

// AccountID returns the account ID of the current caller.
func (s *STSService) AccountID(ctx context.Context) (string, error) {
	result, err := s.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}
	if result.Account == nil {
		return "", fmt.Errorf("account ID is nil")
	}
	return *result.Account, nil
}

// AssumeCustomerRole assumes a customer-account role for inspection. The
// session is scoped down to the inspection policy and named after the
// customer account so CloudTrail on their side attributes the access.
func (s *STSService) AssumeCustomerRole(ctx context.Context, roleARN string) (aws.Credentials, error) {
	accountID, err := naming.ExtractAccountID(roleARN)
	if err != nil {
		return aws.Credentials{}, err
	}

	result, err := s.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(fmt.Sprintf("cloudigrade-%s", accountID)),
		Policy:          aws.String(InspectionPolicy),
	})
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("failed to assume role %s: %w", roleARN, err)
	}
	if result.Credentials == nil {
		return aws.Credentials{}, fmt.Errorf("assume role %s returned no credentials", roleARN)
	}

	creds := result.Credentials
	return aws.Credentials{
		AccessKeyID:     aws.ToString(creds.AccessKeyId),
		SecretAccessKey: aws.ToString(creds.SecretAccessKey),
		SessionToken:    aws.ToString(creds.SessionToken),
		CanExpire:       true,
		Expires:         aws.ToTime(creds.Expiration),
	}, nil
}
