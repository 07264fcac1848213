package services

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIAM struct {
	roles    map[string]string // role name -> ARN
	attached []string
	detached []string
	profiles map[string]bool
	calls    []string
}

func newFakeIAM() *fakeIAM {
	return &fakeIAM{
		roles:    map[string]string{},
		profiles: map[string]bool{},
	}
}

func (f *fakeIAM) GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	f.calls = append(f.calls, "GetRole")
	name := aws.ToString(params.RoleName)
	arn, ok := f.roles[name]
	if !ok {
		return nil, &types.NoSuchEntityException{}
	}
	return &iam.GetRoleOutput{Role: &types.Role{Arn: aws.String(arn), RoleName: params.RoleName}}, nil
}

func (f *fakeIAM) CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	f.calls = append(f.calls, "CreateRole")
	name := aws.ToString(params.RoleName)
	arn := "arn:aws:iam::123456789012:role/" + name
	f.roles[name] = arn
	return &iam.CreateRoleOutput{Role: &types.Role{Arn: aws.String(arn), RoleName: params.RoleName}}, nil
}

func (f *fakeIAM) DeleteRole(ctx context.Context, params *iam.DeleteRoleInput, optFns ...func(*iam.Options)) (*iam.DeleteRoleOutput, error) {
	f.calls = append(f.calls, "DeleteRole")
	name := aws.ToString(params.RoleName)
	if _, ok := f.roles[name]; !ok {
		return nil, &types.NoSuchEntityException{}
	}
	delete(f.roles, name)
	return &iam.DeleteRoleOutput{}, nil
}

func (f *fakeIAM) AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	f.calls = append(f.calls, "AttachRolePolicy")
	f.attached = append(f.attached, aws.ToString(params.PolicyArn))
	return &iam.AttachRolePolicyOutput{}, nil
}

func (f *fakeIAM) DetachRolePolicy(ctx context.Context, params *iam.DetachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error) {
	f.calls = append(f.calls, "DetachRolePolicy")
	f.detached = append(f.detached, aws.ToString(params.PolicyArn))
	return &iam.DetachRolePolicyOutput{}, nil
}

func (f *fakeIAM) CreateInstanceProfile(ctx context.Context, params *iam.CreateInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.CreateInstanceProfileOutput, error) {
	f.calls = append(f.calls, "CreateInstanceProfile")
	name := aws.ToString(params.InstanceProfileName)
	if f.profiles[name] {
		return nil, &types.EntityAlreadyExistsException{}
	}
	f.profiles[name] = true
	return &iam.CreateInstanceProfileOutput{}, nil
}

func (f *fakeIAM) DeleteInstanceProfile(ctx context.Context, params *iam.DeleteInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.DeleteInstanceProfileOutput, error) {
	f.calls = append(f.calls, "DeleteInstanceProfile")
	name := aws.ToString(params.InstanceProfileName)
	if !f.profiles[name] {
		return nil, &types.NoSuchEntityException{}
	}
	delete(f.profiles, name)
	return &iam.DeleteInstanceProfileOutput{}, nil
}

func (f *fakeIAM) AddRoleToInstanceProfile(ctx context.Context, params *iam.AddRoleToInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.AddRoleToInstanceProfileOutput, error) {
	f.calls = append(f.calls, "AddRoleToInstanceProfile")
	return &iam.AddRoleToInstanceProfileOutput{}, nil
}

func (f *fakeIAM) RemoveRoleFromInstanceProfile(ctx context.Context, params *iam.RemoveRoleFromInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.RemoveRoleFromInstanceProfileOutput, error) {
	f.calls = append(f.calls, "RemoveRoleFromInstanceProfile")
	return &iam.RemoveRoleFromInstanceProfileOutput{}, nil
}

func TestIAMService_EnsureInstanceRole(t *testing.T) {
	ctx := context.Background()

	t.Run("creates role and profile", func(t *testing.T) {
		client := newFakeIAM()
		svc := NewIAMServiceWithClient(client)

		arn, err := svc.EnsureInstanceRole(ctx, "cloudigrade-ecs-instance-stage")
		require.NoError(t, err)
		assert.Equal(t, "arn:aws:iam::123456789012:role/cloudigrade-ecs-instance-stage", arn)
		assert.Contains(t, client.attached, ECSInstancePolicyARN)
		assert.True(t, client.profiles["cloudigrade-ecs-instance-stage"])
	})

	t.Run("idempotent when role exists", func(t *testing.T) {
		client := newFakeIAM()
		svc := NewIAMServiceWithClient(client)

		first, err := svc.EnsureInstanceRole(ctx, "cloudigrade-ecs-instance-stage")
		require.NoError(t, err)

		second, err := svc.EnsureInstanceRole(ctx, "cloudigrade-ecs-instance-stage")
		require.NoError(t, err)
		assert.Equal(t, first, second)

		// role created exactly once
		created := 0
		for _, call := range client.calls {
			if call == "CreateRole" {
				created++
			}
		}
		assert.Equal(t, 1, created)
	})
}

func TestIAMService_DeleteInstanceRole(t *testing.T) {
	ctx := context.Background()

	t.Run("removes role and profile", func(t *testing.T) {
		client := newFakeIAM()
		svc := NewIAMServiceWithClient(client)

		_, err := svc.EnsureInstanceRole(ctx, "cloudigrade-ecs-instance-qa")
		require.NoError(t, err)

		err = svc.DeleteInstanceRole(ctx, "cloudigrade-ecs-instance-qa")
		require.NoError(t, err)
		assert.Empty(t, client.roles)
		assert.Empty(t, client.profiles)
		assert.Contains(t, client.detached, ECSInstancePolicyARN)
	})

	t.Run("tolerates missing entities", func(t *testing.T) {
		client := newFakeIAM()
		svc := NewIAMServiceWithClient(client)

		err := svc.DeleteInstanceRole(ctx, "cloudigrade-ecs-instance-qa")
		assert.NoError(t, err)
	})
}
