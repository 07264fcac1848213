package services

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEC2 simulates the dry-run behavior of the EC2 API: every call fails
// with DryRunOperation for allowed actions and UnauthorizedOperation for
// denied ones.
type fakeEC2 struct {
	denied     map[string]bool
	duplicate  bool
	sgID       string
	regions    []string
	instances  map[string][]types.Instance
	nextRegion string
}

func (f *fakeEC2) dryRunErr(action string) error {
	if f.denied[action] {
		return &smithy.GenericAPIError{Code: "UnauthorizedOperation"}
	}
	return &smithy.GenericAPIError{Code: "DryRunOperation"}
}

func (f *fakeEC2) DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	var regions []types.Region
	for _, name := range f.regions {
		regions = append(regions, types.Region{RegionName: aws.String(name)})
	}
	return &ec2.DescribeRegionsOutput{Regions: regions}, nil
}

func (f *fakeEC2) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if aws.ToBool(params.DryRun) {
		return nil, f.dryRunErr("ec2:DescribeInstances")
	}
	// Serve the region whose client was requested most recently
	instances := f.instances[f.nextRegion]
	f.nextRegion = ""
	return &ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{{Instances: instances}},
	}, nil
}

func (f *fakeEC2) DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	return nil, f.dryRunErr("ec2:DescribeImages")
}

func (f *fakeEC2) DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error) {
	return nil, f.dryRunErr("ec2:DescribeSnapshots")
}

func (f *fakeEC2) DescribeSnapshotAttribute(ctx context.Context, params *ec2.DescribeSnapshotAttributeInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotAttributeOutput, error) {
	return nil, f.dryRunErr("ec2:DescribeSnapshotAttribute")
}

func (f *fakeEC2) ModifySnapshotAttribute(ctx context.Context, params *ec2.ModifySnapshotAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifySnapshotAttributeOutput, error) {
	return nil, f.dryRunErr("ec2:ModifySnapshotAttribute")
}

func (f *fakeEC2) ModifyImageAttribute(ctx context.Context, params *ec2.ModifyImageAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyImageAttributeOutput, error) {
	return nil, f.dryRunErr("ec2:ModifyImageAttribute")
}

func (f *fakeEC2) CreateSecurityGroup(ctx context.Context, params *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	if f.duplicate {
		return nil, &smithy.GenericAPIError{Code: "InvalidGroup.Duplicate"}
	}
	return &ec2.CreateSecurityGroupOutput{GroupId: aws.String(f.sgID)}, nil
}

func (f *fakeEC2) DeleteSecurityGroup(ctx context.Context, params *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error) {
	return &ec2.DeleteSecurityGroupOutput{}, nil
}

func (f *fakeEC2) DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	return &ec2.DescribeSecurityGroupsOutput{
		SecurityGroups: []types.SecurityGroup{{GroupId: aws.String(f.sgID)}},
	}, nil
}

func TestVerifyInspectionAccess(t *testing.T) {
	service := NewEC2ServiceWithClient(&fakeEC2{})

	ok, err := service.VerifyInspectionAccess(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyInspectionAccessDenied(t *testing.T) {
	// One denied action fails the verification, but the loop keeps going so
	// every gap is surfaced.
	service := NewEC2ServiceWithClient(&fakeEC2{
		denied: map[string]bool{"ec2:ModifySnapshotAttribute": true},
	})

	ok, err := service.VerifyInspectionAccess(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureSecurityGroup(t *testing.T) {
	service := NewEC2ServiceWithClient(&fakeEC2{sgID: "sg-0123456789abcdef0"})

	id, err := service.EnsureSecurityGroup(context.Background(), "cloudigrade-ecs-sg-stage")
	require.NoError(t, err)
	assert.Equal(t, "sg-0123456789abcdef0", id)
}

func TestEnsureSecurityGroupDuplicate(t *testing.T) {
	service := NewEC2ServiceWithClient(&fakeEC2{sgID: "sg-0123456789abcdef0", duplicate: true})

	id, err := service.EnsureSecurityGroup(context.Background(), "cloudigrade-ecs-sg-stage")
	require.NoError(t, err)
	assert.Equal(t, "sg-0123456789abcdef0", id)
}

func TestIsRunning(t *testing.T) {
	assert.True(t, IsRunning(InstanceStateRunning))
	for _, code := range []int32{InstanceStatePending, InstanceStateShuttingDown, InstanceStateTerminated, InstanceStateStopping, InstanceStateStopped} {
		assert.False(t, IsRunning(code))
	}
}

func TestRunningInstances(t *testing.T) {
	running := types.Instance{
		InstanceId: aws.String("i-running"),
		State:      &types.InstanceState{Code: aws.Int32(InstanceStateRunning)},
	}
	stopped := types.Instance{
		InstanceId: aws.String("i-stopped"),
		State:      &types.InstanceState{Code: aws.Int32(InstanceStateStopped)},
	}

	fake := &fakeEC2{
		regions: []string{"us-east-1"},
		instances: map[string][]types.Instance{
			"us-east-1": {running, stopped},
		},
		nextRegion: "us-east-1",
	}
	service := NewEC2ServiceWithClient(fake)

	result, err := service.RunningInstances(context.Background())
	require.NoError(t, err)
	require.Len(t, result["us-east-1"], 1)
	assert.Equal(t, "i-running", aws.ToString(result["us-east-1"][0].InstanceId))
}
