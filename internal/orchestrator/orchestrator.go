// Package orchestrator drives provisioning and teardown of the cloudigrade
// AWS footprint. Resource groups are applied in dependency order and every
// run is recorded in DynamoDB so operators can audit what changed and when.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/cloudigrade/deployer/internal/dao/lockdao"
	"github.com/cloudigrade/deployer/internal/dao/rundao"
	apperrors "github.com/cloudigrade/deployer/internal/errors"
	"github.com/cloudigrade/deployer/internal/naming"
	"github.com/cloudigrade/deployer/internal/services"
)

// InstanceRoles manages the IAM role and instance profile for cluster hosts.
type InstanceRoles interface {
	EnsureInstanceRole(ctx context.Context, roleName string) (string, error)
	DeleteInstanceRole(ctx context.Context, roleName string) error
}

// SecurityGroups manages the security group for cluster hosts.
type SecurityGroups interface {
	EnsureSecurityGroup(ctx context.Context, name string) (string, error)
	DeleteSecurityGroup(ctx context.Context, name string) error
}

// Clusters manages the ECS inspection cluster.
type Clusters interface {
	EnsureCluster(ctx context.Context, name string) (string, error)
	DeleteCluster(ctx context.Context, name string) error
}

// Capacity manages the launch template and autoscaling group.
type Capacity interface {
	EnsureLaunchTemplate(ctx context.Context, input services.LaunchTemplateInput) error
	DeleteLaunchTemplate(ctx context.Context, name string) error
	EnsureGroup(ctx context.Context, input services.GroupInput) error
	DeleteGroup(ctx context.Context, name string) error
}

// Buckets manages the CloudTrail S3 bucket.
type Buckets interface {
	EnsureTrailBucket(ctx context.Context, bucket string) error
	ConnectBucketToQueue(ctx context.Context, bucket, queueARN string) error
	DeleteTrailBucket(ctx context.Context, bucket string) error
}

// Queues manages the SQS queues cloudigrade consumes.
type Queues interface {
	EnsureQueue(ctx context.Context, name string, attributes map[string]string) (services.Queue, error)
	EnsureQueueWithDLQ(ctx context.Context, name, dlqName string) (services.Queue, services.Queue, error)
	AllowS3Notifications(ctx context.Context, queue services.Queue, bucketARN string) error
	DeleteQueue(ctx context.Context, name string) error
}

// RunRecorder persists run records. Satisfied by rundao.DAO.
type RunRecorder interface {
	Create(ctx context.Context, input rundao.CreateInput) (rundao.Record, error)
	UpdateStatus(ctx context.Context, input rundao.UpdateInput) error
}

// Locker serializes runs per environment. Satisfied by lockdao.DAO.
type Locker interface {
	Acquire(ctx context.Context, input lockdao.AcquireInput) (*lockdao.Record, bool, error)
	Release(ctx context.Context, input lockdao.ReleaseInput) error
}

// Orchestrator applies the desired state of each resource group.
type Orchestrator struct {
	names    naming.Conventions
	roles    InstanceRoles
	groups   SecurityGroups
	clusters Clusters
	capacity Capacity
	buckets  Buckets
	queues   Queues
	ami      services.AMIResolver
	runs     RunRecorder
	locks    Locker
}

// New creates a new Orchestrator instance
func New(
	names naming.Conventions,
	roles InstanceRoles,
	groups SecurityGroups,
	clusters Clusters,
	capacity Capacity,
	buckets Buckets,
	queues Queues,
	ami services.AMIResolver,
	runs RunRecorder,
	locks Locker,
) *Orchestrator {
	return &Orchestrator{
		names:    names,
		roles:    roles,
		groups:   groups,
		clusters: clusters,
		capacity: capacity,
		buckets:  buckets,
		queues:   queues,
		ami:      ami,
		runs:     runs,
		locks:    locks,
	}
}

// Apply converges each resource group toward the requested state and records
// the run. Groups marked absent are torn down; groups marked present are
// created or updated idempotently.
func (o *Orchestrator) Apply(ctx context.Context, states naming.GroupStates) (rundao.Record, error) {
	return o.run(ctx, rundao.OperationProvision, states)
}

// Teardown removes every resource group in reverse dependency order.
func (o *Orchestrator) Teardown(ctx context.Context) (rundao.Record, error) {
	states := naming.GroupStates{
		ECS: naming.StateAbsent,
		EC2: naming.StateAbsent,
		S3:  naming.StateAbsent,
	}
	return o.run(ctx, rundao.OperationTeardown, states)
}

func (o *Orchestrator) run(ctx context.Context, op rundao.Operation, states naming.GroupStates) (rundao.Record, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("env", o.names.Env).
		Str("operation", string(op)).
		Logger()
	ctx = logger.WithContext(ctx)

	record, err := o.runs.Create(ctx, rundao.CreateInput{
		Env:       o.names.Env,
		SK:        ksuid.New().String(),
		Operation: op,
		States:    states,
	})
	if err != nil {
		return rundao.Record{}, fmt.Errorf("failed to record run: %w", err)
	}

	logger.Info().
		Str("run_id", record.GetID().String()).
		Str("ecs_state", states.ECS.String()).
		Str("ec2_state", states.EC2.String()).
		Str("s3_state", states.S3.String()).
		Msg("starting run")

	_, acquired, err := o.locks.Acquire(ctx, lockdao.AcquireInput{
		Env:       o.names.Env,
		RunID:     record.SK,
		Operation: string(op),
	})
	if err != nil {
		return record, fmt.Errorf("failed to acquire environment lock: %w", err)
	}
	if !acquired {
		status := rundao.RunStatusFailed
		msg := apperrors.ErrEnvironmentLocked.Error()
		if updateErr := o.runs.UpdateStatus(ctx, rundao.UpdateInput{
			PK:       record.PK,
			SK:       record.SK,
			Status:   &status,
			ErrorMsg: &msg,
		}); updateErr != nil {
			logger.Error().Err(updateErr).Msg("failed to record run failure")
		}
		return record, fmt.Errorf("%w: %s", apperrors.ErrEnvironmentLocked, o.names.Env)
	}
	defer func() {
		if releaseErr := o.locks.Release(ctx, lockdao.ReleaseInput{Env: o.names.Env, RunID: record.SK}); releaseErr != nil {
			logger.Error().Err(releaseErr).Msg("failed to release environment lock")
		}
	}()

	status := rundao.RunStatusInProgress
	if err := o.runs.UpdateStatus(ctx, rundao.UpdateInput{PK: record.PK, SK: record.SK, Status: &status}); err != nil {
		return record, fmt.Errorf("failed to update run status: %w", err)
	}

	if err := o.converge(ctx, states); err != nil {
		status = rundao.RunStatusFailed
		msg := err.Error()
		if updateErr := o.runs.UpdateStatus(ctx, rundao.UpdateInput{
			PK:       record.PK,
			SK:       record.SK,
			Status:   &status,
			ErrorMsg: &msg,
		}); updateErr != nil {
			logger.Error().Err(updateErr).Msg("failed to record run failure")
		}
		logger.Error().Err(err).Msg("run failed")
		return record, err
	}

	status = rundao.RunStatusSuccess
	if err := o.runs.UpdateStatus(ctx, rundao.UpdateInput{PK: record.PK, SK: record.SK, Status: &status}); err != nil {
		return record, fmt.Errorf("failed to update run status: %w", err)
	}

	logger.Info().Str("run_id", record.GetID().String()).Msg("run complete")
	return record, nil
}

func (o *Orchestrator) converge(ctx context.Context, states naming.GroupStates) error {
	// Storage stands up first so the cluster's workloads have queues to
	// consume from, and comes down last so in-flight trail events drain.
	if states.S3 == naming.StatePresent {
		if err := o.ensureStorage(ctx); err != nil {
			return err
		}
	}

	if states.ECS == naming.StatePresent {
		if err := o.ensureCluster(ctx); err != nil {
			return err
		}
	}

	// Capacity requires the cluster; an absent cluster implies absent capacity.
	if states.EC2 == naming.StatePresent && states.ECS == naming.StatePresent {
		if err := o.ensureCapacity(ctx); err != nil {
			return err
		}
	} else {
		if err := o.teardownCapacity(ctx); err != nil {
			return err
		}
	}

	if states.ECS == naming.StateAbsent {
		if err := o.teardownCluster(ctx); err != nil {
			return err
		}
	}

	if states.S3 == naming.StateAbsent {
		if err := o.teardownStorage(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (o *Orchestrator) ensureStorage(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	if err := o.buckets.EnsureTrailBucket(ctx, o.names.TrailBucketName); err != nil {
		return err
	}
	logger.Info().Str("bucket", o.names.TrailBucketName).Msg("trail bucket ready")

	queue, _, err := o.queues.EnsureQueueWithDLQ(ctx, o.names.CloudTrailQueueName, o.names.CloudTrailDLQName)
	if err != nil {
		return err
	}
	if err := o.queues.AllowS3Notifications(ctx, queue, o.names.TrailBucketARN); err != nil {
		return err
	}
	if err := o.buckets.ConnectBucketToQueue(ctx, o.names.TrailBucketName, queue.ARN); err != nil {
		return err
	}
	logger.Info().Str("queue", queue.Name).Msg("cloudtrail queue connected")

	if _, err := o.queues.EnsureQueue(ctx, o.names.InspectionsQueueName, nil); err != nil {
		return err
	}
	logger.Info().Str("queue", o.names.InspectionsQueueName).Msg("inspections queue ready")

	return nil
}

func (o *Orchestrator) teardownStorage(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	for _, name := range []string{
		o.names.InspectionsQueueName,
		o.names.CloudTrailQueueName,
		o.names.CloudTrailDLQName,
	} {
		if err := o.queues.DeleteQueue(ctx, name); err != nil {
			return err
		}
	}
	if err := o.buckets.DeleteTrailBucket(ctx, o.names.TrailBucketName); err != nil {
		return err
	}
	logger.Info().Msg("storage group removed")
	return nil
}

func (o *Orchestrator) ensureCluster(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	if _, err := o.roles.EnsureInstanceRole(ctx, o.names.InstanceRoleName); err != nil {
		return err
	}
	if _, err := o.groups.EnsureSecurityGroup(ctx, o.names.SecurityGroupName); err != nil {
		return err
	}
	arn, err := o.clusters.EnsureCluster(ctx, o.names.ClusterName)
	if err != nil {
		return err
	}
	logger.Info().Str("cluster_arn", arn).Msg("cluster ready")
	return nil
}

func (o *Orchestrator) teardownCluster(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	if err := o.clusters.DeleteCluster(ctx, o.names.ClusterName); err != nil {
		return err
	}
	if err := o.groups.DeleteSecurityGroup(ctx, o.names.SecurityGroupName); err != nil {
		return err
	}
	if err := o.roles.DeleteInstanceRole(ctx, o.names.InstanceRoleName); err != nil {
		return err
	}
	logger.Info().Msg("cluster group removed")
	return nil
}

func (o *Orchestrator) ensureCapacity(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	amiID, err := o.ami.RecommendedAMI(ctx)
	if err != nil {
		return err
	}
	logger.Info().Str("ami_id", amiID).Msg("resolved cluster AMI")

	// EnsureSecurityGroup is idempotent; this fetches the group ID for the
	// launch template even when the cluster group was converged separately.
	sgID, err := o.groups.EnsureSecurityGroup(ctx, o.names.SecurityGroupName)
	if err != nil {
		return err
	}

	if err := o.capacity.EnsureLaunchTemplate(ctx, services.LaunchTemplateInput{
		Name:            o.names.LaunchTemplateName,
		AMIID:           amiID,
		KeyPairName:     o.names.KeyPairName,
		InstanceProfile: o.names.InstanceProfileName,
		SecurityGroupID: sgID,
		ClusterName:     o.names.ClusterName,
	}); err != nil {
		return err
	}
	if err := o.capacity.EnsureGroup(ctx, services.GroupInput{
		Name:               o.names.AutoScalingGroupName,
		LaunchTemplateName: o.names.LaunchTemplateName,
	}); err != nil {
		return err
	}
	logger.Info().Str("group", o.names.AutoScalingGroupName).Msg("capacity ready")
	return nil
}

func (o *Orchestrator) teardownCapacity(ctx context.Context) error {
	if err := o.capacity.DeleteGroup(ctx, o.names.AutoScalingGroupName); err != nil {
		return err
	}
	return o.capacity.DeleteLaunchTemplate(ctx, o.names.LaunchTemplateName)
}
