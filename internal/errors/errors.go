package errors

import "errors"

var (
	ErrEnvironmentRequired = errors.New("CLOUDIGRADE_ENVIRONMENT environment variable is required")
	ErrAMINotFound         = errors.New("no recommended AMI found for region")
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrQueueNotFound       = errors.New("queue not found")
	ErrClusterNotFound     = errors.New("cluster not found")
	ErrRoleNotFound        = errors.New("role not found")
	ErrEnvironmentLocked   = errors.New("another run holds the environment lock")
)
