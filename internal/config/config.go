// Package config loads deployer settings from the process environment.
// CLOUDIGRADE_ENVIRONMENT is required and has no default: a deployer that
// does not know its environment must not touch AWS.
package config

import (
	"fmt"
	"os"

	apperrors "github.com/cloudigrade/deployer/internal/errors"
	"github.com/cloudigrade/deployer/internal/naming"
)

const defaultRegion = "us-east-1"

// Config holds the deployer's runtime settings.
type Config struct {
	// Env is the deployment environment (CLOUDIGRADE_ENVIRONMENT). Required.
	Env string
	// Region is the AWS region resources live in.
	Region string
	// AccountID optionally pins the AWS account; discovered via STS when empty.
	AccountID string
	// DynaconfEnvName selects the IQE settings environment for smoke tests.
	// Defaults to Env.
	DynaconfEnvName string
	// States carries the desired state of each resource group.
	States naming.GroupStates
	// RunTableName is the DynamoDB table recording provisioning runs.
	RunTableName string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	env := os.Getenv("CLOUDIGRADE_ENVIRONMENT")
	if env == "" {
		return nil, apperrors.ErrEnvironmentRequired
	}
	if err := naming.ValidateEnv(env); err != nil {
		return nil, err
	}

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = defaultRegion
	}

	states, err := loadStates()
	if err != nil {
		return nil, err
	}

	dynaconfEnv := os.Getenv("IQE_DYNACONF_ENV_NAME")
	if dynaconfEnv == "" {
		dynaconfEnv = env
	}

	tableName := os.Getenv("RUN_TABLE_NAME")
	if tableName == "" {
		tableName = fmt.Sprintf("%s-cloudigrade-deployer-runs", env)
	}

	return &Config{
		Env:             env,
		Region:          region,
		AccountID:       os.Getenv("AWS_ACCOUNT_ID"),
		DynaconfEnvName: dynaconfEnv,
		States:          states,
		RunTableName:    tableName,
	}, nil
}

func loadStates() (naming.GroupStates, error) {
	states := naming.DefaultGroupStates()

	for _, entry := range []struct {
		key   string
		state *naming.State
	}{
		{key: "ECS_STATE", state: &states.ECS},
		{key: "EC2_STATE", state: &states.EC2},
		{key: "S3_STATE", state: &states.S3},
	} {
		parsed, err := naming.ParseState(os.Getenv(entry.key))
		if err != nil {
			return naming.GroupStates{}, fmt.Errorf("%s: %w", entry.key, err)
		}
		*entry.state = parsed
	}

	return states, nil
}

// Conventions returns the resource names for the configured environment.
func (c *Config) Conventions() naming.Conventions {
	return naming.ForEnv(c.Env)
}
