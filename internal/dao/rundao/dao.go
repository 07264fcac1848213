// Package rundao records provisioning runs in DynamoDB so operators can see
// what the deployer last did to an environment and whether it finished.
package rundao

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"

	"github.com/cloudigrade/deployer/internal/naming"
)

// PK represents a DynamoDB partition key in format cloudigrade/{env}
type PK string

// NewPK creates a partition key for an environment
func NewPK(env string) PK {
	return PK(fmt.Sprintf("cloudigrade/%s", env))
}

// ParsePK parses a partition key into its environment component
func ParsePK(pk PK) (env string, err error) {
	parts := strings.Split(string(pk), "/")
	if len(parts) != 2 || parts[0] != "cloudigrade" {
		return "", fmt.Errorf("invalid PK format: %s, expected cloudigrade/{env}", pk)
	}
	return parts[1], nil
}

// String returns the string representation of the partition key
func (pk PK) String() string {
	return string(pk)
}

// ID represents a run ID in format cloudigrade/{env}:{ksuid}
type ID string

func (id ID) String() string {
	return string(id)
}

// NewID constructs an ID from partition key and sort key
func NewID(pk PK, sk string) ID {
	return ID(fmt.Sprintf("%s:%s", pk, sk))
}

// ParseID parses a run ID into its partition key and sort key components
func ParseID(id ID) (pk PK, sk string, err error) {
	parts := strings.Split(string(id), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid run ID format: %s, expected cloudigrade/{env}:{ksuid}", id)
	}
	return PK(parts[0]), parts[1], nil
}

// Operation is what a run was asked to do.
type Operation string

const (
	OperationProvision Operation = "PROVISION"
	OperationTeardown  Operation = "TEARDOWN"
)

// RunStatus represents the current status of a provisioning run
type RunStatus string

const (
	RunStatusPending    RunStatus = "PENDING"
	RunStatusInProgress RunStatus = "IN_PROGRESS"
	RunStatusSuccess    RunStatus = "SUCCESS"
	RunStatusFailed     RunStatus = "FAILED"
)

// Record represents a provisioning run in DynamoDB
type Record struct {
	PK         PK        `ddb:"hash" dynamodbav:"pk"`  // cloudigrade/{env}
	SK         string    `ddb:"range" dynamodbav:"sk"` // KSUID - sorts runs chronologically
	Env        string    `dynamodbav:"env,omitempty"`
	Operation  Operation `dynamodbav:"operation,omitempty"`
	Status     RunStatus `dynamodbav:"status,omitempty"`
	ECSState   string    `dynamodbav:"ecs_state,omitempty"`
	EC2State   string    `dynamodbav:"ec2_state,omitempty"`
	S3State    string    `dynamodbav:"s3_state,omitempty"`
	ErrorMsg   *string   `dynamodbav:"error_msg,omitempty"`
	CreatedAt  int64     `dynamodbav:"created_at,omitempty"`
	FinishedAt *int64    `dynamodbav:"finished_at,omitempty"`
	UpdatedAt  int64     `dynamodbav:"updated_at,omitempty"`
}

// GetID returns the full run ID in format: cloudigrade/{env}:{ksuid}
func (r *Record) GetID() ID {
	return NewID(r.PK, r.SK)
}

// CreateInput contains the fields needed to create a new run record
type CreateInput struct {
	Env       string
	SK        string // KSUID sort key
	Operation Operation
	States    naming.GroupStates
}

// UpdateInput contains the fields that can be updated on a run record
type UpdateInput struct {
	PK       PK
	SK       string
	Status   *RunStatus
	ErrorMsg *string
}

// TableName derives the runs table name from the environment
func TableName(env string) string {
	return fmt.Sprintf("%s-cloudigrade-deployer-runs", env)
}

// DAO provides data access operations for run records
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// Create creates a new run record with initial status PENDING
func (d *DAO) Create(ctx context.Context, input CreateInput) (Record, error) {
	now := time.Now().Unix()

	record := Record{
		PK:        NewPK(input.Env),
		SK:        input.SK,
		Env:       input.Env,
		Operation: input.Operation,
		Status:    RunStatusPending,
		ECSState:  input.States.ECS.String(),
		EC2State:  input.States.EC2.String(),
		S3State:   input.States.S3.String(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := d.table.Put(&record).RunWithContext(ctx); err != nil {
		return Record{}, fmt.Errorf("failed to create run record: %w", err)
	}

	return record, nil
}

// Find retrieves a run record by ID. Returns an error if not found.
func (d *DAO) Find(ctx context.Context, id ID) (Record, error) {
	pk, sk, err := ParseID(id)
	if err != nil {
		return Record{}, err
	}

	var record Record
	err = d.table.Get(pk.String()).
		Range(sk).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return Record{}, fmt.Errorf("run record not found: %s", id)
		}
		return Record{}, fmt.Errorf("failed to find run record: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return Record{}, fmt.Errorf("run record not found: %s", id)
	}

	return record, nil
}

// UpdateStatus updates the status of a run record. Terminal states also set
// the finish timestamp.
func (d *DAO) UpdateStatus(ctx context.Context, input UpdateInput) error {
	if input.Status == nil {
		return fmt.Errorf("status is required")
	}

	now := time.Now().Unix()

	update := d.table.Update(input.PK.String()).
		Range(input.SK).
		Set("#Status = ?", string(*input.Status)).
		Set("#UpdatedAt = ?", now)

	if *input.Status == RunStatusSuccess || *input.Status == RunStatusFailed {
		update = update.Set("#FinishedAt = ?", now)
	}
	if input.ErrorMsg != nil {
		update = update.Set("#ErrorMsg = ?", *input.ErrorMsg)
	}

	if err := update.RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to update run record: %w", err)
	}
	return nil
}

// lockSK is the fixed sort key of the environment lock record, which shares
// this table. Queries over runs must skip it.
const lockSK = "LOCK"

// Query returns all runs for an environment, in KSUID (chronological) order.
func (d *DAO) Query(ctx context.Context, env string) ([]Record, error) {
	var records []Record
	err := d.table.Query("#PK = ?", NewPK(env).String()).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	runs := records[:0]
	for _, record := range records {
		if record.SK == lockSK {
			continue
		}
		runs = append(runs, record)
	}
	return runs, nil
}

// Latest returns the most recent run for an environment, or nil when the
// environment has never been provisioned.
func (d *DAO) Latest(ctx context.Context, env string) (*Record, error) {
	records, err := d.Query(ctx, env)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	// KSUIDs sort chronologically, so the last record is the newest
	return &records[len(records)-1], nil
}

// Delete removes a run record by ID
func (d *DAO) Delete(ctx context.Context, id ID) error {
	pk, sk, err := ParseID(id)
	if err != nil {
		return err
	}

	if err := d.table.Delete(pk.String()).Range(sk).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to delete run record: %w", err)
	}
	return nil
}
