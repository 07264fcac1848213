package lockdao

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
)

const (
	lockSK       = "LOCK"
	lockTTLHours = 4 // Auto-expire locks after 4 hours
)

// PK represents the partition key: cloudigrade/{env}. Locks share the runs
// table, so the key layout matches rundao with a fixed sort key.
type PK string

// NewPK creates a partition key from the environment
func NewPK(env string) PK {
	return PK(fmt.Sprintf("cloudigrade/%s", env))
}

// ParsePK parses a partition key into its environment component
func ParsePK(pk PK) (env string, err error) {
	s := string(pk)
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] != "cloudigrade" {
		return "", fmt.Errorf("invalid PK format: %s, expected cloudigrade/{env}", s)
	}
	return parts[1], nil
}

// String returns the string representation
func (pk PK) String() string {
	return string(pk)
}

// Record represents an environment provisioning lock
type Record struct {
	PK         PK     `ddb:"hash" dynamodbav:"pk"`  // cloudigrade/{env}
	SK         string `ddb:"range" dynamodbav:"sk"` // Always "LOCK"
	RunID      string `dynamodbav:"run_id"`         // KSUID of the run holding the lock
	Operation  string `dynamodbav:"operation"`      // PROVISION or TEARDOWN
	AcquiredAt int64  `dynamodbav:"acquired_at"`    // Unix timestamp when lock was acquired
	TTL        int64  `dynamodbav:"ttl"`            // Unix timestamp for DynamoDB TTL expiry
}

// AcquireInput contains fields for acquiring an environment lock
type AcquireInput struct {
	Env       string // Environment
	RunID     string // Run KSUID
	Operation string // Operation the run performs
}

// ReleaseInput contains fields for releasing an environment lock
type ReleaseInput struct {
	Env   string // Environment
	RunID string // Run KSUID (must match lock holder)
}

// DAO provides data access operations for environment locks
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

// Acquire attempts to acquire the environment lock.
// Returns the lock record and true if acquired, false when another run holds it.
func (d *DAO) Acquire(ctx context.Context, input AcquireInput) (*Record, bool, error) {
	existing, err := d.Find(ctx, input.Env)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check existing lock: %w", err)
	}

	if existing != nil {
		if existing.RunID == input.RunID {
			// Same run already holds the lock (retry scenario)
			return existing, true, nil
		}
		return nil, false, nil
	}

	now := time.Now().Unix()
	record := &Record{
		PK:         NewPK(input.Env),
		SK:         lockSK,
		RunID:      input.RunID,
		Operation:  input.Operation,
		AcquiredAt: now,
		TTL:        now + (lockTTLHours * 3600),
	}

	if err := d.table.Put(record).RunWithContext(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to create lock: %w", err)
	}

	return record, true, nil
}

// Find retrieves the lock for an environment.
// Returns nil if no lock is held.
func (d *DAO) Find(ctx context.Context, env string) (*Record, error) {
	pk := NewPK(env)
	var record Record

	err := d.table.Get(pk.String()).
		Range(lockSK).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return nil, nil
	}

	return &record, nil
}

// Release releases the environment lock.
// Only succeeds if the lock is held by the specified run.
func (d *DAO) Release(ctx context.Context, input ReleaseInput) error {
	existing, err := d.Find(ctx, input.Env)
	if err != nil {
		return fmt.Errorf("failed to check lock: %w", err)
	}

	if existing == nil {
		// Already released or expired
		return nil
	}

	if existing.RunID != input.RunID {
		return fmt.Errorf("lock not held by run %s (held by %s)", input.RunID, existing.RunID)
	}

	return d.Delete(ctx, input.Env)
}

// Delete removes the lock regardless of who holds it.
// Use with caution, this is for cleanup and recovery scenarios.
func (d *DAO) Delete(ctx context.Context, env string) error {
	pk := NewPK(env)

	err := d.table.Delete(pk.String()).
		Range(lockSK).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}

	return nil
}
