package lockdao

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/savaki/ddb/v2/ddbtest"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Data struct {
	DAO *DAO
}

func setup(t *testing.T) (ctx context.Context, data Data, cleanup func()) {
	ctx = context.Background()

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion("us-west-2"),
		config.WithBaseEndpoint("http://localhost:8000"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("blah", "blah", ""),
		),
	)
	assert.NoError(t, err)

	var (
		client    = dynamodb.NewFromConfig(cfg)
		db        = ddb.New(client)
		tableName = fmt.Sprintf("locks-test-%v", ksuid.New().String())
		table     = db.MustTable(tableName, Record{})
		dao       = New(client, tableName)
	)

	err = table.CreateTableIfNotExists(ctx)
	assert.NoError(t, err)

	return ctx, Data{DAO: dao}, func() {
		_ = table.DeleteTableIfExists(ctx)
	}
}

func TestDAO(t *testing.T) {
	ddbtest.WithTable[Data](t, setup, func(t *testing.T, ctx context.Context, data Data) {
		dao := data.DAO

		t.Run("Acquire_Success", func(t *testing.T) {
			env := "acquire-env"
			runID := ksuid.New().String()

			record, acquired, err := dao.Acquire(ctx, AcquireInput{
				Env:       env,
				RunID:     runID,
				Operation: "PROVISION",
			})
			require.NoError(t, err)
			assert.True(t, acquired)
			require.NotNil(t, record)
			assert.Equal(t, runID, record.RunID)
			assert.Greater(t, record.TTL, record.AcquiredAt)
		})

		t.Run("Acquire_Held_By_Other_Run", func(t *testing.T) {
			env := "contended-env"

			_, acquired, err := dao.Acquire(ctx, AcquireInput{
				Env:       env,
				RunID:     ksuid.New().String(),
				Operation: "PROVISION",
			})
			require.NoError(t, err)
			require.True(t, acquired)

			record, acquired, err := dao.Acquire(ctx, AcquireInput{
				Env:       env,
				RunID:     ksuid.New().String(),
				Operation: "TEARDOWN",
			})
			require.NoError(t, err)
			assert.False(t, acquired)
			assert.Nil(t, record)
		})

		t.Run("Acquire_Idempotent_For_Same_Run", func(t *testing.T) {
			env := "retry-env"
			runID := ksuid.New().String()

			_, acquired, err := dao.Acquire(ctx, AcquireInput{Env: env, RunID: runID, Operation: "PROVISION"})
			require.NoError(t, err)
			require.True(t, acquired)

			record, acquired, err := dao.Acquire(ctx, AcquireInput{Env: env, RunID: runID, Operation: "PROVISION"})
			require.NoError(t, err)
			assert.True(t, acquired)
			require.NotNil(t, record)
			assert.Equal(t, runID, record.RunID)
		})

		t.Run("Release", func(t *testing.T) {
			env := "release-env"
			runID := ksuid.New().String()

			_, acquired, err := dao.Acquire(ctx, AcquireInput{Env: env, RunID: runID, Operation: "PROVISION"})
			require.NoError(t, err)
			require.True(t, acquired)

			// Wrong run cannot release
			err = dao.Release(ctx, ReleaseInput{Env: env, RunID: ksuid.New().String()})
			assert.Error(t, err)

			// Holder releases
			err = dao.Release(ctx, ReleaseInput{Env: env, RunID: runID})
			require.NoError(t, err)

			found, err := dao.Find(ctx, env)
			require.NoError(t, err)
			assert.Nil(t, found)

			// Releasing an absent lock is a no-op
			err = dao.Release(ctx, ReleaseInput{Env: env, RunID: runID})
			assert.NoError(t, err)
		})

		t.Run("Delete_Forces_Release", func(t *testing.T) {
			env := "force-env"

			_, acquired, err := dao.Acquire(ctx, AcquireInput{Env: env, RunID: ksuid.New().String(), Operation: "PROVISION"})
			require.NoError(t, err)
			require.True(t, acquired)

			err = dao.Delete(ctx, env)
			require.NoError(t, err)

			found, err := dao.Find(ctx, env)
			require.NoError(t, err)
			assert.Nil(t, found)
		})
	})
}

func TestParsePK(t *testing.T) {
	env, err := ParsePK(NewPK("stage"))
	require.NoError(t, err)
	assert.Equal(t, "stage", env)

	_, err = ParsePK(PK("other/stage"))
	assert.Error(t, err)
}
