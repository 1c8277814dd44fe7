//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsse/inscribememaybe/internal/domain/model"
	"github.com/mattsse/inscribememaybe/internal/store"
	"github.com/mattsse/inscribememaybe/internal/store/postgres"
)

// uniqueSender gives every test its own address space so tests can share
// one database.
func uniqueSender() string {
	return "0x" + uuid.NewString()[:8] + "00000000000000000000000000000000"
}

func record(sender string, n int) *model.InscriptionRecord {
	return &model.InscriptionRecord{
		Sender:   sender,
		ChainID:  11155111,
		TxHash:   fmt.Sprintf("0x%s%032d", strings.ReplaceAll(uuid.NewString(), "-", ""), n),
		Calldata: "0x646174613a2c7b7d",
	}
}

func TestInscriptionRepo_InsertCountList(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewInscriptionRepo(db)
	ctx := context.Background()
	sender := uniqueSender()

	var lastID int64
	for i := 1; i <= 3; i++ {
		id, err := repo.Insert(ctx, record(sender, i))
		require.NoError(t, err)
		assert.Greater(t, id, lastID, "ids are monotonically increasing")
		lastID = id
	}

	count, err := repo.Count(ctx, sender, 11155111)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	records, err := repo.ListBySender(ctx, sender, 11155111, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, lastID, records[0].ID, "newest first")
	assert.Equal(t, sender, records[0].Sender)
	assert.False(t, records[0].CreatedAt.IsZero())

	limited, err := repo.ListBySender(ctx, sender, 11155111, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestInscriptionRepo_DuplicateTxHashRejected(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewInscriptionRepo(db)
	ctx := context.Background()
	sender := uniqueSender()

	rec := record(sender, 1)
	_, err := repo.Insert(ctx, rec)
	require.NoError(t, err)

	_, err = repo.Insert(ctx, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrDuplicateTxHash)
}

func TestInscriptionRepo_CreatedAtRoundTrips(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewInscriptionRepo(db)
	ctx := context.Background()
	sender := uniqueSender()

	rec := record(sender, 1)
	rec.CreatedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := repo.Insert(ctx, rec)
	require.NoError(t, err)

	records, err := repo.ListBySender(ctx, sender, 11155111, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.WithinDuration(t, rec.CreatedAt, records[0].CreatedAt, time.Second)
}

func TestInscriptionRepo_CountScopedByChain(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewInscriptionRepo(db)
	ctx := context.Background()
	sender := uniqueSender()

	_, err := repo.Insert(ctx, record(sender, 1))
	require.NoError(t, err)

	other := record(sender, 2)
	other.ChainID = 8453
	_, err = repo.Insert(ctx, other)
	require.NoError(t, err)

	count, err := repo.Count(ctx, sender, 8453)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	// A second run must skip everything already applied.
	require.NoError(t, db.RunMigrations(migrationsDir()))
}
