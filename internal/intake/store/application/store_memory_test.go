package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppdb/internal/intake/models"
	id "ppdb/pkg/domain"
	"ppdb/pkg/platform/sentinel"
)

func newTestApp(t *testing.T, tenantID id.TenantID, batchID id.BatchID, regID string, seq int) *models.Application {
	t.Helper()
	app, err := models.NewApplication(
		id.NewApplicationID(), tenantID, batchID,
		regID, seq, 2025,
		models.Candidate{FullName: "Siti Rahma"},
		"IPA", "zonasi",
		time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	return app
}

func TestInMemoryStore_CreateAndFind(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	tenantID := id.NewTenantID()
	batchID := id.NewBatchID()

	app := newTestApp(t, tenantID, batchID, "PPDB2025GEL010001", 1)
	require.NoError(t, store.Create(ctx, app))

	t.Run("find by id", func(t *testing.T) {
		got, err := store.FindByID(ctx, tenantID, app.ID)
		require.NoError(t, err)
		assert.Equal(t, app.RegistrationID, got.RegistrationID)
		assert.Equal(t, models.StatusPending, got.Status)
	})

	t.Run("find by registration id", func(t *testing.T) {
		got, err := store.FindByRegistrationID(ctx, tenantID, "PPDB2025GEL010001")
		require.NoError(t, err)
		assert.Equal(t, app.ID, got.ID)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := store.FindByID(ctx, tenantID, id.NewApplicationID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("another tenant cannot see the application", func(t *testing.T) {
		_, err := store.FindByID(ctx, id.NewTenantID(), app.ID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		_, err = store.FindByRegistrationID(ctx, id.NewTenantID(), "PPDB2025GEL010001")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("duplicate registration id conflicts", func(t *testing.T) {
		dup := newTestApp(t, tenantID, batchID, "PPDB2025GEL010001", 1)
		assert.ErrorIs(t, store.Create(ctx, dup), sentinel.ErrConflict)
	})

	t.Run("same registration id under another tenant is fine", func(t *testing.T) {
		other := newTestApp(t, id.NewTenantID(), id.NewBatchID(), "PPDB2025GEL010001", 1)
		assert.NoError(t, store.Create(ctx, other))
	})
}

func TestInMemoryStore_ReadsAreCopies(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	tenantID := id.NewTenantID()

	app := newTestApp(t, tenantID, id.NewBatchID(), "PPDB2025GEL010001", 1)
	require.NoError(t, store.Create(ctx, app))

	got, err := store.FindByID(ctx, tenantID, app.ID)
	require.NoError(t, err)
	got.Status = models.StatusCancelled
	got.Candidate.FullName = "someone else"

	reread, err := store.FindByID(ctx, tenantID, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, reread.Status)
	assert.Equal(t, "Siti Rahma", reread.Candidate.FullName)
}

func TestInMemoryStore_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("successful mutation bumps the version", func(t *testing.T) {
		store := NewInMemory()
		tenantID := id.NewTenantID()
		app := newTestApp(t, tenantID, id.NewBatchID(), "PPDB2025GEL010001", 1)
		require.NoError(t, store.Create(ctx, app))

		now := time.Now()
		updated, err := store.Execute(ctx, tenantID, app.ID, func(a *models.Application) error {
			if err := a.CanRegister(); err != nil {
				return err
			}
			a.ApplyRegister(now)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusRegistered, updated.Status)
		assert.Equal(t, 2, updated.Version)

		persisted, err := store.FindByID(ctx, tenantID, app.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRegistered, persisted.Status)
	})

	t.Run("failed mutation writes nothing", func(t *testing.T) {
		store := NewInMemory()
		tenantID := id.NewTenantID()
		app := newTestApp(t, tenantID, id.NewBatchID(), "PPDB2025GEL010001", 1)
		require.NoError(t, store.Create(ctx, app))

		_, err := store.Execute(ctx, tenantID, app.ID, func(a *models.Application) error {
			a.Status = models.StatusAccepted // would corrupt state if persisted
			return assert.AnError
		})
		require.Error(t, err)

		persisted, err := store.FindByID(ctx, tenantID, app.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, persisted.Status)
		assert.Equal(t, 1, persisted.Version)
	})

	t.Run("unknown application is not found", func(t *testing.T) {
		store := NewInMemory()
		_, err := store.Execute(ctx, id.NewTenantID(), id.NewApplicationID(), func(*models.Application) error {
			return nil
		})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestInMemoryStore_ListByBatch(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	tenantID := id.NewTenantID()
	batchID := id.NewBatchID()

	for i := 1; i <= 3; i++ {
		app := newTestApp(t, tenantID, batchID, regIDForSeq(i), i)
		require.NoError(t, store.Create(ctx, app))
	}
	other := newTestApp(t, tenantID, id.NewBatchID(), "PPDB2025GEL020001", 1)
	require.NoError(t, store.Create(ctx, other))

	apps, err := store.ListByBatch(ctx, tenantID, batchID)
	require.NoError(t, err)
	assert.Len(t, apps, 3)
}

func TestInMemoryStore_MaxSequence(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	tenantID := id.NewTenantID()
	batchID := id.NewBatchID()

	max, err := store.MaxSequence(ctx, tenantID, batchID)
	require.NoError(t, err)
	assert.Equal(t, 0, max, "empty batch has no sequences")

	for _, seq := range []int{3, 7, 5} {
		require.NoError(t, store.Create(ctx, newTestApp(t, tenantID, batchID, regIDForSeq(seq), seq)))
	}

	max, err = store.MaxSequence(ctx, tenantID, batchID)
	require.NoError(t, err)
	assert.Equal(t, 7, max)
}

func regIDForSeq(seq int) string {
	return fmt.Sprintf("PPDB2025GEL01%04d", seq)
}
