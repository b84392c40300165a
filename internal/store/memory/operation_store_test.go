package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/bulkadmin/internal/models"
	"github.com/wolfeidau/bulkadmin/internal/store"
)

func newPendingOperation(orgID uuid.UUID, total int) *models.BulkOperation {
	now := time.Now()
	return &models.BulkOperation{
		ID:            uuid.Must(uuid.NewV7()),
		OrgID:         orgID,
		OperationType: models.OperationUserSuspend,
		Status:        models.StatusPending,
		TotalItems:    total,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOperationStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	t.Run("create and read back", func(t *testing.T) {
		st := NewOperationStore()
		op := newPendingOperation(orgID, 3)

		require.NoError(t, st.CreateOperation(ctx, op))

		got, err := st.GetOperation(ctx, orgID, op.ID)
		require.NoError(t, err)
		require.Equal(t, models.StatusPending, got.Status)
		require.Equal(t, 3, got.TotalItems)
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		st := NewOperationStore()
		op := newPendingOperation(orgID, 1)

		require.NoError(t, st.CreateOperation(ctx, op))
		require.ErrorIs(t, st.CreateOperation(ctx, op), store.ErrOperationExists)
	})

	t.Run("must start pending", func(t *testing.T) {
		st := NewOperationStore()
		op := newPendingOperation(orgID, 1)
		op.Status = models.StatusCompleted

		require.ErrorIs(t, st.CreateOperation(ctx, op), store.ErrInvalidTransition)
	})

	t.Run("other organization sees not found", func(t *testing.T) {
		st := NewOperationStore()
		op := newPendingOperation(orgID, 1)
		require.NoError(t, st.CreateOperation(ctx, op))

		_, err := st.GetOperation(ctx, uuid.New(), op.ID)
		require.ErrorIs(t, err, store.ErrOperationNotFound)
	})

	t.Run("returned values are copies", func(t *testing.T) {
		st := NewOperationStore()
		op := newPendingOperation(orgID, 1)
		require.NoError(t, st.CreateOperation(ctx, op))

		got, err := st.GetOperation(ctx, orgID, op.ID)
		require.NoError(t, err)
		got.Status = models.StatusFailed

		again, err := st.GetOperation(ctx, orgID, op.ID)
		require.NoError(t, err)
		require.Equal(t, models.StatusPending, again.Status)
	})
}

func TestOperationStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	st := NewOperationStore()
	op := newPendingOperation(orgID, 2)
	require.NoError(t, st.CreateOperation(ctx, op))

	_, err := st.UpdateProgress(ctx, op.ID, models.Counters{ProcessedItems: 1, SuccessCount: 1})
	require.ErrorIs(t, err, store.ErrInvalidTransition)

	processing, err := st.MarkProcessing(ctx, op.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, processing.Status)

	updated, err := st.UpdateProgress(ctx, op.ID, models.Counters{ProcessedItems: 1, SuccessCount: 1})
	require.NoError(t, err)
	require.Equal(t, 50, updated.Progress())

	_, err = st.UpdateProgress(ctx, op.ID, models.Counters{ProcessedItems: 0})
	require.ErrorIs(t, err, store.ErrCounterInvariant)

	_, err = st.UpdateProgress(ctx, op.ID, models.Counters{ProcessedItems: 3, SuccessCount: 3})
	require.ErrorIs(t, err, store.ErrCounterInvariant)

	results := []models.ItemOutcome{
		{Index: 0, Identity: "a@x.com", Local: models.TargetResult{Success: true}},
		{Index: 1, Identity: "b@x.com", Local: models.TargetResult{Success: false, Error: "boom"}},
	}
	finished, err := st.FinishOperation(ctx, op.ID, store.FinishResult{
		Status:   models.StatusCompleted,
		Counters: models.Counters{ProcessedItems: 2, SuccessCount: 1, FailureCount: 1},
		Results:  results,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, finished.Status)
	require.Len(t, finished.Results, 2)
	require.Equal(t, 100, finished.Progress())

	t.Run("terminal record is immutable", func(t *testing.T) {
		_, err := st.UpdateProgress(ctx, op.ID, models.Counters{ProcessedItems: 2, SuccessCount: 2})
		require.ErrorIs(t, err, store.ErrOperationFinalized)

		_, err = st.FinishOperation(ctx, op.ID, store.FinishResult{
			Status:   models.StatusFailed,
			Counters: models.Counters{ProcessedItems: 2, SuccessCount: 1, FailureCount: 1},
		})
		require.ErrorIs(t, err, store.ErrOperationFinalized)

		_, err = st.MarkProcessing(ctx, op.ID)
		require.ErrorIs(t, err, store.ErrOperationFinalized)
	})

	t.Run("stored results are not aliased", func(t *testing.T) {
		results[0].Local.Success = false

		got, err := st.GetOperation(ctx, orgID, op.ID)
		require.NoError(t, err)
		require.True(t, got.Results[0].Local.Success)
	})
}

func TestOperationStore_FailFromPending(t *testing.T) {
	ctx := context.Background()
	st := NewOperationStore()
	op := newPendingOperation(uuid.New(), 4)
	require.NoError(t, st.CreateOperation(ctx, op))

	failed, err := st.FinishOperation(ctx, op.ID, store.FinishResult{
		Status:       models.StatusFailed,
		ErrorMessage: "run aborted",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, failed.Status)
	require.Equal(t, "run aborted", failed.ErrorMessage)
}

func TestOperationStore_CannotCompleteFromPending(t *testing.T) {
	ctx := context.Background()
	st := NewOperationStore()
	op := newPendingOperation(uuid.New(), 1)
	require.NoError(t, st.CreateOperation(ctx, op))

	_, err := st.FinishOperation(ctx, op.ID, store.FinishResult{Status: models.StatusCompleted})
	require.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestOperationStore_ListOperations(t *testing.T) {
	ctx := context.Background()
	orgA := uuid.New()
	orgB := uuid.New()
	st := NewOperationStore()

	base := time.Now()
	var ids []uuid.UUID
	for i := range 3 {
		op := newPendingOperation(orgA, 1)
		op.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, st.CreateOperation(ctx, op))
		ids = append(ids, op.ID)
	}
	require.NoError(t, st.CreateOperation(ctx, newPendingOperation(orgB, 1)))

	t.Run("newest first scoped to org", func(t *testing.T) {
		ops, err := st.ListOperations(ctx, orgA, 0)
		require.NoError(t, err)
		require.Len(t, ops, 3)
		require.Equal(t, ids[2], ops[0].ID)
		require.Equal(t, ids[1], ops[1].ID)
		require.Equal(t, ids[0], ops[2].ID)
	})

	t.Run("limit applied", func(t *testing.T) {
		ops, err := st.ListOperations(ctx, orgA, 2)
		require.NoError(t, err)
		require.Len(t, ops, 2)
		require.Equal(t, ids[2], ops[0].ID)
	})

	t.Run("unknown org is empty", func(t *testing.T) {
		ops, err := st.ListOperations(ctx, uuid.New(), 10)
		require.NoError(t, err)
		require.Empty(t, ops)
	})
}
