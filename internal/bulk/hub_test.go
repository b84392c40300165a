package bulk

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/bulkadmin/internal/models"
	"github.com/wolfeidau/bulkadmin/internal/store"
	"github.com/wolfeidau/bulkadmin/internal/store/memory"
)

func collect(t *testing.T, sub *Subscription) []Event {
	t.Helper()

	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("subscription not closed, got %d events", len(events))
		}
	}
}

func requireMonotonic(t *testing.T, events []Event) {
	t.Helper()
	for i, ev := range events {
		snap := ev.Snapshot
		require.Equal(t, snap.ProcessedItems, snap.SuccessCount+snap.FailureCount)
		require.LessOrEqual(t, snap.ProcessedItems, snap.TotalItems)
		if i > 0 {
			require.GreaterOrEqual(t, snap.ProcessedItems, events[i-1].Snapshot.ProcessedItems)
		}
	}
}

func TestEngine_LiveSubscription(t *testing.T) {
	ctx := context.Background()
	caller := newCaller()

	gate := make(chan struct{})
	local := func(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
		<-gate
		return nil
	}
	eng := newEngine(t, memory.NewOperationStore(), registryWith(models.OperationUserSuspend, local, nil))

	res, err := eng.Submit(ctx, caller, SubmitRequest{
		OperationType: models.OperationUserSuspend,
		Rows:          rowsOf("a@x.com", "b@x.com", "c@x.com", "d@x.com"),
	})
	require.NoError(t, err)

	early, err := eng.Subscribe(ctx, caller, res.OperationID)
	require.NoError(t, err)

	gate <- struct{}{}
	require.Eventually(t, func() bool {
		status, err := eng.Status(ctx, caller, res.OperationID)
		return err == nil && status.Operation.ProcessedItems == 1
	}, 5*time.Second, 5*time.Millisecond)

	t.Run("late subscriber snapshot matches status", func(t *testing.T) {
		late, err := eng.Subscribe(ctx, caller, res.OperationID)
		require.NoError(t, err)
		defer eng.Unsubscribe(late)

		status, err := eng.Status(ctx, caller, res.OperationID)
		require.NoError(t, err)

		first := <-late.Events()
		require.Equal(t, EventProgress, first.Type)
		require.Equal(t, status.Operation.Snapshot(), first.Snapshot)
	})

	close(gate)

	events := collect(t, early)
	require.NotEmpty(t, events)
	requireMonotonic(t, events)

	last := events[len(events)-1]
	require.Equal(t, EventCompleted, last.Type)
	require.Equal(t, 4, last.Snapshot.ProcessedItems)
	require.Equal(t, 100, last.Snapshot.Progress)

	t.Run("subscribing to a finished operation yields the terminal snapshot", func(t *testing.T) {
		waitIdle(t, eng)

		sub, err := eng.Subscribe(ctx, caller, res.OperationID)
		require.NoError(t, err)

		events := collect(t, sub)
		require.Len(t, events, 1)
		require.Equal(t, EventCompleted, events[0].Type)

		status, err := eng.Status(ctx, caller, res.OperationID)
		require.NoError(t, err)
		require.Equal(t, status.Operation.Snapshot(), events[0].Snapshot)
	})
}

func TestEngine_ManyObserversSeeTerminalEvent(t *testing.T) {
	ctx := context.Background()
	caller := newCaller()

	gate := make(chan struct{})
	local := func(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
		<-gate
		return nil
	}
	eng := newEngine(t, memory.NewOperationStore(), registryWith(models.OperationUserSuspend, local, nil))

	res, err := eng.Submit(ctx, caller, SubmitRequest{OperationType: models.OperationUserSuspend, Rows: rowsOf("a@x.com", "b@x.com")})
	require.NoError(t, err)

	subs := make([]*Subscription, 3)
	for i := range subs {
		subs[i], err = eng.Subscribe(ctx, caller, res.OperationID)
		require.NoError(t, err)
	}

	close(gate)

	for _, sub := range subs {
		events := collect(t, sub)
		requireMonotonic(t, events)
		require.Equal(t, EventCompleted, events[len(events)-1].Type)
	}
}

func newHubOperation(t *testing.T, st *memory.OperationStore, orgID uuid.UUID, total int) *models.BulkOperation {
	t.Helper()
	op := &models.BulkOperation{
		ID:            uuid.Must(uuid.NewV7()),
		OrgID:         orgID,
		OperationType: models.OperationUserSuspend,
		Status:        models.StatusPending,
		TotalItems:    total,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, st.CreateOperation(context.Background(), op))
	return op
}

func TestHub_SlowObserverKeepsLatest(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	st := memory.NewOperationStore()
	op := newHubOperation(t, st, orgID, 5)

	hub := NewHub(st, 2)
	sub, err := hub.Subscribe(ctx, orgID, op.ID)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		hub.Publish(models.Snapshot{
			OperationID: op.ID,
			OrgID:       orgID,
			Status:      models.StatusProcessing,
			TotalItems:  5,
			Counters:    models.Counters{ProcessedItems: i, SuccessCount: i},
		})
	}
	hub.Publish(models.Snapshot{
		OperationID: op.ID,
		OrgID:       orgID,
		Status:      models.StatusCompleted,
		TotalItems:  5,
		Counters:    models.Counters{ProcessedItems: 5, SuccessCount: 5},
	})

	require.Eventually(t, sub.isClosed, 5*time.Second, 5*time.Millisecond)

	events := collect(t, sub)
	require.Len(t, events, 2)
	require.Equal(t, 5, events[0].Snapshot.ProcessedItems)
	require.Equal(t, EventCompleted, events[1].Type)
	require.Equal(t, 5, sub.Dropped())

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.topics) == 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestHub_Unsubscribe(t *testing.T) {
	orgID := uuid.New()
	st := memory.NewOperationStore()
	op := newHubOperation(t, st, orgID, 1)
	hub := NewHub(st, 4)

	t.Run("explicit", func(t *testing.T) {
		sub, err := hub.Subscribe(context.Background(), orgID, op.ID)
		require.NoError(t, err)

		hub.Unsubscribe(sub)
		hub.Unsubscribe(sub)

		events := collect(t, sub)
		require.Len(t, events, 1)
		require.Equal(t, EventProgress, events[0].Type)
		require.Equal(t, models.StatusPending, events[0].Snapshot.Status)

		hub.mu.Lock()
		require.Empty(t, hub.topics)
		hub.mu.Unlock()
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		sub, err := hub.Subscribe(ctx, orgID, op.ID)
		require.NoError(t, err)

		cancel()
		require.Eventually(t, sub.isClosed, 5*time.Second, 5*time.Millisecond)
	})

	t.Run("publish after unsubscribe is discarded", func(t *testing.T) {
		hub.Publish(models.Snapshot{OperationID: op.ID, Status: models.StatusProcessing})
	})
}

func TestSubscription_DropsStaleSnapshots(t *testing.T) {
	sub := &Subscription{events: make(chan Event, 8)}
	snap := func(status models.Status, processed int) models.Snapshot {
		return models.Snapshot{Status: status, TotalItems: 3, Counters: models.Counters{ProcessedItems: processed, SuccessCount: processed}}
	}

	sub.offer(snap(models.StatusPending, 0))
	sub.offer(snap(models.StatusProcessing, 0))
	sub.offer(snap(models.StatusProcessing, 2))
	sub.offer(snap(models.StatusProcessing, 1))
	sub.offer(snap(models.StatusProcessing, 2))
	sub.offer(snap(models.StatusCompleted, 3))
	sub.offer(snap(models.StatusCompleted, 3))

	var got []string
	for ev := range sub.events {
		got = append(got, fmt.Sprintf("%s:%d", ev.Snapshot.Status, ev.Snapshot.ProcessedItems))
	}
	require.Equal(t, []string{"pending:0", "processing:0", "processing:2", "completed:3"}, got)
}

func TestHub_ResyncRecoversMissedTerminal(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	st := memory.NewOperationStore()
	op := newHubOperation(t, st, orgID, 2)
	hub := NewHub(st, 4)

	sub, err := hub.Subscribe(ctx, orgID, op.ID)
	require.NoError(t, err)
	require.Equal(t, []OperationRef{{OrgID: orgID, ID: op.ID}}, hub.Tracked())

	t.Run("unchanged operation is not repeated", func(t *testing.T) {
		hub.Resync(ctx)
		require.Len(t, sub.Events(), 1)
	})

	// the run finishes without any snapshot reaching the hub
	_, err = st.MarkProcessing(ctx, op.ID)
	require.NoError(t, err)
	_, err = st.FinishOperation(ctx, op.ID, store.FinishResult{
		Status:   models.StatusCompleted,
		Counters: models.Counters{ProcessedItems: 2, SuccessCount: 2},
	})
	require.NoError(t, err)

	hub.Resync(ctx)

	events := collect(t, sub)
	require.Len(t, events, 2)
	require.Equal(t, EventProgress, events[0].Type)
	require.Equal(t, EventCompleted, events[1].Type)
	require.Equal(t, 2, events[1].Snapshot.ProcessedItems)

	require.Eventually(t, func() bool { return len(hub.Tracked()) == 0 }, 5*time.Second, 5*time.Millisecond)
}
