package bulk

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bulkadmin/internal/models"
	"github.com/wolfeidau/bulkadmin/internal/store"
)

// Notifier announces that the persisted state of an operation changed.
type Notifier interface {
	Notify(ctx context.Context, op *models.BulkOperation) error
}

// Publisher folds the item outcomes of one run into the persisted operation and
// notifies observers after every write. Writes for one operation are serialized.
type Publisher struct {
	store    store.OperationStore
	notifier Notifier
	opID     uuid.UUID
	orgID    uuid.UUID

	mu       sync.Mutex
	counters models.Counters
	results  []models.ItemOutcome
	recorded []bool
	err      error
	finished bool
}

func newPublisher(st store.OperationStore, notifier Notifier, op *models.BulkOperation) *Publisher {
	return &Publisher{
		store:    st,
		notifier: notifier,
		opID:     op.ID,
		orgID:    op.OrgID,
		counters: op.Counters,
		results:  make([]models.ItemOutcome, op.TotalItems),
		recorded: make([]bool, op.TotalItems),
	}
}

// Record persists the outcome of the item at position pos of the run and notifies observers.
// A store error is returned and latches the publisher: later outcomes are ignored.
func (p *Publisher) Record(ctx context.Context, pos int, outcome models.ItemOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	if p.finished {
		return store.ErrOperationFinalized
	}
	if pos < 0 || pos >= len(p.results) || p.recorded[pos] {
		return fmt.Errorf("%w: item position %d", store.ErrCounterInvariant, pos)
	}

	next := p.counters
	next.Add(outcome)

	op, err := p.store.UpdateProgress(ctx, p.opID, next)
	if err != nil {
		p.err = fmt.Errorf("failed to persist progress: %w", err)
		return p.err
	}

	p.counters = next
	p.results[pos] = outcome.Clone()
	p.recorded[pos] = true

	p.notify(ctx, op)
	return nil
}

// Counters returns the tally persisted so far.
func (p *Publisher) Counters() models.Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}

// Finish persists the terminal status with the results in submission order. A non-nil
// runErr, or an earlier store error, marks the operation failed with the counters
// accumulated so far.
func (p *Publisher) Finish(ctx context.Context, runErr error) (*models.BulkOperation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return nil, store.ErrOperationFinalized
	}
	p.finished = true

	if runErr == nil {
		runErr = p.err
	}

	result := store.FinishResult{
		Status:   models.StatusCompleted,
		Counters: p.counters,
	}
	if runErr != nil || p.counters.ProcessedItems < len(p.results) {
		result.Status = models.StatusFailed
		if runErr != nil {
			result.ErrorMessage = runErr.Error()
		} else {
			result.ErrorMessage = fmt.Sprintf("run ended after %d of %d items", p.counters.ProcessedItems, len(p.results))
		}
	}

	result.Results = make([]models.ItemOutcome, 0, p.counters.ProcessedItems)
	for i, outcome := range p.results {
		if p.recorded[i] {
			result.Results = append(result.Results, outcome)
		}
	}

	op, err := p.store.FinishOperation(ctx, p.opID, result)
	if err != nil {
		return nil, fmt.Errorf("failed to finish operation: %w", err)
	}

	p.notify(ctx, op)
	return op, nil
}

// notify forwards a persisted state change. Must be called with lock held.
func (p *Publisher) notify(ctx context.Context, op *models.BulkOperation) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, op); err != nil {
		log.Warn().
			Err(err).
			Str("operation_id", p.opID.String()).
			Str("org_id", p.orgID.String()).
			Msg("Failed to notify progress, observers can poll status")
	}
}
