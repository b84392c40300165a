package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bulkadmin/internal/models"
	"github.com/wolfeidau/bulkadmin/internal/store"
)

// OperationStore implements store.OperationStore using in-memory storage.
// This implementation is for testing and development - data is lost on restart.
type OperationStore struct {
	mu sync.RWMutex

	operations map[uuid.UUID]*models.BulkOperation // operation ID -> BulkOperation
	byOrg      map[uuid.UUID][]uuid.UUID           // org ID -> operation IDs in insertion order

	now func() time.Time
}

var _ store.OperationStore = (*OperationStore)(nil)

// NewOperationStore creates a new in-memory operation store.
func NewOperationStore() *OperationStore {
	return &OperationStore{
		operations: make(map[uuid.UUID]*models.BulkOperation),
		byOrg:      make(map[uuid.UUID][]uuid.UUID),
		now:        time.Now,
	}
}

// CreateOperation stores a new pending operation.
func (s *OperationStore) CreateOperation(ctx context.Context, op *models.BulkOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.operations[op.ID]; exists {
		return store.ErrOperationExists
	}

	if op.Status != models.StatusPending {
		return fmt.Errorf("%w: new operation must be pending, got %s", store.ErrInvalidTransition, op.Status)
	}

	// Clone to avoid external modifications
	s.operations[op.ID] = op.Clone()
	s.byOrg[op.OrgID] = append(s.byOrg[op.OrgID], op.ID)

	return nil
}

// GetOperation retrieves an operation owned by orgID.
func (s *OperationStore) GetOperation(ctx context.Context, orgID, id uuid.UUID) (*models.BulkOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, exists := s.operations[id]
	if !exists || op.OrgID != orgID {
		return nil, store.ErrOperationNotFound
	}

	return op.Clone(), nil
}

// ListOperations returns the newest operations of orgID first.
func (s *OperationStore) ListOperations(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.BulkOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = store.NormaliseLimit(limit)

	ids := s.byOrg[orgID]
	result := make([]*models.BulkOperation, 0, min(limit, len(ids)))
	for _, id := range ids {
		result = append(result, s.operations[id].Clone())
	}

	// UUIDv7 ids break ties between operations created in the same instant
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID.String() > result[j].ID.String()
	})

	if len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// MarkProcessing moves a pending operation to processing.
func (s *OperationStore) MarkProcessing(ctx context.Context, id uuid.UUID) (*models.BulkOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, exists := s.operations[id]
	if !exists {
		return nil, store.ErrOperationNotFound
	}

	if err := store.Transition(op, models.StatusProcessing, s.now()); err != nil {
		return nil, err
	}

	return op.Clone(), nil
}

// UpdateProgress writes the running counters of a processing operation.
func (s *OperationStore) UpdateProgress(ctx context.Context, id uuid.UUID, counters models.Counters) (*models.BulkOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, exists := s.operations[id]
	if !exists {
		return nil, store.ErrOperationNotFound
	}

	if err := store.ApplyProgress(op, counters, s.now()); err != nil {
		return nil, err
	}

	return op.Clone(), nil
}

// FinishOperation moves an operation to completed or failed and stores the results.
func (s *OperationStore) FinishOperation(ctx context.Context, id uuid.UUID, result store.FinishResult) (*models.BulkOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, exists := s.operations[id]
	if !exists {
		return nil, store.ErrOperationNotFound
	}

	// Validate on a copy so a rejected finish leaves the record untouched
	next := op.Clone()
	if err := store.ApplyFinish(next, result, s.now()); err != nil {
		return nil, err
	}
	s.operations[id] = next

	log.Debug().
		Str("operation_id", id.String()).
		Str("status", string(next.Status)).
		Int("processed_items", next.ProcessedItems).
		Msg("Finished bulk operation")

	return next.Clone(), nil
}
