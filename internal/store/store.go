package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/bulkadmin/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrOperationNotFound  = errors.New("bulk operation not found")
	ErrOperationExists    = errors.New("bulk operation already exists")
	ErrOperationFinalized = errors.New("bulk operation is finalized")
	ErrInvalidTransition  = errors.New("invalid bulk operation status transition")
	ErrCounterInvariant   = errors.New("bulk operation counters out of range")
)

// DefaultListLimit is used when a caller passes a non-positive history limit.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// OperationStore persists bulk operations. It is the single source of truth for progress.
//
// Reads are always organization scoped: an operation belonging to another organization
// is reported as ErrOperationNotFound. Writes are keyed by operation ID only and are
// issued exclusively by the run that owns the operation.
type OperationStore interface {
	// CreateOperation inserts a new operation in the pending state.
	CreateOperation(ctx context.Context, op *models.BulkOperation) error

	// GetOperation returns the current snapshot of an operation owned by orgID.
	GetOperation(ctx context.Context, orgID, id uuid.UUID) (*models.BulkOperation, error)

	// ListOperations returns the most recent operations of orgID, newest first.
	// A non-positive limit means DefaultListLimit.
	ListOperations(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.BulkOperation, error)

	// MarkProcessing moves a pending operation to processing.
	MarkProcessing(ctx context.Context, id uuid.UUID) (*models.BulkOperation, error)

	// UpdateProgress writes the running counters of a processing operation.
	UpdateProgress(ctx context.Context, id uuid.UUID, counters models.Counters) (*models.BulkOperation, error)

	// FinishOperation moves the operation to a terminal status and stores the final results.
	// After this call the record is immutable.
	FinishOperation(ctx context.Context, id uuid.UUID, result FinishResult) (*models.BulkOperation, error)
}

// FinishResult carries the terminal state of a run.
type FinishResult struct {
	Status       models.Status
	Counters     models.Counters
	Results      []models.ItemOutcome
	ErrorMessage string
}

// NormaliseLimit applies the default and maximum history limits.
func NormaliseLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}

// CheckCounters enforces processed <= total and success + failure == processed.
func CheckCounters(total int, c models.Counters) error {
	if c.ProcessedItems < 0 || c.ProcessedItems > total || c.SuccessCount+c.FailureCount != c.ProcessedItems {
		return ErrCounterInvariant
	}
	return nil
}

// Transition applies a status change to op.
func Transition(op *models.BulkOperation, next models.Status, now time.Time) error {
	if op.Status.Terminal() {
		return ErrOperationFinalized
	}

	if !op.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, op.Status, next)
	}

	op.Status = next
	op.UpdatedAt = now
	return nil
}

// ApplyProgress writes running counters to a processing op. Processed items never decrease.
func ApplyProgress(op *models.BulkOperation, counters models.Counters, now time.Time) error {
	if op.Status.Terminal() {
		return ErrOperationFinalized
	}

	if op.Status != models.StatusProcessing {
		return fmt.Errorf("%w: progress requires processing, got %s", ErrInvalidTransition, op.Status)
	}

	if err := CheckCounters(op.TotalItems, counters); err != nil {
		return err
	}

	if counters.ProcessedItems < op.ProcessedItems {
		return fmt.Errorf("%w: processed items would decrease from %d to %d",
			ErrCounterInvariant, op.ProcessedItems, counters.ProcessedItems)
	}

	op.Counters = counters
	op.UpdatedAt = now
	return nil
}

// ApplyFinish moves op to a terminal status with its final counters and results.
func ApplyFinish(op *models.BulkOperation, result FinishResult, now time.Time) error {
	if op.Status.Terminal() {
		return ErrOperationFinalized
	}

	if err := CheckCounters(op.TotalItems, result.Counters); err != nil {
		return err
	}

	if err := Transition(op, result.Status, now); err != nil {
		return err
	}

	op.Counters = result.Counters
	op.ErrorMessage = result.ErrorMessage
	op.Results = make([]models.ItemOutcome, len(result.Results))
	for i, r := range result.Results {
		op.Results[i] = r.Clone()
	}
	return nil
}
