package bulk

import (
	"errors"
	"fmt"

	"github.com/wolfeidau/bulkadmin/internal/models"
)

var (
	ErrEmptyBatch           = errors.New("bulk operation requires at least one item")
	ErrUnknownOperationType = errors.New("unknown bulk operation type")
	ErrSyncUnavailable      = errors.New("external sync requested but no provider is configured")
	ErrTemplateNameRequired = errors.New("template name is required")
	ErrEngineClosed         = errors.New("bulk engine is shutting down")
)

// ValidationError carries the row errors that stopped a submission before execution.
type ValidationError struct {
	Errors []models.RowError
}

func (e *ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return "validation failed: " + e.Errors[0].Error()
	default:
		return fmt.Sprintf("validation failed: %s (and %d more)", e.Errors[0].Error(), len(e.Errors)-1)
	}
}

// FatalRunError is a failure outside the per-item loop that aborted a run.
// Counters holds the tally accumulated before the abort.
type FatalRunError struct {
	Cause    error
	Counters models.Counters
}

func (e *FatalRunError) Error() string {
	return fmt.Sprintf("bulk run aborted after %d items: %v", e.Counters.ProcessedItems, e.Cause)
}

func (e *FatalRunError) Unwrap() error {
	return e.Cause
}
