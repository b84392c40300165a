package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationType identifies the mutation applied to every item of a bulk operation.
type OperationType string

const (
	OperationUserUpdate            OperationType = "user_update"
	OperationUserCreate            OperationType = "user_create"
	OperationUserSuspend           OperationType = "user_suspend"
	OperationUserDelete            OperationType = "user_delete"
	OperationGroupMembershipAdd    OperationType = "group_membership_add"
	OperationGroupMembershipRemove OperationType = "group_membership_remove"
	OperationMoveOU                OperationType = "move_ou"
)

// OperationTypes lists every supported operation type in a stable order.
var OperationTypes = []OperationType{
	OperationUserUpdate,
	OperationUserCreate,
	OperationUserSuspend,
	OperationUserDelete,
	OperationGroupMembershipAdd,
	OperationGroupMembershipRemove,
	OperationMoveOU,
}

// ParseOperationType converts a wire value into an OperationType.
func ParseOperationType(s string) (OperationType, error) {
	for _, t := range OperationTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown operation type %q", s)
}

// Status is the lifecycle state of a bulk operation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next respects pending -> processing -> {completed, failed}.
// A pending operation may fail directly when the run aborts before any item starts.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Counters is the running tally of a bulk operation.
type Counters struct {
	ProcessedItems int `json:"processed_items"`
	SuccessCount   int `json:"success_count"`
	FailureCount   int `json:"failure_count"`
}

// Add folds one item outcome into the tally.
func (c *Counters) Add(outcome ItemOutcome) {
	c.ProcessedItems++
	if outcome.Succeeded() {
		c.SuccessCount++
	} else {
		c.FailureCount++
	}
}

// BulkOperation is a single submitted batch tracked end-to-end.
type BulkOperation struct {
	ID            uuid.UUID // UUIDv7
	OrgID         uuid.UUID
	OperationType OperationType
	OperationName string
	SyncExternal  bool
	Status        Status
	TotalItems    int
	Counters
	Results      []ItemOutcome
	ErrorMessage string
	CreatedBy    uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Progress returns floor(processed / total * 100).
func (op *BulkOperation) Progress() int {
	if op.TotalItems <= 0 {
		return 0
	}
	return op.ProcessedItems * 100 / op.TotalItems
}

// Clone returns a deep copy so stores never share result slices with callers.
func (op *BulkOperation) Clone() *BulkOperation {
	clone := *op
	if op.Results != nil {
		clone.Results = make([]ItemOutcome, len(op.Results))
		for i, r := range op.Results {
			clone.Results[i] = r.Clone()
		}
	}
	return &clone
}

// Snapshot returns the counters view used by both push and pull delivery.
func (op *BulkOperation) Snapshot() Snapshot {
	return Snapshot{
		OperationID:  op.ID,
		OrgID:        op.OrgID,
		Status:       op.Status,
		TotalItems:   op.TotalItems,
		Counters:     op.Counters,
		Progress:     op.Progress(),
		ErrorMessage: op.ErrorMessage,
		UpdatedAt:    op.UpdatedAt,
	}
}

// Snapshot is the full current counters of an operation at one instant.
type Snapshot struct {
	OperationID uuid.UUID
	OrgID       uuid.UUID
	Status      Status
	TotalItems  int
	Counters
	Progress     int
	ErrorMessage string
	UpdatedAt    time.Time
}

// TargetResult is the outcome of one mutation against one write target.
type TargetResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ItemOutcome records the independent local and external results for one record.
type ItemOutcome struct {
	Index    int           `json:"index"`
	Identity string        `json:"identity"`
	Local    TargetResult  `json:"local_result"`
	External *TargetResult `json:"external_result,omitempty"`
}

// Succeeded is true only when the local write succeeded and the external sync, if attempted, succeeded.
func (o ItemOutcome) Succeeded() bool {
	if !o.Local.Success {
		return false
	}
	return o.External == nil || o.External.Success
}

func (o ItemOutcome) Clone() ItemOutcome {
	if o.External != nil {
		ext := *o.External
		o.External = &ext
	}
	return o
}
