// Package bulk runs bulk directory operations: it validates submitted rows, applies each
// record to the local system of record and optionally the external provider, and
// publishes live progress backed by the persisted operation record.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bulkadmin/internal/models"
	"github.com/wolfeidau/bulkadmin/internal/records"
	"github.com/wolfeidau/bulkadmin/internal/store"
	"github.com/wolfeidau/bulkadmin/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Dependencies are the collaborators of an Engine.
type Dependencies struct {
	Store    store.OperationStore
	Registry *Registry

	// Templates enables submission from a stored template.
	Templates store.TemplateStore

	// Hub serves live subscriptions, created from Store when nil.
	Hub *Hub
	// Notifier receives every persisted change, defaults to Hub.
	Notifier Notifier
}

// Engine accepts bulk submissions and runs them in the background.
type Engine struct {
	cfg       Config
	store     store.OperationStore
	templates store.TemplateStore
	registry  *Registry
	executor  *Executor
	hub       *Hub
	notifier  Notifier

	mu     sync.Mutex
	closed bool
	runs   sync.WaitGroup

	now func() time.Time
}

// NewEngine creates an engine. The registry is checked so an unknown operation type
// fails here rather than at submission.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if deps.Store == nil {
		return nil, errors.New("engine requires an operation store")
	}
	if deps.Registry == nil {
		return nil, errors.New("engine requires a mutation registry")
	}
	if err := deps.Registry.Check(false); err != nil {
		return nil, err
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.Store, cfg.SubscriberBuffer)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = hub
	}

	return &Engine{
		cfg:       cfg,
		store:     deps.Store,
		templates: deps.Templates,
		registry:  deps.Registry,
		executor:  NewExecutor(cfg),
		hub:       hub,
		notifier:  notifier,
		now:       time.Now,
	}, nil
}

// SubmitRequest is a batch of raw rows for one operation type.
type SubmitRequest struct {
	OperationType models.OperationType
	OperationName string
	SyncExternal  bool
	// Strict rejects the whole batch when any row fails validation.
	Strict bool
	Rows   []models.Row
	// TemplateID submits the rows of a stored template when Rows is empty.
	TemplateID uuid.UUID
}

// SubmitResult describes an accepted submission.
type SubmitResult struct {
	OperationID uuid.UUID
	Status      models.Status
	TotalItems  int
	Rejected    []models.RowError
	Estimate    Estimate
}

// Submit validates the rows, persists a pending operation and starts running it.
// Rows that fail validation are returned as rejected and never executed.
func (e *Engine) Submit(ctx context.Context, caller models.Caller, req SubmitRequest) (*SubmitResult, error) {
	if err := e.resolveTemplate(ctx, caller, &req); err != nil {
		return nil, err
	}

	mut, err := e.registry.Lookup(req.OperationType)
	if err != nil {
		return nil, err
	}
	if len(req.Rows) == 0 {
		return nil, ErrEmptyBatch
	}
	if req.SyncExternal && mut.External == nil {
		return nil, ErrSyncUnavailable
	}

	res := records.Validate(req.OperationType, req.Rows)
	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("operation_type", string(req.OperationType)))
	if len(res.Errors) > 0 {
		metrics.RowsRejectedTotal.Add(ctx, int64(len(res.Errors)), attrs)
	}
	if (req.Strict && !res.Valid()) || len(res.Records) == 0 {
		return nil, &ValidationError{Errors: res.Errors}
	}

	now := e.now()
	op := &models.BulkOperation{
		ID:            uuid.Must(uuid.NewV7()),
		OrgID:         caller.OrgID,
		OperationType: req.OperationType,
		OperationName: req.OperationName,
		SyncExternal:  req.SyncExternal,
		Status:        models.StatusPending,
		TotalItems:    len(res.Records),
		CreatedBy:     caller.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	e.runs.Add(1)
	e.mu.Unlock()

	if err := e.store.CreateOperation(ctx, op); err != nil {
		e.runs.Done()
		return nil, fmt.Errorf("failed to create operation: %w", err)
	}

	metrics.OperationsSubmittedTotal.Add(ctx, 1, attrs)

	log.Debug().
		Str("operation_id", op.ID.String()).
		Int("rejected_rows", len(res.Errors)).
		Msg("Starting bulk operation run")

	go e.run(context.WithoutCancel(ctx), op, mut, res.Records)

	return &SubmitResult{
		OperationID: op.ID,
		Status:      op.Status,
		TotalItems:  op.TotalItems,
		Rejected:    res.Errors,
		Estimate:    EstimateDuration(op.TotalItems, op.SyncExternal),
	}, nil
}

func (e *Engine) resolveTemplate(ctx context.Context, caller models.Caller, req *SubmitRequest) error {
	if req.TemplateID == uuid.Nil || len(req.Rows) > 0 {
		return nil
	}
	if e.templates == nil {
		return store.ErrTemplateNotFound
	}

	tmpl, err := e.templates.GetTemplate(ctx, caller.OrgID, req.TemplateID)
	if err != nil {
		return err
	}
	if req.OperationType == "" {
		req.OperationType = tmpl.OperationType
	}
	if req.OperationType != tmpl.OperationType {
		return fmt.Errorf("%w: template is for %s", ErrUnknownOperationType, tmpl.OperationType)
	}
	if req.OperationName == "" {
		req.OperationName = tmpl.Name
	}
	req.Rows = tmpl.TemplateData
	return nil
}

// run drives one operation to a terminal state.
func (e *Engine) run(ctx context.Context, op *models.BulkOperation, mut Mutation, recs []models.Record) {
	defer e.runs.Done()

	ctx, span := telemetry.Tracer().Start(ctx, "bulk.run", trace.WithAttributes(
		attribute.String("bulk.operation_id", op.ID.String()),
		attribute.String("bulk.operation_type", string(op.OperationType)),
		attribute.Int("bulk.total_items", op.TotalItems),
	))
	defer span.End()

	logger := log.With().
		Str("operation_id", op.ID.String()).
		Str("org_id", op.OrgID.String()).
		Str("operation_type", string(op.OperationType)).
		Logger()

	pub := newPublisher(e.store, e.notifier, op)

	var runErr error
	processing, err := e.store.MarkProcessing(ctx, op.ID)
	if err != nil {
		runErr = &FatalRunError{Cause: fmt.Errorf("failed to start operation: %w", err)}
	} else {
		pub.notify(ctx, processing)
		logger.Info().Int("total_items", op.TotalItems).Msg("Bulk operation started")
		runErr = e.executor.Run(ctx, op, mut, recs, pub.Record)
	}

	var fatal *FatalRunError
	if errors.As(runErr, &fatal) {
		fatal.Counters = pub.Counters()
	}

	final, err := pub.Finish(ctx, runErr)
	if err != nil {
		logger.Error().Err(err).AnErr("run_error", runErr).Msg("Failed to record bulk operation result")
		telemetry.GetMetrics().OperationsFailedTotal.Add(ctx, 1)
		return
	}

	attrs := metric.WithAttributes(attribute.String("operation_type", string(op.OperationType)))
	if final.Status == models.StatusFailed {
		telemetry.GetMetrics().OperationsFailedTotal.Add(ctx, 1, attrs)
		logger.Error().
			Str("error_message", final.ErrorMessage).
			Int("processed_items", final.ProcessedItems).
			Int("success_count", final.SuccessCount).
			Int("failure_count", final.FailureCount).
			Msg("Bulk operation failed")
		return
	}

	telemetry.GetMetrics().OperationsCompletedTotal.Add(ctx, 1, attrs)
	logger.Info().
		Int("success_count", final.SuccessCount).
		Int("failure_count", final.FailureCount).
		Msg("Bulk operation completed")
}

// PreviewResult is the outcome of validating rows without submitting them.
type PreviewResult struct {
	Records  []models.Record
	Errors   []models.RowError
	Estimate Estimate
}

// Validate checks rows against the rules of opType and estimates the valid part.
func (e *Engine) Validate(opType models.OperationType, rows []models.Row, syncExternal bool) (*PreviewResult, error) {
	if _, err := e.registry.Lookup(opType); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyBatch
	}

	res := records.Validate(opType, rows)
	return &PreviewResult{
		Records:  res.Records,
		Errors:   res.Errors,
		Estimate: EstimateDuration(len(res.Records), syncExternal),
	}, nil
}

// StatusResult is the current state of an operation with the estimated time left.
type StatusResult struct {
	Operation *models.BulkOperation
	Remaining Estimate
}

// Status reads the persisted operation, the same record live events are built from.
func (e *Engine) Status(ctx context.Context, caller models.Caller, id uuid.UUID) (*StatusResult, error) {
	op, err := e.store.GetOperation(ctx, caller.OrgID, id)
	if err != nil {
		return nil, err
	}

	var remaining Estimate
	if !op.Status.Terminal() {
		remaining = EstimateDuration(op.TotalItems-op.ProcessedItems, op.SyncExternal)
	}

	return &StatusResult{Operation: op, Remaining: remaining}, nil
}

// History lists the caller's organization operations, newest first.
func (e *Engine) History(ctx context.Context, caller models.Caller, limit int) ([]*models.BulkOperation, error) {
	return e.store.ListOperations(ctx, caller.OrgID, limit)
}

// Subscribe attaches a live observer to an operation of the caller's organization.
func (e *Engine) Subscribe(ctx context.Context, caller models.Caller, id uuid.UUID) (*Subscription, error) {
	return e.hub.Subscribe(ctx, caller.OrgID, id)
}

// Unsubscribe detaches an observer.
func (e *Engine) Unsubscribe(sub *Subscription) {
	e.hub.Unsubscribe(sub)
}

// SyncAvailable reports whether submissions may request external sync.
func (e *Engine) SyncAvailable() bool {
	return e.registry.SyncAvailable()
}

// Wait blocks until every started run has finished or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting submissions and waits for in-flight runs.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	return e.Wait(ctx)
}
