package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bulkadmin/internal/models"
	"github.com/wolfeidau/bulkadmin/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// OutcomeSink receives each item outcome as soon as the item finishes.
type OutcomeSink func(ctx context.Context, pos int, outcome models.ItemOutcome) error

// Executor applies the mutations of one operation to its records with bounded concurrency.
type Executor struct {
	concurrency     int
	externalTimeout time.Duration
}

// NewExecutor creates an executor from the engine config.
func NewExecutor(cfg Config) *Executor {
	cfg.ApplyDefaults()
	return &Executor{
		concurrency:     cfg.Concurrency,
		externalTimeout: cfg.ExternalTimeout,
	}
}

// Run executes every record and hands each outcome to sink. Per-item failures are
// captured in the outcome; only a sink error stops the run, returned as a FatalRunError.
func (e *Executor) Run(ctx context.Context, op *models.BulkOperation, mut Mutation, recs []models.Record, sink OutcomeSink) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for pos, rec := range recs {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			outcome := e.execute(gctx, op, mut, rec)
			if err := sink(gctx, pos, outcome); err != nil {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return &FatalRunError{Cause: err}
	}
	return ctx.Err()
}

func (e *Executor) execute(ctx context.Context, op *models.BulkOperation, mut Mutation, rec models.Record) models.ItemOutcome {
	ctx, span := telemetry.Tracer().Start(ctx, "bulk.item", trace.WithAttributes(
		attribute.String("bulk.operation_id", op.ID.String()),
		attribute.String("bulk.operation_type", string(op.OperationType)),
		attribute.Int("bulk.item_index", rec.Row),
	))
	defer span.End()

	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("operation_type", string(op.OperationType)))
	start := time.Now()

	outcome := models.ItemOutcome{
		Index:    rec.Row,
		Identity: rec.Identity(),
	}

	defer func() {
		metrics.ItemsProcessedTotal.Add(ctx, 1, attrs)
		metrics.ItemDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	}()

	if err := call(ctx, mut.Local, op, rec); err != nil {
		outcome.Local = models.TargetResult{Error: err.Error()}
		metrics.LocalFailuresTotal.Add(ctx, 1, attrs)
		span.SetStatus(codes.Error, "local mutation failed")
		span.RecordError(err)
		log.Debug().
			Err(err).
			Str("operation_id", op.ID.String()).
			Int("index", rec.Row).
			Str("identity", rec.Identity()).
			Msg("Local mutation failed, skipping external sync")
		return outcome
	}
	outcome.Local = models.TargetResult{Success: true}

	if !op.SyncExternal {
		return outcome
	}

	extCtx, cancel := context.WithTimeout(ctx, e.externalTimeout)
	err := call(extCtx, mut.External, op, rec)
	cancel()

	if err != nil {
		outcome.External = &models.TargetResult{Error: err.Error()}
		metrics.ExternalFailuresTotal.Add(ctx, 1, attrs)
		span.SetStatus(codes.Error, "external sync failed")
		span.RecordError(err)
		log.Debug().
			Err(err).
			Str("operation_id", op.ID.String()).
			Int("index", rec.Row).
			Str("identity", rec.Identity()).
			Msg("External sync failed")
		return outcome
	}
	outcome.External = &models.TargetResult{Success: true}

	return outcome
}

// call runs a mutation, turning a panic into an item error.
func call(ctx context.Context, fn MutationFunc, op *models.BulkOperation, rec models.Record) (err error) {
	if fn == nil {
		return ErrSyncUnavailable
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mutation panicked: %v", r)
		}
	}()

	return fn(ctx, op.OrgID, rec)
}
