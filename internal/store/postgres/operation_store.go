package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bulkadmin/internal/models"
	"github.com/wolfeidau/bulkadmin/internal/store"
)

const operationColumns = `id, org_id, operation_type, operation_name, sync_external, status, total_items,
	processed_items, success_count, failure_count, results, error_message, created_by, created_at, updated_at`

// OperationStore implements store.OperationStore using PostgreSQL.
// State changes lock the row and apply the same rules as every other store.
type OperationStore struct {
	pool *pgxpool.Pool
	cfg  StoreConfig
	now  func() time.Time
}

var _ store.OperationStore = (*OperationStore)(nil)

// NewOperationStore creates a PostgreSQL-backed operation store.
func NewOperationStore(pool *pgxpool.Pool, cfg StoreConfig) *OperationStore {
	cfg.ApplyDefaults()
	return &OperationStore{pool: pool, cfg: cfg, now: time.Now}
}

func (s *OperationStore) CreateOperation(ctx context.Context, op *models.BulkOperation) error {
	if op.Status != models.StatusPending {
		return fmt.Errorf("%w: new operation must be pending, got %s", store.ErrInvalidTransition, op.Status)
	}

	ctx, cancel := s.cfg.queryContext(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO bulk_operations (id, org_id, operation_type, operation_name, sync_external, status,
			total_items, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, op.ID, op.OrgID, string(op.OperationType), op.OperationName, op.SyncExternal, string(op.Status),
		op.TotalItems, op.CreatedBy, op.CreatedAt, op.UpdatedAt)
	if err != nil {
		return mapPostgresError(err)
	}

	return nil
}

func (s *OperationStore) GetOperation(ctx context.Context, orgID, id uuid.UUID) (*models.BulkOperation, error) {
	ctx, cancel := s.cfg.queryContext(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+operationColumns+` FROM bulk_operations WHERE org_id = $1 AND id = $2`, orgID, id)
	op, err := scanOperation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrOperationNotFound
	}
	if err != nil {
		return nil, mapPostgresError(err)
	}

	return op, nil
}

// ListOperations returns the newest operations of orgID first. Item results are not loaded.
func (s *OperationStore) ListOperations(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.BulkOperation, error) {
	ctx, cancel := s.cfg.queryContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, org_id, operation_type, operation_name, sync_external, status, total_items,
			processed_items, success_count, failure_count, NULL::jsonb, error_message, created_by, created_at, updated_at
		FROM bulk_operations
		WHERE org_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, orgID, store.NormaliseLimit(limit))
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var result []*models.BulkOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		result = append(result, op)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return result, nil
}

func (s *OperationStore) MarkProcessing(ctx context.Context, id uuid.UUID) (*models.BulkOperation, error) {
	return s.update(ctx, id, func(op *models.BulkOperation, now time.Time) error {
		return store.Transition(op, models.StatusProcessing, now)
	})
}

func (s *OperationStore) UpdateProgress(ctx context.Context, id uuid.UUID, counters models.Counters) (*models.BulkOperation, error) {
	return s.update(ctx, id, func(op *models.BulkOperation, now time.Time) error {
		return store.ApplyProgress(op, counters, now)
	})
}

func (s *OperationStore) FinishOperation(ctx context.Context, id uuid.UUID, result store.FinishResult) (*models.BulkOperation, error) {
	op, err := s.update(ctx, id, func(op *models.BulkOperation, now time.Time) error {
		return store.ApplyFinish(op, result, now)
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("operation_id", id.String()).
		Str("status", string(op.Status)).
		Int("processed_items", op.ProcessedItems).
		Msg("Finished bulk operation")

	return op, nil
}

// update loads the row FOR UPDATE, applies fn and writes the mutable columns back.
func (s *OperationStore) update(ctx context.Context, id uuid.UUID, fn func(op *models.BulkOperation, now time.Time) error) (*models.BulkOperation, error) {
	ctx, cancel := s.cfg.queryContext(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	op, err := scanOperation(tx.QueryRow(ctx, `SELECT `+operationColumns+` FROM bulk_operations WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrOperationNotFound
	}
	if err != nil {
		return nil, mapPostgresError(err)
	}

	if err := fn(op, s.now()); err != nil {
		return nil, err
	}

	results, err := marshalResults(op.Results)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE bulk_operations
		SET status = $2, processed_items = $3, success_count = $4, failure_count = $5,
			results = $6, error_message = $7, updated_at = $8
		WHERE id = $1
	`, id, string(op.Status), op.ProcessedItems, op.SuccessCount, op.FailureCount, results, op.ErrorMessage, op.UpdatedAt)
	if err != nil {
		return nil, mapPostgresError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapPostgresError(err)
	}

	return op, nil
}

func marshalResults(results []models.ItemOutcome) ([]byte, error) {
	if results == nil {
		return nil, nil
	}
	data, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}
	return data, nil
}

func scanOperation(row pgx.Row) (*models.BulkOperation, error) {
	var (
		op            models.BulkOperation
		operationType string
		status        string
		results       []byte
	)

	err := row.Scan(&op.ID, &op.OrgID, &operationType, &op.OperationName, &op.SyncExternal, &status,
		&op.TotalItems, &op.ProcessedItems, &op.SuccessCount, &op.FailureCount, &results, &op.ErrorMessage,
		&op.CreatedBy, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		return nil, err
	}

	op.OperationType = models.OperationType(operationType)
	op.Status = models.Status(status)

	if len(results) > 0 {
		if err := json.Unmarshal(results, &op.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results: %w", err)
		}
	}

	return &op, nil
}
