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
	"github.com/wolfeidau/bulkadmin/internal/models"
	"github.com/wolfeidau/bulkadmin/internal/store"
)

const templateColumns = `id, org_id, name, description, operation_type, template_data, created_by, created_at, updated_at`

// TemplateStore implements store.TemplateStore using PostgreSQL.
type TemplateStore struct {
	pool *pgxpool.Pool
	cfg  StoreConfig
}

var _ store.TemplateStore = (*TemplateStore)(nil)

// NewTemplateStore creates a PostgreSQL-backed template store.
func NewTemplateStore(pool *pgxpool.Pool, cfg StoreConfig) *TemplateStore {
	cfg.ApplyDefaults()
	return &TemplateStore{pool: pool, cfg: cfg}
}

func (s *TemplateStore) CreateTemplate(ctx context.Context, tmpl *models.BulkTemplate) error {
	data, err := marshalTemplateData(tmpl.TemplateData)
	if err != nil {
		return err
	}

	ctx, cancel := s.cfg.queryContext(ctx)
	defer cancel()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO bulk_templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, tmpl.ID, tmpl.OrgID, tmpl.Name, tmpl.Description, string(tmpl.OperationType), data,
		tmpl.CreatedBy, tmpl.CreatedAt, tmpl.UpdatedAt)
	if err != nil {
		return mapPostgresError(err)
	}

	return nil
}

func (s *TemplateStore) GetTemplate(ctx context.Context, orgID, id uuid.UUID) (*models.BulkTemplate, error) {
	ctx, cancel := s.cfg.queryContext(ctx)
	defer cancel()

	tmpl, err := scanTemplate(s.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM bulk_templates WHERE org_id = $1 AND id = $2`, orgID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrTemplateNotFound
	}
	if err != nil {
		return nil, mapPostgresError(err)
	}

	return tmpl, nil
}

func (s *TemplateStore) ListTemplates(ctx context.Context, orgID uuid.UUID, opType models.OperationType) ([]*models.BulkTemplate, error) {
	ctx, cancel := s.cfg.queryContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+templateColumns+`
		FROM bulk_templates
		WHERE org_id = $1 AND ($2 = '' OR operation_type = $2)
		ORDER BY name, id
	`, orgID, string(opType))
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var result []*models.BulkTemplate
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		result = append(result, tmpl)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return result, nil
}

// UpdateTemplate replaces the mutable fields. CreatedAt and CreatedBy keep their stored values.
func (s *TemplateStore) UpdateTemplate(ctx context.Context, tmpl *models.BulkTemplate) error {
	data, err := marshalTemplateData(tmpl.TemplateData)
	if err != nil {
		return err
	}

	ctx, cancel := s.cfg.queryContext(ctx)
	defer cancel()

	tmpl.UpdatedAt = time.Now()

	err = s.pool.QueryRow(ctx, `
		UPDATE bulk_templates
		SET name = $3, description = $4, operation_type = $5, template_data = $6, updated_at = $7
		WHERE org_id = $1 AND id = $2
		RETURNING created_by, created_at
	`, tmpl.OrgID, tmpl.ID, tmpl.Name, tmpl.Description, string(tmpl.OperationType), data, tmpl.UpdatedAt).
		Scan(&tmpl.CreatedBy, &tmpl.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrTemplateNotFound
	}
	if err != nil {
		return mapPostgresError(err)
	}

	return nil
}

func (s *TemplateStore) DeleteTemplate(ctx context.Context, orgID, id uuid.UUID) error {
	ctx, cancel := s.cfg.queryContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM bulk_templates WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return mapPostgresError(err)
	}

	if tag.RowsAffected() == 0 {
		return store.ErrTemplateNotFound
	}

	return nil
}

func marshalTemplateData(rows []models.Row) ([]byte, error) {
	if rows == nil {
		rows = []models.Row{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template data: %w", err)
	}
	return data, nil
}

func scanTemplate(row pgx.Row) (*models.BulkTemplate, error) {
	var (
		tmpl          models.BulkTemplate
		operationType string
		data          []byte
	)

	err := row.Scan(&tmpl.ID, &tmpl.OrgID, &tmpl.Name, &tmpl.Description, &operationType, &data,
		&tmpl.CreatedBy, &tmpl.CreatedAt, &tmpl.UpdatedAt)
	if err != nil {
		return nil, err
	}

	tmpl.OperationType = models.OperationType(operationType)

	if err := json.Unmarshal(data, &tmpl.TemplateData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template data: %w", err)
	}

	return &tmpl, nil
}
