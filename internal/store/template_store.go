package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/bulkadmin/internal/models"
)

// Sentinel errors for template store operations
var (
	ErrTemplateNotFound  = errors.New("bulk template not found")
	ErrTemplateNameTaken = errors.New("bulk template name already exists in organization")
)

// TemplateStore defines the interface for bulk template storage operations.
// Templates are scoped to an organization and carry no references to operations.
type TemplateStore interface {
	// CreateTemplate stores a new template.
	// Returns ErrTemplateNameTaken if the organization already has a template with the same name.
	CreateTemplate(ctx context.Context, tmpl *models.BulkTemplate) error

	// GetTemplate retrieves a template owned by orgID.
	// Returns ErrTemplateNotFound if it doesn't exist or belongs to another organization.
	GetTemplate(ctx context.Context, orgID, id uuid.UUID) (*models.BulkTemplate, error)

	// ListTemplates returns the templates of orgID ordered by name.
	// An empty opType returns templates of every operation type.
	ListTemplates(ctx context.Context, orgID uuid.UUID, opType models.OperationType) ([]*models.BulkTemplate, error)

	// UpdateTemplate replaces name, description, operation type and data of an existing template.
	UpdateTemplate(ctx context.Context, tmpl *models.BulkTemplate) error

	// DeleteTemplate removes a template owned by orgID.
	DeleteTemplate(ctx context.Context, orgID, id uuid.UUID) error
}
