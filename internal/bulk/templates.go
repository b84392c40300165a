package bulk

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/bulkadmin/internal/models"
	"github.com/wolfeidau/bulkadmin/internal/store"
)

// TemplateInput holds the user editable fields of a template.
type TemplateInput struct {
	Name          string
	Description   string
	OperationType models.OperationType
	Rows          []models.Row
}

// Templates manages the named row sets an organization reuses for submissions.
type Templates struct {
	store    store.TemplateStore
	registry *Registry
	now      func() time.Time
}

// NewTemplates creates the template service.
func NewTemplates(st store.TemplateStore, registry *Registry) *Templates {
	return &Templates{store: st, registry: registry, now: time.Now}
}

func (t *Templates) check(in *TemplateInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return ErrTemplateNameRequired
	}
	_, err := t.registry.Lookup(in.OperationType)
	return err
}

// Create stores a new template owned by the caller's organization.
func (t *Templates) Create(ctx context.Context, caller models.Caller, in TemplateInput) (*models.BulkTemplate, error) {
	if err := t.check(&in); err != nil {
		return nil, err
	}

	now := t.now()
	tmpl := &models.BulkTemplate{
		ID:            uuid.Must(uuid.NewV7()),
		OrgID:         caller.OrgID,
		Name:          in.Name,
		Description:   in.Description,
		OperationType: in.OperationType,
		TemplateData:  in.Rows,
		CreatedBy:     caller.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := t.store.CreateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// Get returns a template of the caller's organization.
func (t *Templates) Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.BulkTemplate, error) {
	return t.store.GetTemplate(ctx, caller.OrgID, id)
}

// List returns the caller's templates ordered by name, optionally of one operation type.
func (t *Templates) List(ctx context.Context, caller models.Caller, opType models.OperationType) ([]*models.BulkTemplate, error) {
	if opType != "" {
		if _, err := t.registry.Lookup(opType); err != nil {
			return nil, err
		}
	}
	return t.store.ListTemplates(ctx, caller.OrgID, opType)
}

// Update replaces the editable fields of a template.
func (t *Templates) Update(ctx context.Context, caller models.Caller, id uuid.UUID, in TemplateInput) (*models.BulkTemplate, error) {
	if err := t.check(&in); err != nil {
		return nil, err
	}

	tmpl, err := t.store.GetTemplate(ctx, caller.OrgID, id)
	if err != nil {
		return nil, err
	}

	tmpl.Name = in.Name
	tmpl.Description = in.Description
	tmpl.OperationType = in.OperationType
	tmpl.TemplateData = in.Rows
	tmpl.UpdatedAt = t.now()

	if err := t.store.UpdateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}
	return t.store.GetTemplate(ctx, caller.OrgID, id)
}

// Delete removes a template. Operations never reference templates, so deletion is always allowed.
func (t *Templates) Delete(ctx context.Context, caller models.Caller, id uuid.UUID) error {
	return t.store.DeleteTemplate(ctx, caller.OrgID, id)
}
