package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/bulkadmin/internal/models"
	"github.com/wolfeidau/bulkadmin/internal/store"
)

// TemplateStore implements store.TemplateStore using in-memory storage.
// This implementation is for testing and development - data is lost on restart.
type TemplateStore struct {
	mu sync.RWMutex

	templates map[uuid.UUID]*models.BulkTemplate // template ID -> BulkTemplate
}

var _ store.TemplateStore = (*TemplateStore)(nil)

// NewTemplateStore creates a new in-memory template store.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{
		templates: make(map[uuid.UUID]*models.BulkTemplate),
	}
}

// CreateTemplate stores a new template.
func (s *TemplateStore) CreateTemplate(ctx context.Context, tmpl *models.BulkTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTaken(tmpl.OrgID, tmpl.Name, uuid.Nil) {
		return store.ErrTemplateNameTaken
	}

	s.templates[tmpl.ID] = tmpl.Clone()
	return nil
}

// GetTemplate retrieves a template owned by orgID.
func (s *TemplateStore) GetTemplate(ctx context.Context, orgID, id uuid.UUID) (*models.BulkTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tmpl, exists := s.templates[id]
	if !exists || tmpl.OrgID != orgID {
		return nil, store.ErrTemplateNotFound
	}

	return tmpl.Clone(), nil
}

// ListTemplates returns the templates of orgID ordered by name.
func (s *TemplateStore) ListTemplates(ctx context.Context, orgID uuid.UUID, opType models.OperationType) ([]*models.BulkTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.BulkTemplate
	for _, tmpl := range s.templates {
		if tmpl.OrgID != orgID {
			continue
		}
		if opType != "" && tmpl.OperationType != opType {
			continue
		}
		result = append(result, tmpl.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

// UpdateTemplate replaces an existing template.
func (s *TemplateStore) UpdateTemplate(ctx context.Context, tmpl *models.BulkTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.templates[tmpl.ID]
	if !exists || existing.OrgID != tmpl.OrgID {
		return store.ErrTemplateNotFound
	}

	if s.nameTaken(tmpl.OrgID, tmpl.Name, tmpl.ID) {
		return store.ErrTemplateNameTaken
	}

	tmpl.CreatedAt = existing.CreatedAt
	tmpl.CreatedBy = existing.CreatedBy
	tmpl.UpdatedAt = time.Now()

	s.templates[tmpl.ID] = tmpl.Clone()
	return nil
}

// DeleteTemplate removes a template owned by orgID.
func (s *TemplateStore) DeleteTemplate(ctx context.Context, orgID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpl, exists := s.templates[id]
	if !exists || tmpl.OrgID != orgID {
		return store.ErrTemplateNotFound
	}

	delete(s.templates, id)
	return nil
}

// nameTaken reports whether another template of the org uses name. Must be called with lock held.
func (s *TemplateStore) nameTaken(orgID uuid.UUID, name string, except uuid.UUID) bool {
	for id, tmpl := range s.templates {
		if id == except || tmpl.OrgID != orgID {
			continue
		}
		if strings.EqualFold(tmpl.Name, name) {
			return true
		}
	}
	return false
}
