package models

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// BulkTemplate is a named, reusable set of rows for one operation type.
// Names are unique within an organization.
type BulkTemplate struct {
	ID            uuid.UUID // UUIDv7
	OrgID         uuid.UUID
	Name          string
	Description   string
	OperationType OperationType
	TemplateData  []Row
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone returns a deep copy of the template.
func (t *BulkTemplate) Clone() *BulkTemplate {
	clone := *t
	if t.TemplateData != nil {
		clone.TemplateData = make([]Row, len(t.TemplateData))
		for i, row := range t.TemplateData {
			clone.TemplateData[i] = maps.Clone(row)
		}
	}
	return &clone
}
