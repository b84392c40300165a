package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Row is one raw parsed CSV row: column name -> value.
type Row map[string]string

// Record is a validated, cleaned item ready for execution.
type Record struct {
	Row         int // index of the source row in the submitted batch
	Email       string
	FirstName   string
	LastName    string
	Password    string
	OrgUnitPath string
	GroupEmail  string
	Role        string
	Suspended   *bool
}

// Identity is the natural key reported in item outcomes.
func (r Record) Identity() string {
	return r.Email
}

// RowError describes why a raw row was rejected.
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d: %s: %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// Caller is the authenticated identity attached to every engine call.
type Caller struct {
	OrgID  uuid.UUID
	UserID uuid.UUID
}
