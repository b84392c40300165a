// Package records turns raw parsed rows into typed records for a given operation type.
package records

import (
	"net/mail"
	"strings"

	"github.com/wolfeidau/bulkadmin/internal/models"
)

const (
	ColumnEmail       = "email"
	ColumnFirstName   = "firstName"
	ColumnLastName    = "lastName"
	ColumnPassword    = "password"
	ColumnOrgUnitPath = "orgUnitPath"
	ColumnGroupEmail  = "groupEmail"
	ColumnRole        = "role"
	ColumnSuspended   = "suspended"

	DefaultOrgUnitPath = "/"
	DefaultRole        = "MEMBER"

	minPasswordLength = 8
)

// normalised header -> canonical column
var columnAliases = map[string]string{
	"email":        ColumnEmail,
	"primaryemail": ColumnEmail,
	"useremail":    ColumnEmail,
	"memberemail":  ColumnEmail,
	"firstname":    ColumnFirstName,
	"givenname":    ColumnFirstName,
	"lastname":     ColumnLastName,
	"familyname":   ColumnLastName,
	"password":     ColumnPassword,
	"orgunitpath":  ColumnOrgUnitPath,
	"orgunit":      ColumnOrgUnitPath,
	"ou":           ColumnOrgUnitPath,
	"groupemail":   ColumnGroupEmail,
	"group":        ColumnGroupEmail,
	"role":         ColumnRole,
	"suspended":    ColumnSuspended,
}

var validRoles = map[string]bool{
	"MEMBER":  true,
	"MANAGER": true,
	"OWNER":   true,
}

// Result holds the typed records and the per-row errors of one validation pass.
type Result struct {
	Records []models.Record
	Errors  []models.RowError
}

// Valid reports whether every row passed.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// Validate checks rows against the rule set of the operation type.
// Every row produces either one record or at least one error, never both.
func Validate(opType models.OperationType, rows []models.Row) Result {
	var res Result
	for i, raw := range rows {
		rec, errs := validateRow(opType, i, normalise(raw))
		if len(errs) > 0 {
			res.Errors = append(res.Errors, errs...)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res
}

// NormaliseHeader maps a raw header onto its canonical column name, or "" when unknown.
func NormaliseHeader(h string) string {
	key := strings.ToLower(strings.TrimSpace(h))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	return columnAliases[key]
}

func normalise(raw models.Row) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		col := NormaliseHeader(k)
		if col == "" {
			continue
		}
		out[col] = strings.TrimSpace(v)
	}
	return out
}

type rowChecker struct {
	row  int
	vals map[string]string
	errs []models.RowError
}

func (c *rowChecker) fail(column, message string) {
	c.errs = append(c.errs, models.RowError{Row: c.row, Column: column, Message: message})
}

func (c *rowChecker) required(column string) string {
	v := c.vals[column]
	if v == "" {
		c.fail(column, "is required")
	}
	return v
}

func (c *rowChecker) email(column string, required bool) string {
	v := strings.ToLower(c.vals[column])
	if v == "" {
		if required {
			c.fail(column, "is required")
		}
		return ""
	}
	if !validEmail(v) {
		c.fail(column, "is not a valid email address")
	}
	return v
}

func (c *rowChecker) orgUnit(required bool) string {
	v := c.vals[ColumnOrgUnitPath]
	if v == "" {
		if required {
			c.fail(ColumnOrgUnitPath, "is required")
		}
		return ""
	}
	if !strings.HasPrefix(v, "/") {
		c.fail(ColumnOrgUnitPath, "must start with /")
	}
	return v
}

func (c *rowChecker) suspended() *bool {
	v, ok := c.vals[ColumnSuspended]
	if !ok || v == "" {
		return nil
	}
	b, ok := parseBool(v)
	if !ok {
		c.fail(ColumnSuspended, "must be true or false")
		return nil
	}
	return &b
}

func validateRow(opType models.OperationType, row int, vals map[string]string) (models.Record, []models.RowError) {
	c := &rowChecker{row: row, vals: vals}
	rec := models.Record{Row: row}

	switch opType {
	case models.OperationUserUpdate:
		rec.Email = c.email(ColumnEmail, true)
		rec.FirstName = vals[ColumnFirstName]
		rec.LastName = vals[ColumnLastName]
		rec.OrgUnitPath = c.orgUnit(false)
		rec.Suspended = c.suspended()
		if rec.FirstName == "" && rec.LastName == "" && vals[ColumnOrgUnitPath] == "" && vals[ColumnSuspended] == "" {
			c.fail("", "at least one of firstName, lastName, orgUnitPath or suspended must be set")
		}

	case models.OperationUserCreate:
		rec.Email = c.email(ColumnEmail, true)
		rec.FirstName = c.required(ColumnFirstName)
		rec.LastName = c.required(ColumnLastName)
		rec.Password = vals[ColumnPassword]
		if rec.Password != "" && len(rec.Password) < minPasswordLength {
			c.fail(ColumnPassword, "must be at least 8 characters")
		}
		rec.OrgUnitPath = c.orgUnit(false)
		if rec.OrgUnitPath == "" {
			rec.OrgUnitPath = DefaultOrgUnitPath
		}
		rec.Suspended = c.suspended()

	case models.OperationUserSuspend, models.OperationUserDelete:
		rec.Email = c.email(ColumnEmail, true)

	case models.OperationGroupMembershipAdd:
		rec.Email = c.email(ColumnEmail, true)
		rec.GroupEmail = c.email(ColumnGroupEmail, true)
		rec.Role = strings.ToUpper(vals[ColumnRole])
		if rec.Role == "" {
			rec.Role = DefaultRole
		}
		if !validRoles[rec.Role] {
			c.fail(ColumnRole, "must be one of MEMBER, MANAGER, OWNER")
		}

	case models.OperationGroupMembershipRemove:
		rec.Email = c.email(ColumnEmail, true)
		rec.GroupEmail = c.email(ColumnGroupEmail, true)

	case models.OperationMoveOU:
		rec.Email = c.email(ColumnEmail, true)
		rec.OrgUnitPath = c.orgUnit(true)

	default:
		c.fail("", "unsupported operation type "+string(opType))
	}

	return rec, c.errs
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	_, domain, ok := strings.Cut(s, "@")
	return ok && strings.Contains(domain, ".")
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "yes", "y", "1":
		return true, true
	case "false", "no", "n", "0":
		return false, true
	}
	return false, false
}
