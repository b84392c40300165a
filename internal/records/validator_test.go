package records

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/bulkadmin/internal/models"
)

func TestValidateSuspendRejectsBadEmail(t *testing.T) {
	res := Validate(models.OperationUserSuspend, []models.Row{
		{"email": "a@x.com"},
		{"email": "bad"},
	})

	require.False(t, res.Valid())
	require.Len(t, res.Records, 1)
	require.Equal(t, "a@x.com", res.Records[0].Email)
	require.Equal(t, 0, res.Records[0].Row)

	require.Len(t, res.Errors, 1)
	require.Equal(t, 1, res.Errors[0].Row)
	require.Equal(t, ColumnEmail, res.Errors[0].Column)
}

func TestValidateCleansValues(t *testing.T) {
	res := Validate(models.OperationUserCreate, []models.Row{
		{" Primary_Email ": "  Jane.Doe@Example.COM ", "Given Name": " Jane ", "family-name": "Doe"},
	})

	require.True(t, res.Valid())
	rec := res.Records[0]
	require.Equal(t, "jane.doe@example.com", rec.Email)
	require.Equal(t, "Jane", rec.FirstName)
	require.Equal(t, "Doe", rec.LastName)
	require.Equal(t, DefaultOrgUnitPath, rec.OrgUnitPath)
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name    string
		opType  models.OperationType
		row     models.Row
		wantErr string
	}{
		{
			name:    "create requires names",
			opType:  models.OperationUserCreate,
			row:     models.Row{"email": "a@x.com"},
			wantErr: ColumnFirstName,
		},
		{
			name:    "create rejects short password",
			opType:  models.OperationUserCreate,
			row:     models.Row{"email": "a@x.com", "firstName": "A", "lastName": "B", "password": "short"},
			wantErr: ColumnPassword,
		},
		{
			name:    "update needs a field to change",
			opType:  models.OperationUserUpdate,
			row:     models.Row{"email": "a@x.com"},
			wantErr: "",
		},
		{
			name:    "update rejects bad suspended flag",
			opType:  models.OperationUserUpdate,
			row:     models.Row{"email": "a@x.com", "suspended": "maybe"},
			wantErr: ColumnSuspended,
		},
		{
			name:    "membership add requires group",
			opType:  models.OperationGroupMembershipAdd,
			row:     models.Row{"email": "a@x.com"},
			wantErr: ColumnGroupEmail,
		},
		{
			name:    "membership add rejects unknown role",
			opType:  models.OperationGroupMembershipAdd,
			row:     models.Row{"email": "a@x.com", "group": "team@x.com", "role": "boss"},
			wantErr: ColumnRole,
		},
		{
			name:    "move ou requires absolute path",
			opType:  models.OperationMoveOU,
			row:     models.Row{"email": "a@x.com", "ou": "Sales"},
			wantErr: ColumnOrgUnitPath,
		},
		{
			name:    "email without domain dot",
			opType:  models.OperationUserDelete,
			row:     models.Row{"email": "a@localhost"},
			wantErr: ColumnEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.opType, []models.Row{tt.row})
			require.Empty(t, res.Records)
			require.NotEmpty(t, res.Errors)
			require.Equal(t, tt.wantErr, res.Errors[0].Column)
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	t.Run("membership role defaults to member", func(t *testing.T) {
		res := Validate(models.OperationGroupMembershipAdd, []models.Row{{"email": "a@x.com", "groupEmail": "Team@X.com"}})
		require.True(t, res.Valid())
		require.Equal(t, DefaultRole, res.Records[0].Role)
		require.Equal(t, "team@x.com", res.Records[0].GroupEmail)
	})

	t.Run("update parses suspended", func(t *testing.T) {
		res := Validate(models.OperationUserUpdate, []models.Row{{"email": "a@x.com", "suspended": "yes"}})
		require.True(t, res.Valid())
		require.NotNil(t, res.Records[0].Suspended)
		require.True(t, *res.Records[0].Suspended)
	})

	t.Run("duplicate emails are kept", func(t *testing.T) {
		res := Validate(models.OperationUserSuspend, []models.Row{{"email": "a@x.com"}, {"email": "a@x.com"}})
		require.Len(t, res.Records, 2)
	})
}
