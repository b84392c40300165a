package postgres

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/bulkadmin/internal/directory"
	"github.com/wolfeidau/bulkadmin/internal/store"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name string
		err  *pgconn.PgError
		want error
	}{
		{"operation exists", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintOperationsPkey}, store.ErrOperationExists},
		{"template name", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintTemplateName}, store.ErrTemplateNameTaken},
		{"user exists", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintUsersPkey}, directory.ErrUserExists},
		{"member without user", &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: constraintMembersUserFkey}, directory.ErrUserNotFound},
		{"counters", &pgconn.PgError{Code: pgerrcode.CheckViolation, ConstraintName: constraintOperationCounters}, store.ErrCounterInvariant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, mapPostgresError(tt.err), tt.want)
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		err := errors.New("boom")
		require.Equal(t, err, mapPostgresError(err))
		require.NoError(t, mapPostgresError(nil))
	})
}

func TestNotifyPayload(t *testing.T) {
	orgID := uuid.Must(uuid.NewV7())
	id := uuid.Must(uuid.NewV7())

	gotOrg, gotID, err := parseNotifyPayload(notifyPayload(orgID, id))
	require.NoError(t, err)
	require.Equal(t, orgID, gotOrg)
	require.Equal(t, id, gotID)

	_, _, err = parseNotifyPayload("no-separator")
	require.Error(t, err)

	_, _, err = parseNotifyPayload(orgID.String() + "/not-a-uuid")
	require.Error(t, err)
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	require.Equal(t, 1, migrations[0].version)
}
