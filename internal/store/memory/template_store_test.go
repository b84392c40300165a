package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/bulkadmin/internal/models"
	"github.com/wolfeidau/bulkadmin/internal/store"
)

func newTemplate(orgID uuid.UUID, name string, opType models.OperationType) *models.BulkTemplate {
	now := time.Now()
	return &models.BulkTemplate{
		ID:            uuid.Must(uuid.NewV7()),
		OrgID:         orgID,
		Name:          name,
		OperationType: opType,
		TemplateData:  []models.Row{{"email": "a@x.com"}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestTemplateStore_CRUD(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	st := NewTemplateStore()

	tmpl := newTemplate(orgID, "offboarding", models.OperationUserSuspend)
	require.NoError(t, st.CreateTemplate(ctx, tmpl))

	t.Run("get", func(t *testing.T) {
		got, err := st.GetTemplate(ctx, orgID, tmpl.ID)
		require.NoError(t, err)
		require.Equal(t, "offboarding", got.Name)
		require.Equal(t, "a@x.com", got.TemplateData[0]["email"])
	})

	t.Run("other org cannot read", func(t *testing.T) {
		_, err := st.GetTemplate(ctx, uuid.New(), tmpl.ID)
		require.ErrorIs(t, err, store.ErrTemplateNotFound)
	})

	t.Run("name unique per org", func(t *testing.T) {
		require.ErrorIs(t, st.CreateTemplate(ctx, newTemplate(orgID, "Offboarding", models.OperationUserDelete)), store.ErrTemplateNameTaken)
		require.NoError(t, st.CreateTemplate(ctx, newTemplate(uuid.New(), "offboarding", models.OperationUserSuspend)))
	})

	t.Run("update keeps created fields", func(t *testing.T) {
		updated := tmpl.Clone()
		updated.Description = "leavers"
		updated.CreatedAt = time.Time{}
		require.NoError(t, st.UpdateTemplate(ctx, updated))

		got, err := st.GetTemplate(ctx, orgID, tmpl.ID)
		require.NoError(t, err)
		require.Equal(t, "leavers", got.Description)
		require.Equal(t, tmpl.CreatedAt, got.CreatedAt)
	})

	t.Run("delete", func(t *testing.T) {
		require.ErrorIs(t, st.DeleteTemplate(ctx, uuid.New(), tmpl.ID), store.ErrTemplateNotFound)
		require.NoError(t, st.DeleteTemplate(ctx, orgID, tmpl.ID))
		require.ErrorIs(t, st.DeleteTemplate(ctx, orgID, tmpl.ID), store.ErrTemplateNotFound)
	})
}

func TestTemplateStore_List(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	st := NewTemplateStore()

	require.NoError(t, st.CreateTemplate(ctx, newTemplate(orgID, "zeta", models.OperationUserSuspend)))
	require.NoError(t, st.CreateTemplate(ctx, newTemplate(orgID, "alpha", models.OperationUserCreate)))
	require.NoError(t, st.CreateTemplate(ctx, newTemplate(orgID, "mid", models.OperationUserSuspend)))
	require.NoError(t, st.CreateTemplate(ctx, newTemplate(uuid.New(), "other", models.OperationUserSuspend)))

	all, err := st.ListTemplates(ctx, orgID, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "alpha", all[0].Name)
	require.Equal(t, "mid", all[1].Name)
	require.Equal(t, "zeta", all[2].Name)

	suspends, err := st.ListTemplates(ctx, orgID, models.OperationUserSuspend)
	require.NoError(t, err)
	require.Len(t, suspends, 2)
	require.Equal(t, "mid", suspends[0].Name)
}
