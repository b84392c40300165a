package auth

import (
	"context"
	"testing"

	"connectrpc.com/authn"
	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name     string
		roles    []string
		perm     Permission
		expected bool
	}{
		{name: "admin can submit", roles: []string{RoleAdmin}, perm: PermOperationsSubmit, expected: true},
		{name: "admin can manage templates", roles: []string{RoleAdmin}, perm: PermTemplatesManage, expected: true},
		{name: "operator can submit", roles: []string{RoleOperator}, perm: PermOperationsSubmit, expected: true},
		{name: "operator can manage templates", roles: []string{RoleOperator}, perm: PermTemplatesManage, expected: true},
		{name: "viewer cannot manage templates", roles: []string{RoleViewer}, perm: PermTemplatesManage, expected: false},
		{name: "viewer can read operations", roles: []string{RoleViewer}, perm: PermOperationsRead, expected: true},
		{name: "viewer cannot submit", roles: []string{RoleViewer}, perm: PermOperationsSubmit, expected: false},
		{name: "any role grants", roles: []string{RoleViewer, RoleOperator}, perm: PermOperationsSubmit, expected: true},
		{name: "unknown role", roles: []string{"owner"}, perm: PermOperationsRead, expected: false},
		{name: "no roles", roles: nil, perm: PermOperationsRead, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, HasPermission(tt.roles, tt.perm))
		})
	}
}

func TestRequirePermission(t *testing.T) {
	t.Run("succeeds with required permission", func(t *testing.T) {
		want := &Principal{UserID: uuid.New(), OrgID: uuid.New(), Roles: []string{RoleOperator}}
		ctx := WithPrincipal(context.Background(), want)

		got, err := RequirePermission(ctx, PermOperationsSubmit)
		require.NoError(t, err)
		require.Equal(t, want, got)
		require.Equal(t, want.OrgID, got.Caller().OrgID)
		require.Equal(t, want.UserID, got.Caller().UserID)
	})

	t.Run("fails without required permission", func(t *testing.T) {
		ctx := WithPrincipal(context.Background(), &Principal{Roles: []string{RoleViewer}})

		_, err := RequirePermission(ctx, PermOperationsSubmit)
		require.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))
	})

	t.Run("fails when not authenticated", func(t *testing.T) {
		_, err := RequirePermission(context.Background(), PermOperationsRead)
		require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	})

	t.Run("fails with wrong info type", func(t *testing.T) {
		ctx := authn.SetInfo(context.Background(), "not a Principal")

		_, err := RequirePermission(ctx, PermOperationsRead)
		require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	})
}
