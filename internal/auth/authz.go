package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"connectrpc.com/connect"
)

// Permission represents an authorized action
type Permission string

const (
	PermOperationsSubmit Permission = "operations:submit"
	PermOperationsRead   Permission = "operations:read"
	PermTemplatesManage  Permission = "templates:manage"
	PermTemplatesRead    Permission = "templates:read"
)

// Roles carried in the roles claim.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// RolePermissions maps roles to allowed permissions
var RolePermissions = map[string][]Permission{
	RoleAdmin: {
		PermOperationsSubmit,
		PermOperationsRead,
		PermTemplatesManage,
		PermTemplatesRead,
	},
	RoleOperator: {
		PermOperationsSubmit,
		PermOperationsRead,
		PermTemplatesManage,
		PermTemplatesRead,
	},
	RoleViewer: {
		PermOperationsRead,
		PermTemplatesRead,
	},
}

// HasPermission checks if any of the roles grants perm
func HasPermission(roles []string, perm Permission) bool {
	for _, role := range roles {
		if slices.Contains(RolePermissions[role], perm) {
			return true
		}
	}
	return false
}

// RequirePermission checks authorization and returns the principal, or a connect error
// if the request is not authenticated or not authorized.
func RequirePermission(ctx context.Context, perm Permission) (*Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("not authenticated"))
	}

	if !HasPermission(p.Roles, perm) {
		return nil, connect.NewError(
			connect.CodePermissionDenied,
			fmt.Errorf("permission denied: %v requires %s", p.Roles, perm),
		)
	}

	return p, nil
}
