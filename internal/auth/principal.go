package auth

import (
	"context"

	"connectrpc.com/authn"
	"github.com/google/uuid"
	"github.com/wolfeidau/bulkadmin/internal/models"
)

// Principal is the authenticated identity of a request, attached to the context by the
// authn middleware.
type Principal struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Roles  []string
}

// Caller returns the identity the bulk engine scopes every call to.
func (p *Principal) Caller() models.Caller {
	return models.Caller{OrgID: p.OrgID, UserID: p.UserID}
}

// WithPrincipal stores the principal the same way the authn middleware does.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return authn.SetInfo(ctx, p)
}

// PrincipalFromContext extracts the authenticated principal from the request context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := authn.GetInfo(ctx).(*Principal)
	return p, ok && p != nil
}
