package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/bulkadmin/internal/auth"
	"github.com/wolfeidau/bulkadmin/internal/ssmkeys"
)

type TokenCmd struct {
	UserID        string        `help:"User ID placed in the sub claim" required:""`
	OrgID         string        `help:"Organization ID placed in the org_id claim" required:""`
	Roles         []string      `help:"Roles granted by the token" default:"operator"`
	TTL           time.Duration `help:"Token lifetime" default:"1h"`
	SigningKey    string        `help:"path to the PEM encoded ECDSA private key" env:"BULKADMIN_JWT_SIGNING_KEY" xor:"key" required:""`
	SigningKeySSM string        `help:"SSM parameter holding the signing key" env:"BULKADMIN_JWT_SIGNING_KEY_SSM" xor:"key" required:""`
}

func (t *TokenCmd) Run(ctx context.Context) error {
	userID, err := uuid.Parse(t.UserID)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}

	orgID, err := uuid.Parse(t.OrgID)
	if err != nil {
		return fmt.Errorf("invalid org id: %w", err)
	}

	for _, role := range t.Roles {
		if _, ok := auth.RolePermissions[role]; !ok {
			return fmt.Errorf("unknown role %q", role)
		}
	}

	key, err := ssmkeys.Load(ctx, ssmkeys.Source{Path: t.SigningKey, Parameter: t.SigningKeySSM})
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	token, err := auth.IssueToken(string(key), auth.Principal{UserID: userID, OrgID: orgID, Roles: t.Roles}, t.TTL)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
