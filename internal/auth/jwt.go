package auth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/authn"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Issuer is the iss claim of tokens minted by IssueToken.
const Issuer = "bulkadmin"

// Claims are the JWT claims identifying a portal user.
type Claims struct {
	jwt.RegisteredClaims
	OrgID string   `json:"org_id"`
	Roles []string `json:"roles"`
}

// Principal converts verified claims, the subject is the user id.
func (c *Claims) Principal() (*Principal, error) {
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid sub UUID: %w", err)
	}

	orgID, err := uuid.Parse(c.OrgID)
	if err != nil {
		return nil, fmt.Errorf("invalid org_id UUID: %w", err)
	}

	if len(c.Roles) == 0 {
		return nil, errors.New("missing roles claim")
	}

	return &Principal{UserID: userID, OrgID: orgID, Roles: c.Roles}, nil
}

// publicPath reports requests served without authentication.
func publicPath(path string) bool {
	return path == "/health" || path == "/metrics"
}

type jwtVerifier struct {
	publicKey *ecdsa.PublicKey
}

func newJWTVerifierFromPEM(publicKeyPEM string) (*jwtVerifier, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("JWT public key not provided")
	}

	publicKey, err := jwt.ParseECPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, err
	}

	return &jwtVerifier{publicKey: publicKey}, nil
}

func (v *jwtVerifier) verify(tokenStr string) (*Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodES256 {
			return nil, errors.New("invalid signing method")
		}
		return v.publicKey, nil
	}, jwt.WithIssuer(Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	return claims.Principal()
}

// NewJWTAuthFunc returns an authn.AuthFunc that validates Bearer JWTs.
// On success the *Principal can be retrieved with PrincipalFromContext.
func NewJWTAuthFunc(publicKeyPEM string) (authn.AuthFunc, error) {
	v, err := newJWTVerifierFromPEM(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, req *http.Request) (any, error) {
		if publicPath(req.URL.Path) {
			return nil, nil
		}

		tokenStr, ok := authn.BearerToken(req)
		if !ok {
			return nil, authn.Errorf("missing bearer token")
		}

		principal, err := v.verify(tokenStr)
		if err != nil {
			log.Debug().Err(err).Msg("JWT verification failed")
			return nil, authn.Errorf("invalid token")
		}

		return principal, nil
	}, nil
}

// Headers read by the development auth func.
const (
	HeaderOrgID  = "X-Org-ID"
	HeaderUserID = "X-User-ID"
	HeaderRoles  = "X-Roles"
)

// NewHeaderAuthFunc trusts identity headers set by the caller. It is only for local
// development with authentication disabled; roles default to admin.
func NewHeaderAuthFunc() authn.AuthFunc {
	return func(ctx context.Context, req *http.Request) (any, error) {
		if publicPath(req.URL.Path) {
			return nil, nil
		}

		orgID, err := uuid.Parse(req.Header.Get(HeaderOrgID))
		if err != nil {
			return nil, authn.Errorf("missing or invalid %s header", HeaderOrgID)
		}

		userID, err := uuid.Parse(req.Header.Get(HeaderUserID))
		if err != nil {
			return nil, authn.Errorf("missing or invalid %s header", HeaderUserID)
		}

		roles := []string{RoleAdmin}
		if v := req.Header.Get(HeaderRoles); v != "" {
			roles = strings.Split(v, ",")
		}

		return &Principal{UserID: userID, OrgID: orgID, Roles: roles}, nil
	}
}
