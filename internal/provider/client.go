// Package provider is the client for the external directory provider. Requests follow the
// Admin Directory REST shape (users and group members) and authenticate with OAuth2.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bulkadmin/internal/directory"
	"github.com/wolfeidau/bulkadmin/internal/models"
	"github.com/wolfeidau/bulkadmin/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	usersPath  = "/admin/directory/v1/users"
	groupsPath = "/admin/directory/v1/groups"

	retryInitialInterval = 200 * time.Millisecond
	retryMaxInterval     = 5 * time.Second
)

// APIError is an explicit error response from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

// Client applies directory mutations against the external provider.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ directory.Directory = (*Client)(nil)

// New creates a provider client. The context controls token refreshes made by the
// client credentials token source.
func New(ctx context.Context, cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}

	var ts oauth2.TokenSource
	if cfg.Token != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	} else {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		ts = cc.TokenSource(ctx)
	}

	return &Client{
		cfg:        cfg,
		httpClient: oauth2.NewClient(ctx, ts),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}, nil
}

type userName struct {
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
}

type userResource struct {
	PrimaryEmail string    `json:"primaryEmail,omitempty"`
	Name         *userName `json:"name,omitempty"`
	Password     string    `json:"password,omitempty"`
	OrgUnitPath  string    `json:"orgUnitPath,omitempty"`
	Suspended    *bool     `json:"suspended,omitempty"`
}

type memberResource struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func nameOf(rec models.Record) *userName {
	if rec.FirstName == "" && rec.LastName == "" {
		return nil
	}
	return &userName{GivenName: rec.FirstName, FamilyName: rec.LastName}
}

func userPath(email string) string {
	return usersPath + "/" + url.PathEscape(directory.NormaliseEmail(email))
}

func membersPath(groupEmail string) string {
	return groupsPath + "/" + url.PathEscape(directory.NormaliseEmail(groupEmail)) + "/members"
}

func (c *Client) UpdateUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	body := userResource{
		Name:        nameOf(rec),
		OrgUnitPath: rec.OrgUnitPath,
		Suspended:   rec.Suspended,
	}
	return userNotFound(c.do(ctx, orgID, http.MethodPatch, userPath(rec.Email), body), rec.Email)
}

func (c *Client) CreateUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	user := directory.NewUser(rec)
	body := userResource{
		PrimaryEmail: user.Email,
		Name:         &userName{GivenName: user.FirstName, FamilyName: user.LastName},
		Password:     rec.Password,
		OrgUnitPath:  user.OrgUnitPath,
		Suspended:    rec.Suspended,
	}
	err := c.do(ctx, orgID, http.MethodPost, usersPath, body)
	if statusOf(err) == http.StatusConflict {
		return fmt.Errorf("%w: %s", directory.ErrUserExists, user.Email)
	}
	return err
}

func (c *Client) SuspendUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	suspended := true
	body := userResource{Suspended: &suspended}
	return userNotFound(c.do(ctx, orgID, http.MethodPatch, userPath(rec.Email), body), rec.Email)
}

func (c *Client) DeleteUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	err := c.do(ctx, orgID, http.MethodDelete, userPath(rec.Email), nil)
	if statusOf(err) == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) AddGroupMember(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	body := memberResource{
		Email: directory.NormaliseEmail(rec.Email),
		Role:  directory.MemberRole(rec),
	}
	err := c.do(ctx, orgID, http.MethodPost, membersPath(rec.GroupEmail), body)
	switch statusOf(err) {
	case http.StatusConflict:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", directory.ErrGroupNotFound, rec.GroupEmail)
	}
	return err
}

func (c *Client) RemoveGroupMember(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	path := membersPath(rec.GroupEmail) + "/" + url.PathEscape(directory.NormaliseEmail(rec.Email))
	err := c.do(ctx, orgID, http.MethodDelete, path, nil)
	if statusOf(err) == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) MoveUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	body := userResource{OrgUnitPath: rec.OrgUnitPath}
	return userNotFound(c.do(ctx, orgID, http.MethodPatch, userPath(rec.Email), body), rec.Email)
}

// do sends one request, retrying only attempts that time out.
func (c *Client) do(ctx context.Context, orgID uuid.UUID, method, path string, body any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("method", method))

	attempt := func() (struct{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}

		metrics.ProviderRequestsTotal.Add(ctx, 1, attrs)

		err := c.send(ctx, method, path, payload)
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() == nil && isTimeout(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.ProviderRetriesTotal.Add(ctx, 1, attrs)
			log.Debug().
				Err(err).
				Str("org_id", orgID.String()).
				Str("method", method).
				Str("path", path).
				Dur("next_retry", next).
				Msg("Provider request timed out, retrying")
		}),
	)
	return err
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb errorBody
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil {
			if json.Unmarshal(data, &eb) == nil {
				apiErr.Message = eb.Error.Message
			}
		}
		return apiErr
	}

	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func userNotFound(err error, email string) error {
	if statusOf(err) == http.StatusNotFound {
		return fmt.Errorf("%w: %s", directory.ErrUserNotFound, email)
	}
	return err
}
