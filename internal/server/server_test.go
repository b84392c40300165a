package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
	"github.com/wolfeidau/bulkadmin/internal/auth"
	"github.com/wolfeidau/bulkadmin/internal/bulk"
	"github.com/wolfeidau/bulkadmin/internal/client"
	"github.com/wolfeidau/bulkadmin/internal/directory"
	"github.com/wolfeidau/bulkadmin/internal/store/memory"
)

type testEnv struct {
	url      string
	local    *directory.MemoryDirectory
	external *directory.MemoryDirectory
	engine   *bulk.Engine
}

func newTestEnv(t *testing.T, withExternal bool) *testEnv {
	t.Helper()

	env := &testEnv{local: directory.NewMemoryDirectory()}

	var external directory.Directory
	if withExternal {
		env.external = directory.NewMemoryDirectory()
		external = env.external
	}

	registry, err := bulk.NewDirectoryRegistry(env.local, external)
	require.NoError(t, err)

	templateStore := memory.NewTemplateStore()
	env.engine, err = bulk.NewEngine(bulk.Config{}, bulk.Dependencies{
		Store:     memory.NewOperationStore(),
		Registry:  registry,
		Templates: templateStore,
	})
	require.NoError(t, err)

	srv := NewServer(env.engine, bulk.NewTemplates(templateStore, registry))
	ts := httptest.NewServer(srv.Handler(zerolog.Nop(), auth.NewHeaderAuthFunc()))
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, env.engine.Shutdown(ctx))
	})

	env.url = ts.URL
	return env
}

func (env *testEnv) clients(orgID uuid.UUID, roles string) *client.Clients {
	headers := http.Header{}
	headers.Set(auth.HeaderOrgID, orgID.String())
	headers.Set(auth.HeaderUserID, uuid.NewString())
	if roles != "" {
		headers.Set(auth.HeaderRoles, roles)
	}

	cfg := client.DefaultConfig()
	cfg.ServerURL = env.url
	cfg.Timeout = 10 * time.Second
	cfg.Headers = headers
	return client.NewClients(cfg)
}

func watch(t *testing.T, c *client.Clients, id string) []*bulkv1.ProgressEvent {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var events []*bulkv1.ProgressEvent
	err := c.Bulk.Subscribe(ctx, id, func(ev *bulkv1.ProgressEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, events)
	return events
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)

	resp, err := http.Get(env.url + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCompleteBulkWorkflow(t *testing.T) {
	env := newTestEnv(t, true)
	orgID := uuid.New()
	c := env.clients(orgID, "")
	ctx := context.Background()

	items := []bulkv1.Row{
		{"email": "ada@example.com", "firstName": "Ada", "lastName": "Lovelace"},
		{"email": "not-an-email", "firstName": "Bad", "lastName": "Row"},
		{"email": "alan@example.com", "firstName": "Alan", "lastName": "Turing"},
	}

	// 1. Estimate and validate before submitting
	est, err := c.Bulk.Estimate(ctx, &bulkv1.EstimateRequest{ItemCount: 100, IncludeExternalSync: true})
	require.NoError(t, err)
	require.Equal(t, 60, est.EstimatedSeconds)

	preview, err := c.Bulk.Validate(ctx, &bulkv1.ValidateRequest{OperationType: "user_create", Items: items})
	require.NoError(t, err)
	require.Equal(t, 2, preview.ValidCount)
	require.Len(t, preview.Errors, 1)
	require.Equal(t, 1, preview.Errors[0].Row)

	// 2. Submit with external sync, the invalid row is rejected
	submitted, err := c.Bulk.Submit(ctx, &bulkv1.SubmitRequest{
		OperationType: "user_create",
		OperationName: "new starters",
		SyncExternal:  true,
		Items:         items,
	})
	require.NoError(t, err)
	require.Equal(t, "pending", submitted.Status)
	require.Equal(t, 2, submitted.TotalItems)
	require.Len(t, submitted.Rejected, 1)

	// 3. Watch until the terminal event
	events := watch(t, c, submitted.BulkOperationId)
	last := events[len(events)-1]
	require.Equal(t, bulkv1.EventCompleted, last.Type)
	require.Equal(t, 2, last.Snapshot.SuccessCount)
	require.Equal(t, 100, last.Snapshot.Progress)

	// 4. Status carries ordered per-item results for both targets
	status, err := c.Bulk.GetStatus(ctx, submitted.BulkOperationId)
	require.NoError(t, err)
	require.Equal(t, "completed", status.Operation.Status)
	require.Equal(t, "new starters", status.Operation.OperationName)
	require.Equal(t, bulkv1.Estimate{}, status.Remaining)
	require.Len(t, status.Operation.Results, 2)
	require.Equal(t, "ada@example.com", status.Operation.Results[0].Identity)
	require.Equal(t, "alan@example.com", status.Operation.Results[1].Identity)
	for _, r := range status.Operation.Results {
		require.True(t, r.LocalResult.Success)
		require.NotNil(t, r.ExternalResult)
		require.True(t, r.ExternalResult.Success)
	}

	_, err = env.local.GetUser(orgID, "ada@example.com")
	require.NoError(t, err)
	_, err = env.external.GetUser(orgID, "alan@example.com")
	require.NoError(t, err)

	// 5. History lists it without results
	history, err := c.Bulk.ListHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history.Operations, 1)
	require.Equal(t, submitted.BulkOperationId, history.Operations[0].Id)
	require.Empty(t, history.Operations[0].Results)
}

func TestSubmitErrors(t *testing.T) {
	env := newTestEnv(t, false)
	c := env.clients(uuid.New(), "")
	ctx := context.Background()

	t.Run("strict submission with invalid rows", func(t *testing.T) {
		_, err := c.Bulk.Submit(ctx, &bulkv1.SubmitRequest{
			OperationType: "user_suspend",
			Strict:        true,
			Items:         []bulkv1.Row{{"email": "a@example.com"}, {"email": "nope"}},
		})
		require.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

		var cerr *connect.Error
		require.ErrorAs(t, err, &cerr)
		require.NotEmpty(t, cerr.Meta().Values(bulkv1.RowErrorHeader))
	})

	t.Run("empty batch", func(t *testing.T) {
		_, err := c.Bulk.Submit(ctx, &bulkv1.SubmitRequest{OperationType: "user_suspend"})
		require.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	})

	t.Run("unknown operation type", func(t *testing.T) {
		_, err := c.Bulk.Submit(ctx, &bulkv1.SubmitRequest{OperationType: "user_rename", Items: []bulkv1.Row{{"email": "a@example.com"}}})
		require.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	})

	t.Run("sync without provider", func(t *testing.T) {
		_, err := c.Bulk.Submit(ctx, &bulkv1.SubmitRequest{OperationType: "user_suspend", SyncExternal: true, Items: []bulkv1.Row{{"email": "a@example.com"}}})
		require.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
	})

	t.Run("malformed id", func(t *testing.T) {
		_, err := c.Bulk.GetStatus(ctx, "not-a-uuid")
		require.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	})

	t.Run("unknown operation", func(t *testing.T) {
		_, err := c.Bulk.GetStatus(ctx, uuid.NewString())
		require.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
	})
}

func TestOrganizationIsolation(t *testing.T) {
	env := newTestEnv(t, false)
	owner := env.clients(uuid.New(), "")
	other := env.clients(uuid.New(), "")
	ctx := context.Background()

	submitted, err := owner.Bulk.Submit(ctx, &bulkv1.SubmitRequest{OperationType: "user_delete", Items: []bulkv1.Row{{"email": "a@example.com"}}})
	require.NoError(t, err)

	_, err = other.Bulk.GetStatus(ctx, submitted.BulkOperationId)
	require.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	err = other.Bulk.Subscribe(ctx, submitted.BulkOperationId, func(*bulkv1.ProgressEvent) error { return nil })
	require.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	history, err := other.Bulk.ListHistory(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, history.Operations)
}

func TestAuthorization(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	t.Run("viewer cannot submit", func(t *testing.T) {
		c := env.clients(uuid.New(), auth.RoleViewer)
		_, err := c.Bulk.Submit(ctx, &bulkv1.SubmitRequest{OperationType: "user_delete", Items: []bulkv1.Row{{"email": "a@example.com"}}})
		require.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

		_, err = c.Bulk.ListHistory(ctx, 0)
		require.NoError(t, err)
	})

	t.Run("viewer cannot manage templates", func(t *testing.T) {
		c := env.clients(uuid.New(), auth.RoleViewer)
		_, err := c.Templates.Create(ctx, &bulkv1.CreateTemplateRequest{Name: "x", OperationType: "user_delete"})
		require.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))
	})

	t.Run("missing identity", func(t *testing.T) {
		cfg := client.DefaultConfig()
		cfg.ServerURL = env.url
		c := client.NewClients(cfg)

		_, err := c.Bulk.ListHistory(ctx, 0)
		require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	})
}

func TestTemplateWorkflow(t *testing.T) {
	env := newTestEnv(t, false)
	orgID := uuid.New()
	c := env.clients(orgID, "")
	ctx := context.Background()

	env.local.PutUser(orgID, directory.User{Email: "leaver@example.com", OrgUnitPath: "/"})

	tmpl, err := c.Templates.Create(ctx, &bulkv1.CreateTemplateRequest{
		Name:          "offboarding",
		OperationType: "user_suspend",
		TemplateData:  []bulkv1.Row{{"email": "leaver@example.com"}},
	})
	require.NoError(t, err)
	require.Equal(t, "offboarding", tmpl.Name)

	_, err = c.Templates.Create(ctx, &bulkv1.CreateTemplateRequest{Name: "offboarding", OperationType: "user_delete"})
	require.Equal(t, connect.CodeAlreadyExists, connect.CodeOf(err))

	list, err := c.Templates.List(ctx, "user_suspend")
	require.NoError(t, err)
	require.Len(t, list, 1)

	submitted, err := c.Bulk.Submit(ctx, &bulkv1.SubmitRequest{TemplateId: tmpl.Id})
	require.NoError(t, err)
	require.Equal(t, 1, submitted.TotalItems)

	events := watch(t, c, submitted.BulkOperationId)
	require.Equal(t, bulkv1.EventCompleted, events[len(events)-1].Type)

	user, err := env.local.GetUser(orgID, "leaver@example.com")
	require.NoError(t, err)
	require.True(t, user.Suspended)

	updated, err := c.Templates.Update(ctx, &bulkv1.UpdateTemplateRequest{
		Id:            tmpl.Id,
		Name:          "offboarding",
		Description:   "suspend leavers",
		OperationType: "user_suspend",
	})
	require.NoError(t, err)
	require.Equal(t, "suspend leavers", updated.Description)

	require.NoError(t, c.Templates.Delete(ctx, tmpl.Id))
	_, err = c.Templates.Get(ctx, tmpl.Id)
	require.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}
