package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
	"github.com/wolfeidau/bulkadmin/internal/auth"
	"github.com/wolfeidau/bulkadmin/internal/bulk"
	"github.com/wolfeidau/bulkadmin/internal/directory"
	"github.com/wolfeidau/bulkadmin/internal/server"
	"github.com/wolfeidau/bulkadmin/internal/store/memory"
	"gopkg.in/yaml.v3"
)

func TestReadRows(t *testing.T) {
	t.Run("maps records onto header", func(t *testing.T) {
		input := "\ufeffemail, firstName\njane@example.com, Jane\n\nbob@example.com,Bob\n"
		rows, err := readRows(strings.NewReader(input))
		require.NoError(t, err)
		require.Equal(t, []bulkv1.Row{
			{"email": "jane@example.com", "firstName": "Jane"},
			{"email": "bob@example.com", "firstName": "Bob"},
		}, rows)
	})

	t.Run("short records leave columns unset", func(t *testing.T) {
		rows, err := readRows(strings.NewReader("email,groupEmail\njane@example.com\n"))
		require.NoError(t, err)
		require.Equal(t, []bulkv1.Row{{"email": "jane@example.com"}}, rows)
	})

	t.Run("extra fields are rejected", func(t *testing.T) {
		_, err := readRows(strings.NewReader("email\njane@example.com,extra\n"))
		require.ErrorContains(t, err, "header has 1")
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := readRows(strings.NewReader(""))
		require.ErrorContains(t, err, "missing header")
	})
}

func TestRowColumns(t *testing.T) {
	require.Equal(t, []string{"email", "groupEmail", "role"}, rowColumns([]bulkv1.Row{
		{"role": "OWNER", "email": "a@example.com"},
		{"groupEmail": "eng@example.com", "email": "b@example.com"},
	}))
}

func TestPrinter(t *testing.T) {
	resp := &bulkv1.EstimateResponse{Estimate: bulkv1.Estimate{EstimatedSeconds: 90, EstimatedMinutes: 2}}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		p := &printer{format: outputJSON, out: &buf}
		require.NoError(t, p.print(resp, nil))
		require.JSONEq(t, `{"estimatedSeconds":90,"estimatedMinutes":2}`, buf.String())
	})

	t.Run("yaml uses wire names", func(t *testing.T) {
		var buf bytes.Buffer
		p := &printer{format: outputYAML, out: &buf}
		require.NoError(t, p.print(resp, nil))

		var doc map[string]int
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
		require.Equal(t, 90, doc["estimatedSeconds"])
	})

	t.Run("printf is silent for documents", func(t *testing.T) {
		var buf bytes.Buffer
		p := &printer{format: outputJSON, out: &buf}
		p.printf("hello\n")
		require.Empty(t, buf.String())
	})
}

func TestDescribeError(t *testing.T) {
	cerr := connect.NewError(connect.CodeInvalidArgument, errors.New("2 rows failed validation"))
	cerr.Meta().Add(bulkv1.RowErrorHeader, "row 0: email: required")
	cerr.Meta().Add(bulkv1.RowErrorHeader, "row 3: email: invalid address")

	err := describeError(cerr)
	require.Equal(t, "2 rows failed validation\n  row 0: email: required\n  row 3: email: invalid address", err.Error())

	plain := errors.New("boom")
	require.Equal(t, plain, describeError(plain))
}

func newTestServer(t *testing.T, local *directory.MemoryDirectory) string {
	t.Helper()

	registry, err := bulk.NewDirectoryRegistry(local, nil)
	require.NoError(t, err)

	templates := memory.NewTemplateStore()
	engine, err := bulk.NewEngine(bulk.Config{}, bulk.Dependencies{
		Store:     memory.NewOperationStore(),
		Registry:  registry,
		Templates: templates,
	})
	require.NoError(t, err)

	srv := server.NewServer(engine, bulk.NewTemplates(templates, registry))
	ts := httptest.NewServer(srv.Handler(zerolog.Nop(), auth.NewHeaderAuthFunc()))
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, engine.Shutdown(ctx))
	})

	return ts.URL
}

func TestSubmitWatchAndHistory(t *testing.T) {
	local := directory.NewMemoryDirectory()
	orgID := uuid.New()
	local.PutUser(orgID, directory.User{Email: "jane@example.com", OrgUnitPath: "/"})
	local.PutUser(orgID, directory.User{Email: "bob@example.com", OrgUnitPath: "/"})

	url := newTestServer(t, local)

	file := filepath.Join(t.TempDir(), "suspend.csv")
	require.NoError(t, os.WriteFile(file, []byte("email\njane@example.com\nbob@example.com\nnot-an-email\n"), 0o600))

	var out bytes.Buffer
	globals := &Globals{
		Client: ClientFlags{
			Server:  url,
			Timeout: 10 * time.Second,
			Output:  outputTable,
			OrgID:   orgID.String(),
			UserID:  uuid.NewString(),
		},
		Out: &out,
	}
	ctx := context.Background()

	submit := &SubmitCmd{Type: "user_suspend", File: file, Name: "leavers", Watch: true}
	require.NoError(t, submit.Validate())
	require.NoError(t, submit.Run(ctx, globals))
	require.Contains(t, out.String(), "2 items")
	require.Contains(t, out.String(), "1 rows rejected")

	for _, email := range []string{"jane@example.com", "bob@example.com"} {
		u, err := local.GetUser(orgID, email)
		require.NoError(t, err)
		require.True(t, u.Suspended)
	}

	out.Reset()
	globals.Client.Output = outputJSON
	require.NoError(t, (&HistoryCmd{Limit: 5}).Run(ctx, globals))

	var history bulkv1.ListHistoryResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &history))
	require.Len(t, history.Operations, 1)
	require.Equal(t, "completed", history.Operations[0].Status)
	require.Equal(t, "leavers", history.Operations[0].OperationName)
	require.Equal(t, 2, history.Operations[0].SuccessCount)
}

func TestSubmitValidation(t *testing.T) {
	require.Error(t, (&SubmitCmd{}).Validate())
	require.Error(t, (&SubmitCmd{File: "a.csv"}).Validate())
	require.Error(t, (&SubmitCmd{File: "a.csv", Template: "x", Type: "user_suspend"}).Validate())
	require.NoError(t, (&SubmitCmd{Template: uuid.NewString()}).Validate())
}
