package commands

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/otelconnect"
	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
	"github.com/wolfeidau/bulkadmin/internal/auth"
	"github.com/wolfeidau/bulkadmin/internal/client"
)

type Globals struct {
	Debug   bool
	Version string
	Client  ClientFlags

	// Out receives command output, stdout when nil.
	Out io.Writer
}

// ClientFlags are shared by every command talking to the server.
type ClientFlags struct {
	Server  string        `help:"Server URL" default:"http://localhost:8080" env:"BULKADMIN_SERVER"`
	Token   string        `help:"JWT token for authentication" env:"BULKADMIN_TOKEN"`
	Timeout time.Duration `help:"Timeout for unary requests" default:"30s"`
	Output  string        `help:"Output format" default:"table" enum:"table,json,yaml" short:"o"`

	// Development identity, used when the server runs with --no-auth
	OrgID  string   `help:"organization ID sent as X-Org-ID (development only)" env:"BULKADMIN_ORG_ID"`
	UserID string   `help:"user ID sent as X-User-ID (development only)" env:"BULKADMIN_USER_ID"`
	Roles  []string `help:"roles sent as X-Roles (development only)" env:"BULKADMIN_ROLES"`
}

func (g *Globals) clients() (*client.Clients, error) {
	otelInterceptor, err := otelconnect.NewInterceptor()
	if err != nil {
		return nil, fmt.Errorf("failed to create interceptor: %w", err)
	}

	config := client.Config{
		ServerURL: g.Client.Server,
		Timeout:   g.Client.Timeout,
		Token:     g.Client.Token,
		Debug:     g.Debug,
		Headers:   http.Header{},
	}
	if g.Client.OrgID != "" {
		config.Headers.Set(auth.HeaderOrgID, g.Client.OrgID)
	}
	if g.Client.UserID != "" {
		config.Headers.Set(auth.HeaderUserID, g.Client.UserID)
	}
	if len(g.Client.Roles) > 0 {
		config.Headers.Set(auth.HeaderRoles, strings.Join(g.Client.Roles, ","))
	}

	return client.NewClients(config, connect.WithInterceptors(otelInterceptor)), nil
}

func (g *Globals) printer() *printer {
	p := newPrinter(g.Client.Output)
	if g.Out != nil {
		p.out = g.Out
	}
	return p
}

// describeError expands rejected rows carried in the error metadata.
func describeError(err error) error {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return err
	}

	rows := cerr.Meta().Values(bulkv1.RowErrorHeader)
	if len(rows) == 0 {
		return err
	}

	var b strings.Builder
	b.WriteString(cerr.Message())
	for _, row := range rows {
		b.WriteString("\n  ")
		b.WriteString(row)
	}
	return errors.New(b.String())
}
