package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/bulkadmin/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Client commands.ClientFlags `embed:""`

		Submit   commands.SubmitCmd   `cmd:"" help:"Submit a bulk operation from a CSV file or template"`
		Validate commands.ValidateCmd `cmd:"" help:"Validate a CSV file without submitting it"`
		Status   commands.StatusCmd   `cmd:"" help:"Show the status of a bulk operation"`
		History  commands.HistoryCmd  `cmd:"" help:"List recent bulk operations"`
		Monitor  commands.MonitorCmd  `cmd:"" help:"Stream live progress of a bulk operation"`
		Estimate commands.EstimateCmd `cmd:"" help:"Estimate the duration of a bulk operation"`
		Template commands.TemplateCmd `cmd:"" help:"Manage bulk operation templates"`
		Token    commands.TokenCmd    `cmd:"" help:"Generate a JWT token"`
		Debug    bool                 `help:"Enable debug mode."`
		Version  kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("bulkadmin-cli"),
		kong.Description("Submit and monitor bulk directory operations."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version, Client: cli.Client})
	cmd.FatalIfErrorf(err)
}
