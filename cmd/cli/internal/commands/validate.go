package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
)

type ValidateCmd struct {
	Type string `help:"Operation type" required:"" short:"t"`
	File string `help:"CSV file with a header line, - reads stdin" required:"" short:"f"`
	Sync bool   `help:"Include external sync in the estimate"`
}

func (v *ValidateCmd) Run(ctx context.Context, globals *Globals) error {
	rows, err := readRowsFile(v.File)
	if err != nil {
		return err
	}

	clients, err := globals.clients()
	if err != nil {
		return err
	}

	resp, err := clients.Bulk.Validate(ctx, &bulkv1.ValidateRequest{
		OperationType: v.Type,
		SyncExternal:  v.Sync,
		Items:         rows,
	})
	if err != nil {
		return fmt.Errorf("failed to validate: %w", describeError(err))
	}

	p := globals.printer()
	if p.structured() {
		return p.print(resp, nil)
	}

	fmt.Fprintf(p.out, "%d of %d rows valid, estimated %s\n", resp.ValidCount, len(rows), formatEstimate(resp.Estimate))
	if len(resp.Errors) == 0 {
		return nil
	}

	data := pterm.TableData{rowErrorHeader()}
	for _, e := range resp.Errors {
		data = append(data, rowErrorRow(e))
	}
	return p.table(data)
}
