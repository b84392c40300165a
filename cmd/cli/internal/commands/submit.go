package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
)

type SubmitCmd struct {
	Type     string `help:"Operation type (user_update, user_create, user_suspend, user_delete, group_membership_add, group_membership_remove, move_ou)" short:"t"`
	File     string `help:"CSV file with a header line, - reads stdin" short:"f"`
	Template string `help:"Submit the rows of a stored template instead of a file"`
	Name     string `help:"Operation name shown in history"`
	Sync     bool   `help:"Also apply every item to the external directory provider"`
	Strict   bool   `help:"Reject the whole submission when any row is invalid"`
	Watch    bool   `help:"Stream progress until the operation finishes"`
}

func (s *SubmitCmd) Validate() error {
	if s.File == "" && s.Template == "" {
		return errors.New("either --file or --template is required")
	}
	if s.File != "" && s.Template != "" {
		return errors.New("--file and --template are mutually exclusive")
	}
	if s.File != "" && s.Type == "" {
		return errors.New("--type is required when submitting a file")
	}
	return nil
}

func (s *SubmitCmd) Run(ctx context.Context, globals *Globals) error {
	req := &bulkv1.SubmitRequest{
		OperationType: s.Type,
		OperationName: s.Name,
		SyncExternal:  s.Sync,
		Strict:        s.Strict,
		TemplateId:    s.Template,
	}

	if s.File != "" {
		rows, err := readRowsFile(s.File)
		if err != nil {
			return err
		}
		req.Items = rows
	}

	clients, err := globals.clients()
	if err != nil {
		return err
	}

	resp, err := clients.Bulk.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to submit bulk operation: %w", describeError(err))
	}

	p := globals.printer()
	if p.structured() {
		if err := p.print(resp, nil); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(p.out, "Bulk operation %s accepted: %d items, estimated %s\n",
			resp.BulkOperationId, resp.TotalItems, formatEstimate(resp.Estimate))
		if len(resp.Rejected) > 0 {
			fmt.Fprintf(p.out, "%d rows rejected:\n", len(resp.Rejected))
			data := pterm.TableData{rowErrorHeader()}
			for _, e := range resp.Rejected {
				data = append(data, rowErrorRow(e))
			}
			if err := p.table(data); err != nil {
				return err
			}
		}
	}

	if !s.Watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	last, err := watchOperation(ctx, clients, resp.BulkOperationId, p)
	if err != nil {
		return err
	}
	return finalSummary(last, p)
}
