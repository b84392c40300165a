package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
)

type StatusCmd struct {
	ID      string `arg:"" help:"Bulk operation ID"`
	Results bool   `help:"Show the per-item results"`
}

func (s *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	clients, err := globals.clients()
	if err != nil {
		return err
	}

	resp, err := clients.Bulk.GetStatus(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	p := globals.printer()
	if p.structured() {
		return p.print(resp, nil)
	}

	if err := p.table(pterm.TableData{operationHeader(), operationRow(resp.Operation)}); err != nil {
		return err
	}

	if resp.Operation.ErrorMessage != "" {
		fmt.Fprintf(p.out, "Error: %s\n", resp.Operation.ErrorMessage)
	}
	if resp.Remaining.EstimatedSeconds > 0 {
		fmt.Fprintf(p.out, "Remaining: %s\n", formatEstimate(resp.Remaining))
	}

	if !s.Results || len(resp.Operation.Results) == 0 {
		return nil
	}

	data := pterm.TableData{resultHeader()}
	for _, r := range resp.Operation.Results {
		data = append(data, resultRow(r))
	}
	return p.table(data)
}

type HistoryCmd struct {
	Limit int `help:"Number of operations to list" default:"20"`
}

func (h *HistoryCmd) Run(ctx context.Context, globals *Globals) error {
	clients, err := globals.clients()
	if err != nil {
		return err
	}

	resp, err := clients.Bulk.ListHistory(ctx, h.Limit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	return printOperations(globals.printer(), resp)
}

func printOperations(p *printer, resp *bulkv1.ListHistoryResponse) error {
	return p.print(resp, func() pterm.TableData {
		data := pterm.TableData{operationHeader()}
		for _, op := range resp.Operations {
			data = append(data, operationRow(op))
		}
		return data
	})
}

type EstimateCmd struct {
	Items int  `help:"Number of items" required:""`
	Sync  bool `help:"Include external sync"`
}

func (e *EstimateCmd) Run(ctx context.Context, globals *Globals) error {
	clients, err := globals.clients()
	if err != nil {
		return err
	}

	resp, err := clients.Bulk.Estimate(ctx, &bulkv1.EstimateRequest{ItemCount: e.Items, IncludeExternalSync: e.Sync})
	if err != nil {
		return fmt.Errorf("failed to estimate: %w", err)
	}

	p := globals.printer()
	if p.structured() {
		return p.print(resp, nil)
	}

	fmt.Fprintf(p.out, "Estimated duration for %d items: %s\n", e.Items, formatEstimate(resp.Estimate))
	return nil
}
