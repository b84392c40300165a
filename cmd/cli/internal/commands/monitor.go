package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
	"github.com/wolfeidau/bulkadmin/internal/client"
)

type MonitorCmd struct {
	ID string `arg:"" help:"Bulk operation ID to monitor"`
}

func (m *MonitorCmd) Run(ctx context.Context, globals *Globals) error {
	clients, err := globals.clients()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := globals.printer()
	p.printf("Monitoring bulk operation %s on %s\n", m.ID, globals.Client.Server)

	last, err := watchOperation(ctx, clients, m.ID, p)
	if err != nil {
		return err
	}

	return finalSummary(last, p)
}

// watchOperation prints progress events until the operation reaches a terminal status.
// It returns the last event received.
func watchOperation(ctx context.Context, clients *client.Clients, id string, p *printer) (*bulkv1.ProgressEvent, error) {
	var last *bulkv1.ProgressEvent

	err := clients.Bulk.Subscribe(ctx, id, func(event *bulkv1.ProgressEvent) error {
		last = event
		if p.structured() {
			return p.print(event, nil)
		}
		printEvent(p, event)
		return nil
	})
	if err != nil && !errors.Is(ctx.Err(), context.Canceled) {
		return last, fmt.Errorf("failed to monitor operation: %w", err)
	}

	if last == nil {
		return nil, errors.New("stream ended before any progress was received")
	}

	return last, nil
}

func printEvent(p *printer, event *bulkv1.ProgressEvent) {
	snap := event.Snapshot
	fmt.Fprintf(p.out, "[%s] %s %d/%d (%d%%) %s %s\n",
		snap.UpdatedAt.Local().Format(time.TimeOnly),
		colorStatus(snap.Status),
		snap.ProcessedItems,
		snap.TotalItems,
		snap.Progress,
		color.GreenString("ok=%d", snap.SuccessCount),
		color.RedString("failed=%d", snap.FailureCount),
	)
	if snap.ErrorMessage != "" {
		fmt.Fprintf(p.out, "  %s\n", color.RedString(snap.ErrorMessage))
	}
}

// finalSummary reports a failed run as an error so scripts see a non-zero exit.
func finalSummary(last *bulkv1.ProgressEvent, p *printer) error {
	switch last.Type {
	case bulkv1.EventFailed:
		return fmt.Errorf("bulk operation %s failed: %s", last.Snapshot.BulkOperationId, last.Snapshot.ErrorMessage)
	case bulkv1.EventCompleted:
		if !p.structured() {
			return p.table(pterm.TableData{
				{"Processed", "Success", "Failed"},
				{
					fmt.Sprint(last.Snapshot.ProcessedItems),
					fmt.Sprint(last.Snapshot.SuccessCount),
					fmt.Sprint(last.Snapshot.FailureCount),
				},
			})
		}
		return nil
	default:
		p.printf("Monitoring stopped before the operation finished\n")
		return nil
	}
}
