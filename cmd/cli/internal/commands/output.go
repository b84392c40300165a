package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// printer renders command results as a table or as JSON/YAML documents.
type printer struct {
	format string
	out    io.Writer
}

func newPrinter(format string) *printer {
	if format == "" {
		format = outputTable
	}
	return &printer{format: format, out: os.Stdout}
}

// structured reports whether output is a machine readable document.
func (p *printer) structured() bool {
	return p.format == outputJSON || p.format == outputYAML
}

// print writes v as a document, or the table built by rows in table mode.
func (p *printer) print(v any, rows func() pterm.TableData) error {
	switch p.format {
	case outputJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		// Round trip through JSON so YAML keys match the wire field names
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(p.out)
		defer enc.Close()
		return enc.Encode(doc)
	default:
		return p.table(rows())
	}
}

func (p *printer) table(data pterm.TableData) error {
	s, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	_, err = fmt.Fprintln(p.out, s)
	return err
}

func (p *printer) printf(format string, args ...any) {
	if p.structured() {
		return
	}
	fmt.Fprintf(p.out, format, args...)
}

func operationHeader() []string {
	return []string{"ID", "Type", "Name", "Status", "Progress", "Success", "Failed", "Created"}
}

func operationRow(op bulkv1.BulkOperation) []string {
	return []string{
		op.Id,
		op.OperationType,
		op.OperationName,
		colorStatus(op.Status),
		fmt.Sprintf("%d/%d (%d%%)", op.ProcessedItems, op.TotalItems, op.Progress),
		strconv.Itoa(op.SuccessCount),
		strconv.Itoa(op.FailureCount),
		op.CreatedAt.Local().Format(time.DateTime),
	}
}

func resultHeader() []string {
	return []string{"#", "Identity", "Local", "External"}
}

func resultRow(r bulkv1.ItemOutcome) []string {
	external := "-"
	if r.ExternalResult != nil {
		external = targetCell(*r.ExternalResult)
	}
	return []string{strconv.Itoa(r.Index), r.Identity, targetCell(r.LocalResult), external}
}

func targetCell(r bulkv1.TargetResult) string {
	if r.Success {
		return color.GreenString("ok")
	}
	return color.RedString(r.Error)
}

func rowErrorHeader() []string {
	return []string{"Row", "Column", "Message"}
}

func rowErrorRow(e bulkv1.RowError) []string {
	return []string{strconv.Itoa(e.Row), e.Column, e.Message}
}

func colorStatus(status string) string {
	switch status {
	case "completed":
		return color.GreenString(status)
	case "failed":
		return color.RedString(status)
	case "processing":
		return color.CyanString(status)
	default:
		return color.YellowString(status)
	}
}

func formatEstimate(e bulkv1.Estimate) string {
	if e.EstimatedMinutes > 0 {
		return fmt.Sprintf("%ds (~%d min)", e.EstimatedSeconds, e.EstimatedMinutes)
	}
	return fmt.Sprintf("%ds", e.EstimatedSeconds)
}
