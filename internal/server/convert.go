package server

import (
	"maps"

	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
	"github.com/wolfeidau/bulkadmin/internal/bulk"
	"github.com/wolfeidau/bulkadmin/internal/models"
)

func estimateToWire(e bulk.Estimate) bulkv1.Estimate {
	return bulkv1.Estimate{EstimatedSeconds: e.EstimatedSeconds, EstimatedMinutes: e.EstimatedMinutes}
}

func rowErrorsToWire(errs []models.RowError) []bulkv1.RowError {
	if len(errs) == 0 {
		return nil
	}
	out := make([]bulkv1.RowError, len(errs))
	for i, e := range errs {
		out[i] = bulkv1.RowError{Row: e.Row, Column: e.Column, Message: e.Message}
	}
	return out
}

func rowsFromWire(rows []bulkv1.Row) []models.Row {
	if rows == nil {
		return nil
	}
	out := make([]models.Row, len(rows))
	for i, row := range rows {
		out[i] = models.Row(maps.Clone(row))
	}
	return out
}

func rowsToWire(rows []models.Row) []bulkv1.Row {
	if rows == nil {
		return nil
	}
	out := make([]bulkv1.Row, len(rows))
	for i, row := range rows {
		out[i] = maps.Clone(map[string]string(row))
	}
	return out
}

func targetToWire(r models.TargetResult) bulkv1.TargetResult {
	return bulkv1.TargetResult{Success: r.Success, Error: r.Error}
}

// operationToWire converts an operation, results are included only when withResults is set.
func operationToWire(op *models.BulkOperation, withResults bool) bulkv1.BulkOperation {
	out := bulkv1.BulkOperation{
		Id:             op.ID.String(),
		OrganizationId: op.OrgID.String(),
		OperationType:  string(op.OperationType),
		OperationName:  op.OperationName,
		SyncExternal:   op.SyncExternal,
		Status:         string(op.Status),
		TotalItems:     op.TotalItems,
		ProcessedItems: op.ProcessedItems,
		SuccessCount:   op.SuccessCount,
		FailureCount:   op.FailureCount,
		Progress:       op.Progress(),
		ErrorMessage:   op.ErrorMessage,
		CreatedBy:      op.CreatedBy.String(),
		CreatedAt:      op.CreatedAt,
		UpdatedAt:      op.UpdatedAt,
	}

	if withResults && len(op.Results) > 0 {
		out.Results = make([]bulkv1.ItemOutcome, len(op.Results))
		for i, r := range op.Results {
			item := bulkv1.ItemOutcome{
				Index:       r.Index,
				Identity:    r.Identity,
				LocalResult: targetToWire(r.Local),
			}
			if r.External != nil {
				ext := targetToWire(*r.External)
				item.ExternalResult = &ext
			}
			out.Results[i] = item
		}
	}

	return out
}

func snapshotToWire(s models.Snapshot) bulkv1.Snapshot {
	return bulkv1.Snapshot{
		BulkOperationId: s.OperationID.String(),
		Status:          string(s.Status),
		TotalItems:      s.TotalItems,
		ProcessedItems:  s.ProcessedItems,
		SuccessCount:    s.SuccessCount,
		FailureCount:    s.FailureCount,
		Progress:        s.Progress,
		ErrorMessage:    s.ErrorMessage,
		UpdatedAt:       s.UpdatedAt,
	}
}

func eventToWire(ev bulk.Event) *bulkv1.ProgressEvent {
	return &bulkv1.ProgressEvent{Type: string(ev.Type), Snapshot: snapshotToWire(ev.Snapshot)}
}

func templateToWire(t *models.BulkTemplate) bulkv1.Template {
	return bulkv1.Template{
		Id:            t.ID.String(),
		Name:          t.Name,
		Description:   t.Description,
		OperationType: string(t.OperationType),
		TemplateData:  rowsToWire(t.TemplateData),
		CreatedBy:     t.CreatedBy.String(),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}
