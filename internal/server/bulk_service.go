package server

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
	"github.com/wolfeidau/bulkadmin/internal/auth"
	"github.com/wolfeidau/bulkadmin/internal/bulk"
	"github.com/wolfeidau/bulkadmin/internal/models"
)

// BulkServer serves submission, status, history and live progress of bulk operations.
type BulkServer struct {
	engine *bulk.Engine
}

func NewBulkServer(engine *bulk.Engine) *BulkServer {
	return &BulkServer{engine: engine}
}

func (s *BulkServer) Submit(ctx context.Context, req *connect.Request[bulkv1.SubmitRequest]) (*connect.Response[bulkv1.SubmitResponse], error) {
	principal, err := auth.RequirePermission(ctx, auth.PermOperationsSubmit)
	if err != nil {
		return nil, err
	}

	submit := bulk.SubmitRequest{
		OperationType: models.OperationType(req.Msg.OperationType),
		OperationName: req.Msg.OperationName,
		SyncExternal:  req.Msg.SyncExternal,
		Strict:        req.Msg.Strict,
		Rows:          rowsFromWire(req.Msg.Items),
	}
	if req.Msg.TemplateId != "" {
		submit.TemplateID, err = parseID("template_id", req.Msg.TemplateId)
		if err != nil {
			return nil, err
		}
	}

	res, err := s.engine.Submit(ctx, principal.Caller(), submit)
	if err != nil {
		return nil, toConnectError(err)
	}

	zerolog.Ctx(ctx).Info().
		Str("operation_id", res.OperationID.String()).
		Str("operation_type", req.Msg.OperationType).
		Bool("sync_external", req.Msg.SyncExternal).
		Int("total_items", res.TotalItems).
		Int("rejected", len(res.Rejected)).
		Msg("bulk operation submitted")

	return connect.NewResponse(&bulkv1.SubmitResponse{
		BulkOperationId: res.OperationID.String(),
		Status:          string(res.Status),
		TotalItems:      res.TotalItems,
		Rejected:        rowErrorsToWire(res.Rejected),
		Estimate:        estimateToWire(res.Estimate),
	}), nil
}

func (s *BulkServer) Validate(ctx context.Context, req *connect.Request[bulkv1.ValidateRequest]) (*connect.Response[bulkv1.ValidateResponse], error) {
	if _, err := auth.RequirePermission(ctx, auth.PermOperationsSubmit); err != nil {
		return nil, err
	}

	res, err := s.engine.Validate(models.OperationType(req.Msg.OperationType), rowsFromWire(req.Msg.Items), req.Msg.SyncExternal)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&bulkv1.ValidateResponse{
		ValidCount: len(res.Records),
		Errors:     rowErrorsToWire(res.Errors),
		Estimate:   estimateToWire(res.Estimate),
	}), nil
}

func (s *BulkServer) GetStatus(ctx context.Context, req *connect.Request[bulkv1.GetStatusRequest]) (*connect.Response[bulkv1.GetStatusResponse], error) {
	principal, err := auth.RequirePermission(ctx, auth.PermOperationsRead)
	if err != nil {
		return nil, err
	}

	id, err := parseID("bulk_operation_id", req.Msg.BulkOperationId)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.Status(ctx, principal.Caller(), id)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&bulkv1.GetStatusResponse{
		Operation: operationToWire(res.Operation, true),
		Remaining: estimateToWire(res.Remaining),
	}), nil
}

func (s *BulkServer) ListHistory(ctx context.Context, req *connect.Request[bulkv1.ListHistoryRequest]) (*connect.Response[bulkv1.ListHistoryResponse], error) {
	principal, err := auth.RequirePermission(ctx, auth.PermOperationsRead)
	if err != nil {
		return nil, err
	}

	ops, err := s.engine.History(ctx, principal.Caller(), req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &bulkv1.ListHistoryResponse{Operations: make([]bulkv1.BulkOperation, len(ops))}
	for i, op := range ops {
		resp.Operations[i] = operationToWire(op, false)
	}
	return connect.NewResponse(resp), nil
}

func (s *BulkServer) Estimate(ctx context.Context, req *connect.Request[bulkv1.EstimateRequest]) (*connect.Response[bulkv1.EstimateResponse], error) {
	if _, err := auth.RequirePermission(ctx, auth.PermOperationsRead); err != nil {
		return nil, err
	}

	if req.Msg.ItemCount < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("item count must not be negative"))
	}

	est := bulk.EstimateDuration(req.Msg.ItemCount, req.Msg.IncludeExternalSync)
	return connect.NewResponse(&bulkv1.EstimateResponse{Estimate: estimateToWire(est)}), nil
}

// Subscribe streams progress events until the operation reaches a terminal state or the
// client goes away. The first event is the persisted snapshot at subscribe time.
func (s *BulkServer) Subscribe(ctx context.Context, req *connect.Request[bulkv1.SubscribeRequest], stream *connect.ServerStream[bulkv1.ProgressEvent]) error {
	principal, err := auth.RequirePermission(ctx, auth.PermOperationsRead)
	if err != nil {
		return err
	}

	id, err := parseID("bulk_operation_id", req.Msg.BulkOperationId)
	if err != nil {
		return err
	}

	sub, err := s.engine.Subscribe(ctx, principal.Caller(), id)
	if err != nil {
		return toConnectError(err)
	}
	defer s.engine.Unsubscribe(sub)

	for ev := range sub.Events() {
		if err := stream.Send(eventToWire(ev)); err != nil {
			return err
		}
	}

	return nil
}

func (s *BulkServer) register(mux *http.ServeMux, opts ...connect.HandlerOption) {
	mux.Handle(bulkv1.BulkServiceSubmitProcedure, connect.NewUnaryHandler(bulkv1.BulkServiceSubmitProcedure, s.Submit, opts...))
	mux.Handle(bulkv1.BulkServiceValidateProcedure, connect.NewUnaryHandler(bulkv1.BulkServiceValidateProcedure, s.Validate, opts...))
	mux.Handle(bulkv1.BulkServiceGetStatusProcedure, connect.NewUnaryHandler(bulkv1.BulkServiceGetStatusProcedure, s.GetStatus, opts...))
	mux.Handle(bulkv1.BulkServiceListHistoryProcedure, connect.NewUnaryHandler(bulkv1.BulkServiceListHistoryProcedure, s.ListHistory, opts...))
	mux.Handle(bulkv1.BulkServiceEstimateProcedure, connect.NewUnaryHandler(bulkv1.BulkServiceEstimateProcedure, s.Estimate, opts...))
	mux.Handle(bulkv1.BulkServiceSubscribeProcedure, connect.NewServerStreamHandler(bulkv1.BulkServiceSubscribeProcedure, s.Subscribe, opts...))
}
