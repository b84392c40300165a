package server

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
	"github.com/wolfeidau/bulkadmin/internal/auth"
	"github.com/wolfeidau/bulkadmin/internal/bulk"
	"github.com/wolfeidau/bulkadmin/internal/models"
)

type TemplateServer struct {
	templates *bulk.Templates
}

func NewTemplateServer(templates *bulk.Templates) *TemplateServer {
	return &TemplateServer{templates: templates}
}

func (s *TemplateServer) CreateTemplate(ctx context.Context, req *connect.Request[bulkv1.CreateTemplateRequest]) (*connect.Response[bulkv1.CreateTemplateResponse], error) {
	principal, err := auth.RequirePermission(ctx, auth.PermTemplatesManage)
	if err != nil {
		return nil, err
	}

	tmpl, err := s.templates.Create(ctx, principal.Caller(), bulk.TemplateInput{
		Name:          req.Msg.Name,
		Description:   req.Msg.Description,
		OperationType: models.OperationType(req.Msg.OperationType),
		Rows:          rowsFromWire(req.Msg.TemplateData),
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&bulkv1.CreateTemplateResponse{Template: templateToWire(tmpl)}), nil
}

func (s *TemplateServer) GetTemplate(ctx context.Context, req *connect.Request[bulkv1.GetTemplateRequest]) (*connect.Response[bulkv1.GetTemplateResponse], error) {
	principal, err := auth.RequirePermission(ctx, auth.PermTemplatesRead)
	if err != nil {
		return nil, err
	}

	id, err := parseID("id", req.Msg.Id)
	if err != nil {
		return nil, err
	}

	tmpl, err := s.templates.Get(ctx, principal.Caller(), id)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&bulkv1.GetTemplateResponse{Template: templateToWire(tmpl)}), nil
}

func (s *TemplateServer) ListTemplates(ctx context.Context, req *connect.Request[bulkv1.ListTemplatesRequest]) (*connect.Response[bulkv1.ListTemplatesResponse], error) {
	principal, err := auth.RequirePermission(ctx, auth.PermTemplatesRead)
	if err != nil {
		return nil, err
	}

	list, err := s.templates.List(ctx, principal.Caller(), models.OperationType(req.Msg.OperationType))
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &bulkv1.ListTemplatesResponse{Templates: make([]bulkv1.Template, len(list))}
	for i, tmpl := range list {
		resp.Templates[i] = templateToWire(tmpl)
	}
	return connect.NewResponse(resp), nil
}

func (s *TemplateServer) UpdateTemplate(ctx context.Context, req *connect.Request[bulkv1.UpdateTemplateRequest]) (*connect.Response[bulkv1.UpdateTemplateResponse], error) {
	principal, err := auth.RequirePermission(ctx, auth.PermTemplatesManage)
	if err != nil {
		return nil, err
	}

	id, err := parseID("id", req.Msg.Id)
	if err != nil {
		return nil, err
	}

	tmpl, err := s.templates.Update(ctx, principal.Caller(), id, bulk.TemplateInput{
		Name:          req.Msg.Name,
		Description:   req.Msg.Description,
		OperationType: models.OperationType(req.Msg.OperationType),
		Rows:          rowsFromWire(req.Msg.TemplateData),
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&bulkv1.UpdateTemplateResponse{Template: templateToWire(tmpl)}), nil
}

func (s *TemplateServer) DeleteTemplate(ctx context.Context, req *connect.Request[bulkv1.DeleteTemplateRequest]) (*connect.Response[bulkv1.DeleteTemplateResponse], error) {
	principal, err := auth.RequirePermission(ctx, auth.PermTemplatesManage)
	if err != nil {
		return nil, err
	}

	id, err := parseID("id", req.Msg.Id)
	if err != nil {
		return nil, err
	}

	if err := s.templates.Delete(ctx, principal.Caller(), id); err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&bulkv1.DeleteTemplateResponse{}), nil
}

func (s *TemplateServer) register(mux *http.ServeMux, opts ...connect.HandlerOption) {
	mux.Handle(bulkv1.TemplateServiceCreateTemplateProcedure, connect.NewUnaryHandler(bulkv1.TemplateServiceCreateTemplateProcedure, s.CreateTemplate, opts...))
	mux.Handle(bulkv1.TemplateServiceGetTemplateProcedure, connect.NewUnaryHandler(bulkv1.TemplateServiceGetTemplateProcedure, s.GetTemplate, opts...))
	mux.Handle(bulkv1.TemplateServiceListTemplatesProcedure, connect.NewUnaryHandler(bulkv1.TemplateServiceListTemplatesProcedure, s.ListTemplates, opts...))
	mux.Handle(bulkv1.TemplateServiceUpdateTemplateProcedure, connect.NewUnaryHandler(bulkv1.TemplateServiceUpdateTemplateProcedure, s.UpdateTemplate, opts...))
	mux.Handle(bulkv1.TemplateServiceDeleteTemplateProcedure, connect.NewUnaryHandler(bulkv1.TemplateServiceDeleteTemplateProcedure, s.DeleteTemplate, opts...))
}
