package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Timeout   time.Duration
	Debug     bool

	// Token is sent as a bearer token when set.
	Token string
	// Headers are extra request headers, used for development identity headers.
	Headers http.Header
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		Timeout:   5 * time.Minute,
		Debug:     false,
	}
}

// Clients holds the RPC clients
type Clients struct {
	Bulk      *BulkClient
	Templates *TemplateClient
}

// NewClients creates new RPC clients with the given configuration. Streams use a client
// without a timeout so monitoring can outlast a long operation.
func NewClients(config Config, clientOpts ...connect.ClientOption) *Clients {
	httpClient := &http.Client{Timeout: config.Timeout}
	streamClient := &http.Client{}

	baseURL := strings.TrimSuffix(config.ServerURL, "/")
	opts := []connect.ClientOption{
		bulkv1.WithCodec(),
		connect.WithInterceptors(newHeaderInterceptor(config)),
	}
	opts = append(opts, clientOpts...)

	return &Clients{
		Bulk: &BulkClient{
			submit:      connect.NewClient[bulkv1.SubmitRequest, bulkv1.SubmitResponse](httpClient, baseURL+bulkv1.BulkServiceSubmitProcedure, opts...),
			validate:    connect.NewClient[bulkv1.ValidateRequest, bulkv1.ValidateResponse](httpClient, baseURL+bulkv1.BulkServiceValidateProcedure, opts...),
			getStatus:   connect.NewClient[bulkv1.GetStatusRequest, bulkv1.GetStatusResponse](httpClient, baseURL+bulkv1.BulkServiceGetStatusProcedure, opts...),
			listHistory: connect.NewClient[bulkv1.ListHistoryRequest, bulkv1.ListHistoryResponse](httpClient, baseURL+bulkv1.BulkServiceListHistoryProcedure, opts...),
			estimate:    connect.NewClient[bulkv1.EstimateRequest, bulkv1.EstimateResponse](httpClient, baseURL+bulkv1.BulkServiceEstimateProcedure, opts...),
			subscribe:   connect.NewClient[bulkv1.SubscribeRequest, bulkv1.ProgressEvent](streamClient, baseURL+bulkv1.BulkServiceSubscribeProcedure, opts...),
		},
		Templates: &TemplateClient{
			create: connect.NewClient[bulkv1.CreateTemplateRequest, bulkv1.CreateTemplateResponse](httpClient, baseURL+bulkv1.TemplateServiceCreateTemplateProcedure, opts...),
			get:    connect.NewClient[bulkv1.GetTemplateRequest, bulkv1.GetTemplateResponse](httpClient, baseURL+bulkv1.TemplateServiceGetTemplateProcedure, opts...),
			list:   connect.NewClient[bulkv1.ListTemplatesRequest, bulkv1.ListTemplatesResponse](httpClient, baseURL+bulkv1.TemplateServiceListTemplatesProcedure, opts...),
			update: connect.NewClient[bulkv1.UpdateTemplateRequest, bulkv1.UpdateTemplateResponse](httpClient, baseURL+bulkv1.TemplateServiceUpdateTemplateProcedure, opts...),
			delete: connect.NewClient[bulkv1.DeleteTemplateRequest, bulkv1.DeleteTemplateResponse](httpClient, baseURL+bulkv1.TemplateServiceDeleteTemplateProcedure, opts...),
		},
	}
}

type BulkClient struct {
	submit      *connect.Client[bulkv1.SubmitRequest, bulkv1.SubmitResponse]
	validate    *connect.Client[bulkv1.ValidateRequest, bulkv1.ValidateResponse]
	getStatus   *connect.Client[bulkv1.GetStatusRequest, bulkv1.GetStatusResponse]
	listHistory *connect.Client[bulkv1.ListHistoryRequest, bulkv1.ListHistoryResponse]
	estimate    *connect.Client[bulkv1.EstimateRequest, bulkv1.EstimateResponse]
	subscribe   *connect.Client[bulkv1.SubscribeRequest, bulkv1.ProgressEvent]
}

func (c *BulkClient) Submit(ctx context.Context, req *bulkv1.SubmitRequest) (*bulkv1.SubmitResponse, error) {
	return call(ctx, c.submit, req)
}

func (c *BulkClient) Validate(ctx context.Context, req *bulkv1.ValidateRequest) (*bulkv1.ValidateResponse, error) {
	return call(ctx, c.validate, req)
}

func (c *BulkClient) GetStatus(ctx context.Context, id string) (*bulkv1.GetStatusResponse, error) {
	return call(ctx, c.getStatus, &bulkv1.GetStatusRequest{BulkOperationId: id})
}

func (c *BulkClient) ListHistory(ctx context.Context, limit int) (*bulkv1.ListHistoryResponse, error) {
	return call(ctx, c.listHistory, &bulkv1.ListHistoryRequest{Limit: limit})
}

func (c *BulkClient) Estimate(ctx context.Context, req *bulkv1.EstimateRequest) (*bulkv1.EstimateResponse, error) {
	return call(ctx, c.estimate, req)
}

// Subscribe calls fn for every progress event until the stream ends. A stream that ends
// without error after a terminal event returns nil.
func (c *BulkClient) Subscribe(ctx context.Context, id string, fn func(*bulkv1.ProgressEvent) error) error {
	stream, err := c.subscribe.CallServerStream(ctx, connect.NewRequest(&bulkv1.SubscribeRequest{BulkOperationId: id}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}

	return stream.Err()
}

type TemplateClient struct {
	create *connect.Client[bulkv1.CreateTemplateRequest, bulkv1.CreateTemplateResponse]
	get    *connect.Client[bulkv1.GetTemplateRequest, bulkv1.GetTemplateResponse]
	list   *connect.Client[bulkv1.ListTemplatesRequest, bulkv1.ListTemplatesResponse]
	update *connect.Client[bulkv1.UpdateTemplateRequest, bulkv1.UpdateTemplateResponse]
	delete *connect.Client[bulkv1.DeleteTemplateRequest, bulkv1.DeleteTemplateResponse]
}

func (c *TemplateClient) Create(ctx context.Context, req *bulkv1.CreateTemplateRequest) (*bulkv1.Template, error) {
	resp, err := call(ctx, c.create, req)
	if err != nil {
		return nil, err
	}
	return &resp.Template, nil
}

func (c *TemplateClient) Get(ctx context.Context, id string) (*bulkv1.Template, error) {
	resp, err := call(ctx, c.get, &bulkv1.GetTemplateRequest{Id: id})
	if err != nil {
		return nil, err
	}
	return &resp.Template, nil
}

func (c *TemplateClient) List(ctx context.Context, operationType string) ([]bulkv1.Template, error) {
	resp, err := call(ctx, c.list, &bulkv1.ListTemplatesRequest{OperationType: operationType})
	if err != nil {
		return nil, err
	}
	return resp.Templates, nil
}

func (c *TemplateClient) Update(ctx context.Context, req *bulkv1.UpdateTemplateRequest) (*bulkv1.Template, error) {
	resp, err := call(ctx, c.update, req)
	if err != nil {
		return nil, err
	}
	return &resp.Template, nil
}

func (c *TemplateClient) Delete(ctx context.Context, id string) error {
	_, err := call(ctx, c.delete, &bulkv1.DeleteTemplateRequest{Id: id})
	return err
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
