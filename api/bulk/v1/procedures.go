package bulkv1

const (
	// BulkServiceName is the fully-qualified name of the BulkService service.
	BulkServiceName = "bulk.v1.BulkService"
	// TemplateServiceName is the fully-qualified name of the TemplateService service.
	TemplateServiceName = "bulk.v1.TemplateService"
)

// Procedure names, used in the HTTP path of each RPC.
const (
	BulkServiceSubmitProcedure      = "/bulk.v1.BulkService/Submit"
	BulkServiceValidateProcedure    = "/bulk.v1.BulkService/Validate"
	BulkServiceGetStatusProcedure   = "/bulk.v1.BulkService/GetStatus"
	BulkServiceListHistoryProcedure = "/bulk.v1.BulkService/ListHistory"
	BulkServiceEstimateProcedure    = "/bulk.v1.BulkService/Estimate"
	BulkServiceSubscribeProcedure   = "/bulk.v1.BulkService/Subscribe"

	TemplateServiceCreateTemplateProcedure = "/bulk.v1.TemplateService/CreateTemplate"
	TemplateServiceGetTemplateProcedure    = "/bulk.v1.TemplateService/GetTemplate"
	TemplateServiceListTemplatesProcedure  = "/bulk.v1.TemplateService/ListTemplates"
	TemplateServiceUpdateTemplateProcedure = "/bulk.v1.TemplateService/UpdateTemplate"
	TemplateServiceDeleteTemplateProcedure = "/bulk.v1.TemplateService/DeleteTemplate"
)

// BulkServicePath and TemplateServicePath are the mux prefixes of each service.
const (
	BulkServicePath     = "/" + BulkServiceName + "/"
	TemplateServicePath = "/" + TemplateServiceName + "/"
)

// RowErrorHeader is the error metadata key listing rejected rows, one value per row.
const RowErrorHeader = "Bulk-Row-Error"
