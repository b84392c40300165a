package bulkv1

import "time"

// Row is one raw CSV row keyed by column name.
type Row = map[string]string

type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

type Estimate struct {
	EstimatedSeconds int `json:"estimatedSeconds"`
	EstimatedMinutes int `json:"estimatedMinutes"`
}

type TargetResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ItemOutcome struct {
	Index          int           `json:"index"`
	Identity       string        `json:"identity"`
	LocalResult    TargetResult  `json:"localResult"`
	ExternalResult *TargetResult `json:"externalResult,omitempty"`
}

type BulkOperation struct {
	Id             string        `json:"id"`
	OrganizationId string        `json:"organizationId"`
	OperationType  string        `json:"operationType"`
	OperationName  string        `json:"operationName,omitempty"`
	SyncExternal   bool          `json:"syncExternal"`
	Status         string        `json:"status"`
	TotalItems     int           `json:"totalItems"`
	ProcessedItems int           `json:"processedItems"`
	SuccessCount   int           `json:"successCount"`
	FailureCount   int           `json:"failureCount"`
	Progress       int           `json:"progress"`
	Results        []ItemOutcome `json:"results,omitempty"`
	ErrorMessage   string        `json:"errorMessage,omitempty"`
	CreatedBy      string        `json:"createdBy"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Snapshot is the full counters of an operation at one instant.
type Snapshot struct {
	BulkOperationId string    `json:"bulkOperationId"`
	Status          string    `json:"status"`
	TotalItems      int       `json:"totalItems"`
	ProcessedItems  int       `json:"processedItems"`
	SuccessCount    int       `json:"successCount"`
	FailureCount    int       `json:"failureCount"`
	Progress        int       `json:"progress"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type SubmitRequest struct {
	OperationType string `json:"operationType,omitempty"`
	OperationName string `json:"operationName,omitempty"`
	SyncExternal  bool   `json:"syncExternal,omitempty"`
	Strict        bool   `json:"strict,omitempty"`
	Items         []Row  `json:"items,omitempty"`
	TemplateId    string `json:"templateId,omitempty"`
}

type SubmitResponse struct {
	BulkOperationId string     `json:"bulkOperationId"`
	Status          string     `json:"status"`
	TotalItems      int        `json:"totalItems"`
	Rejected        []RowError `json:"rejected,omitempty"`
	Estimate        Estimate   `json:"estimate"`
}

type ValidateRequest struct {
	OperationType string `json:"operationType"`
	SyncExternal  bool   `json:"syncExternal,omitempty"`
	Items         []Row  `json:"items"`
}

type ValidateResponse struct {
	ValidCount int        `json:"validCount"`
	Errors     []RowError `json:"errors,omitempty"`
	Estimate   Estimate   `json:"estimate"`
}

type GetStatusRequest struct {
	BulkOperationId string `json:"bulkOperationId"`
}

type GetStatusResponse struct {
	Operation BulkOperation `json:"operation"`
	Remaining Estimate      `json:"remaining"`
}

type ListHistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

type ListHistoryResponse struct {
	Operations []BulkOperation `json:"operations"`
}

type EstimateRequest struct {
	ItemCount           int  `json:"itemCount"`
	IncludeExternalSync bool `json:"includeExternalSync,omitempty"`
}

type EstimateResponse struct {
	Estimate
}

type SubscribeRequest struct {
	BulkOperationId string `json:"bulkOperationId"`
}

// ProgressEvent types.
const (
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

type ProgressEvent struct {
	Type     string   `json:"type"`
	Snapshot Snapshot `json:"snapshot"`
}

type Template struct {
	Id            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	OperationType string    `json:"operationType"`
	TemplateData  []Row     `json:"templateData,omitempty"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type CreateTemplateRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	OperationType string `json:"operationType"`
	TemplateData  []Row  `json:"templateData,omitempty"`
}

type CreateTemplateResponse struct {
	Template Template `json:"template"`
}

type GetTemplateRequest struct {
	Id string `json:"id"`
}

type GetTemplateResponse struct {
	Template Template `json:"template"`
}

type ListTemplatesRequest struct {
	OperationType string `json:"operationType,omitempty"`
}

type ListTemplatesResponse struct {
	Templates []Template `json:"templates"`
}

type UpdateTemplateRequest struct {
	Id            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	OperationType string `json:"operationType"`
	TemplateData  []Row  `json:"templateData,omitempty"`
}

type UpdateTemplateResponse struct {
	Template Template `json:"template"`
}

type DeleteTemplateRequest struct {
	Id string `json:"id"`
}

type DeleteTemplateResponse struct{}
