package models

import "time"

// ImportFormat represents the file format for import
type ImportFormat string

const (
	ImportFormatCSV  ImportFormat = "csv"
	ImportFormatXLSX ImportFormat = "xlsx"
	ImportFormatJSON ImportFormat = "json"
)

// ImportState is the lifecycle position of one import run.
type ImportState string

const (
	ImportStateIdle      ImportState = "IDLE"
	ImportStateParsed    ImportState = "PARSED"
	ImportStateValidated ImportState = "VALIDATED"
	ImportStateImporting ImportState = "IMPORTING"
	ImportStateCompleted ImportState = "COMPLETED"
	ImportStateFailed    ImportState = "FAILED"
)

// RawRow is one non-blank spreadsheet row keyed by canonical column.
// Line is the 1-based spreadsheet line; the header sits on line 1.
type RawRow struct {
	Line  int               `json:"line"`
	Cells map[string]string `json:"cells"`
}

// Get returns the trimmed cell value for key.
func (r RawRow) Get(key string) string {
	if r.Cells == nil {
		return ""
	}
	return r.Cells[key]
}

// RowStatus classifies a validated row
type RowStatus string

const (
	RowStatusValid   RowStatus = "valid"
	RowStatusWarning RowStatus = "warning"
	RowStatusError   RowStatus = "error"
)

// Severity of a single validation issue
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ValidationIssue is one field-level finding on a row.
type ValidationIssue struct {
	Column   string   `json:"column,omitempty"`
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ProductDraft is the product payload extracted from a row before entity ids
// are known.
type ProductDraft struct {
	Name         string     `json:"name,omitempty"`
	BrandName    string     `json:"brand,omitempty"`
	CategoryName string     `json:"category,omitempty"`
	Description  string     `json:"description,omitempty"`
	Price        float64    `json:"price,omitempty"`
	CostPrice    float64    `json:"costPrice,omitempty"`
	Stock        StockMap   `json:"stock"`
	Images       StringList `json:"images,omitempty"`
	Active       bool       `json:"active"`
	NewBrand     bool       `json:"newBrand,omitempty"`
	NewCategory  bool       `json:"newCategory,omitempty"`
}

// ValidationResult is the review-table entry for one row.
type ValidationResult struct {
	Row          int               `json:"row"`
	Status       RowStatus         `json:"status"`
	Messages     []string          `json:"messages"`
	Issues       []ValidationIssue `json:"issues,omitempty"`
	Data         ProductDraft      `json:"data"`
	OriginalData map[string]string `json:"originalData"`
}

// Importable reports whether the row should be persisted on commit.
func (v ValidationResult) Importable() bool {
	return v.Status == RowStatusValid || v.Status == RowStatusWarning
}

// OutcomeStatus is the commit-time result for one row
type OutcomeStatus string

const (
	OutcomeCreated OutcomeStatus = "created"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Outcome codes
const (
	OutcomeCodeValidationError = "VALIDATION_ERROR"
	OutcomeCodeCancelled       = "CANCELLED"
	OutcomeCodeAborted         = "ABORTED"
	OutcomeCodeBrandFailed     = "BRAND_RESOLUTION_FAILED"
	OutcomeCodeCategoryFailed  = "CATEGORY_RESOLUTION_FAILED"
	OutcomeCodeCreateFailed    = "CREATE_FAILED"
	OutcomeCodeDuplicate       = "DUPLICATE"
	OutcomeCodeTimeout         = "TIMEOUT"
)

// RowOutcome records what commit did with a row.
type RowOutcome struct {
	Row        int           `json:"row"`
	Status     OutcomeStatus `json:"status"`
	ProductID  string        `json:"productId,omitempty"`
	BrandID    string        `json:"brandId,omitempty"`
	CategoryID string        `json:"categoryId,omitempty"`
	Code       string        `json:"code,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// BulkImportReport summarises one import run. WarningCount and ErrorCount are
// validation-time classifications; CommitFailureCount counts rows whose
// persistence failed.
type BulkImportReport struct {
	ID                 string             `json:"id"`
	TotalRows          int                `json:"totalRows"`
	ValidCount         int                `json:"validCount"`
	WarningCount       int                `json:"warningCount"`
	ErrorCount         int                `json:"errorCount"`
	SuccessCount       int                `json:"successCount"`
	CommitFailureCount int                `json:"commitFailureCount"`
	SkippedCount       int                `json:"skippedCount"`
	CreatedProducts    int                `json:"createdProducts"`
	CreatedCategories  int                `json:"createdCategories"`
	CreatedBrands      int                `json:"createdBrands"`
	CreatedProductIDs  []string           `json:"createdProductIds,omitempty"`
	Validations        []ValidationResult `json:"validations"`
	Outcomes           []RowOutcome       `json:"outcomes"`
	Timestamp          time.Time          `json:"timestamp"`
	DurationMs         int64              `json:"durationMs"`
}

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Type        string   `json:"type"` // string, number, boolean, list
	Example     string   `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	Entity     string                 `json:"entity"`
	Version    string                 `json:"version"`
	Columns    []ImportTemplateColumn `json:"columns"`
	SampleData []map[string]string    `json:"sampleData,omitempty"`
}
