package importer

import (
	"sort"
	"time"

	"lambari-service/internal/models"
)

// CreatedCounts are the entity creations performed by the resolver.
type CreatedCounts struct {
	Brands     int
	Categories int
}

// BuildReport aggregates validation results and commit outcomes. It has no
// side effects; the caller assigns the report ID and duration.
func BuildReport(totalRows int, validations []models.ValidationResult, outcomes []models.RowOutcome, counts CreatedCounts, timestamp time.Time) *models.BulkImportReport {
	report := &models.BulkImportReport{
		TotalRows:         totalRows,
		CreatedBrands:     counts.Brands,
		CreatedCategories: counts.Categories,
		Validations:       validations,
		Timestamp:         timestamp,
	}
	if report.Validations == nil {
		report.Validations = []models.ValidationResult{}
	}

	for _, v := range validations {
		switch v.Status {
		case models.RowStatusValid:
			report.ValidCount++
		case models.RowStatusWarning:
			report.WarningCount++
		case models.RowStatusError:
			report.ErrorCount++
		}
	}

	sorted := make([]models.RowOutcome, len(outcomes))
	copy(sorted, outcomes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Row < sorted[j].Row })
	report.Outcomes = sorted

	for _, o := range sorted {
		switch o.Status {
		case models.OutcomeCreated:
			report.SuccessCount++
			report.CreatedProductIDs = append(report.CreatedProductIDs, o.ProductID)
		case models.OutcomeFailed:
			report.CommitFailureCount++
		case models.OutcomeSkipped:
			if o.Code != models.OutcomeCodeValidationError {
				report.SkippedCount++
			}
		}
	}
	report.CreatedProducts = report.SuccessCount
	return report
}
