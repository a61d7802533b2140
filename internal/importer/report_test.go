package importer

import (
	"testing"
	"time"

	"lambari-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestBuildReport(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	validations := []models.ValidationResult{
		{Row: 2, Status: models.RowStatusValid},
		{Row: 3, Status: models.RowStatusWarning},
		{Row: 4, Status: models.RowStatusError},
		{Row: 5, Status: models.RowStatusValid},
		{Row: 6, Status: models.RowStatusValid},
	}
	outcomes := []models.RowOutcome{
		{Row: 6, Status: models.OutcomeSkipped, Code: models.OutcomeCodeCancelled},
		{Row: 3, Status: models.OutcomeCreated, ProductID: "p-3"},
		{Row: 2, Status: models.OutcomeCreated, ProductID: "p-2"},
		{Row: 4, Status: models.OutcomeSkipped, Code: models.OutcomeCodeValidationError},
		{Row: 5, Status: models.OutcomeFailed, Code: models.OutcomeCodeCreateFailed},
	}

	report := BuildReport(5, validations, outcomes, CreatedCounts{Brands: 2, Categories: 1}, ts)

	assert.Equal(t, 5, report.TotalRows)
	assert.Equal(t, 3, report.ValidCount)
	assert.Equal(t, 1, report.WarningCount)
	assert.Equal(t, 1, report.ErrorCount)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 2, report.CreatedProducts)
	assert.Equal(t, 1, report.CommitFailureCount)
	assert.Equal(t, 1, report.SkippedCount)
	assert.Equal(t, 2, report.CreatedBrands)
	assert.Equal(t, 1, report.CreatedCategories)
	assert.Equal(t, []string{"p-2", "p-3"}, report.CreatedProductIDs)
	assert.Equal(t, ts, report.Timestamp)
	assert.Equal(t, 2, report.Outcomes[0].Row)
	assert.Equal(t, 6, report.Outcomes[4].Row)
	// input order is left alone
	assert.Equal(t, 6, outcomes[0].Row)
}

func TestBuildReport_Empty(t *testing.T) {
	report := BuildReport(0, nil, nil, CreatedCounts{}, time.Time{})

	assert.Equal(t, 0, report.TotalRows)
	assert.NotNil(t, report.Validations)
	assert.Empty(t, report.Outcomes)
	assert.Nil(t, report.CreatedProductIDs)
}
