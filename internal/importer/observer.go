package importer

import (
	"context"

	"lambari-service/internal/models"

	"github.com/sirupsen/logrus"
)

// Entity kinds reported to observers
const (
	EntityBrand    = "brand"
	EntityCategory = "category"
)

// Observer receives pipeline events. Implementations must not block and must
// be safe for concurrent use when commits run with several workers.
type Observer interface {
	RowValidated(ctx context.Context, result models.ValidationResult)
	RowCommitted(ctx context.Context, outcome models.RowOutcome)
	EntityCreated(ctx context.Context, kind, id, name string)
	ImportCompleted(ctx context.Context, report *models.BulkImportReport, err error)
}

// Observers fans events out to every observer in order.
type Observers []Observer

func (o Observers) RowValidated(ctx context.Context, result models.ValidationResult) {
	for _, obs := range o {
		obs.RowValidated(ctx, result)
	}
}

func (o Observers) RowCommitted(ctx context.Context, outcome models.RowOutcome) {
	for _, obs := range o {
		obs.RowCommitted(ctx, outcome)
	}
}

func (o Observers) EntityCreated(ctx context.Context, kind, id, name string) {
	for _, obs := range o {
		obs.EntityCreated(ctx, kind, id, name)
	}
}

func (o Observers) ImportCompleted(ctx context.Context, report *models.BulkImportReport, err error) {
	for _, obs := range o {
		obs.ImportCompleted(ctx, report, err)
	}
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) RowValidated(context.Context, models.ValidationResult)            {}
func (NopObserver) RowCommitted(context.Context, models.RowOutcome)                  {}
func (NopObserver) EntityCreated(context.Context, string, string, string)            {}
func (NopObserver) ImportCompleted(context.Context, *models.BulkImportReport, error) {}

// LogObserver writes pipeline events to a logrus logger.
type LogObserver struct {
	logger *logrus.Entry
}

func NewLogObserver(logger *logrus.Logger) *LogObserver {
	return &LogObserver{logger: logger.WithField("component", "kit-import")}
}

func (l *LogObserver) RowValidated(_ context.Context, result models.ValidationResult) {
	if result.Status == models.RowStatusValid {
		return
	}
	l.logger.WithFields(logrus.Fields{
		"row":      result.Row,
		"status":   result.Status,
		"messages": result.Messages,
	}).Debug("Row flagged during validation")
}

func (l *LogObserver) RowCommitted(_ context.Context, outcome models.RowOutcome) {
	fields := logrus.Fields{
		"row":    outcome.Row,
		"status": outcome.Status,
	}
	switch outcome.Status {
	case models.OutcomeFailed:
		fields["code"] = outcome.Code
		fields["error"] = outcome.Error
		l.logger.WithFields(fields).Warn("Row failed to import")
	case models.OutcomeCreated:
		fields["product_id"] = outcome.ProductID
		l.logger.WithFields(fields).Debug("Row imported")
	}
}

func (l *LogObserver) EntityCreated(_ context.Context, kind, id, name string) {
	l.logger.WithFields(logrus.Fields{
		"kind": kind,
		"id":   id,
		"name": name,
	}).Info("Created catalog entity during import")
}

func (l *LogObserver) ImportCompleted(_ context.Context, report *models.BulkImportReport, err error) {
	entry := l.logger
	if report != nil {
		entry = entry.WithFields(logrus.Fields{
			"import_id":          report.ID,
			"total_rows":         report.TotalRows,
			"success":            report.SuccessCount,
			"commit_failures":    report.CommitFailureCount,
			"validation_errors":  report.ErrorCount,
			"created_brands":     report.CreatedBrands,
			"created_categories": report.CreatedCategories,
			"duration_ms":        report.DurationMs,
		})
	}
	if err != nil {
		entry.WithError(err).Error("Import stopped before every row was attempted")
		return
	}
	entry.Info("Import completed")
}
