package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"lambari-service/internal/importer"
	"lambari-service/internal/middleware"
	"lambari-service/internal/models"
	"lambari-service/internal/repository"
	"lambari-service/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	sessionSaveTimeout = 5 * time.Second
)

// ProductStore creates imported products and lists them back by import.
type ProductStore interface {
	importer.ProductRepository
	ListByImport(ctx context.Context, importID string) ([]models.Product, error)
}

// ImportPipeline is everything a request needs to build an orchestrator.
type ImportPipeline struct {
	Parser     importer.SpreadsheetParser
	Validator  *importer.Validator
	Products   ProductStore
	Brands     importer.BrandRepository
	Categories importer.CategoryRepository
	Options    importer.Options
}

type ImportHandler struct {
	pipeline ImportPipeline
	store    session.Store
	lockTTL  time.Duration
	logger   *logrus.Logger
}

// NewImportHandler wires the import routes. lockTTL bounds how long a crashed
// commit can keep a session locked; live commits refresh it.
func NewImportHandler(pipeline ImportPipeline, store session.Store, lockTTL time.Duration, logger *logrus.Logger) *ImportHandler {
	return &ImportHandler{
		pipeline: pipeline,
		store:    store,
		lockTTL:  lockTTL,
		logger:   logger,
	}
}

// ReviewResponse is the review table returned after an upload.
type ReviewResponse struct {
	SessionID    string                    `json:"sessionId"`
	Filename     string                    `json:"filename"`
	State        models.ImportState        `json:"state"`
	TotalRows    int                       `json:"totalRows"`
	ValidCount   int                       `json:"validCount"`
	WarningCount int                       `json:"warningCount"`
	ErrorCount   int                       `json:"errorCount"`
	Validations  []models.ValidationResult `json:"validations"`
	Report       *models.BulkImportReport  `json:"report,omitempty"`
	Error        string                    `json:"error,omitempty"`
	CreatedAt    time.Time                 `json:"createdAt"`
	UpdatedAt    time.Time                 `json:"updatedAt"`
}

func newReviewResponse(s *session.Session) ReviewResponse {
	return ReviewResponse{
		SessionID:    s.ID,
		Filename:     s.Filename,
		State:        s.State,
		TotalRows:    s.TotalRows,
		ValidCount:   s.ValidCount,
		WarningCount: s.WarningCount,
		ErrorCount:   s.ErrorCount,
		Validations:  s.Validations,
		Report:       s.Report,
		Error:        s.Error,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func (h *ImportHandler) newOrchestrator(actorID string) *importer.Orchestrator {
	opts := h.pipeline.Options
	opts.ActorID = actorID
	return importer.NewOrchestrator(
		h.pipeline.Parser,
		h.pipeline.Validator,
		h.pipeline.Products,
		h.pipeline.Brands,
		h.pipeline.Categories,
		opts,
	)
}

// GetImportTemplate returns the kit import template definition or file
// @Summary Download kit import template
// @Tags Kit Import
// @Produce json
// @Produce octet-stream
// @Param format query string false "json, csv or xlsx" default(json)
// @Success 200 {object} models.ImportTemplate
// @Router /kits/import/template [get]
func (h *ImportHandler) GetImportTemplate(c *gin.Context) {
	template := importer.KitImportTemplate()

	var (
		buf         bytes.Buffer
		err         error
		contentType string
		filename    string
	)
	switch c.DefaultQuery("format", "json") {
	case "csv":
		err = importer.WriteCSVTemplate(&buf, template)
		contentType, filename = "text/csv; charset=utf-8", "kits_import_template.csv"
	case "xlsx":
		err = importer.WriteXLSXTemplate(&buf, template)
		contentType, filename = xlsxContentType, "kits_import_template.xlsx"
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"template": template,
		})
		return
	}

	if err != nil {
		h.logger.WithError(err).Error("Failed to render import template")
		h.respondError(c, err, nil)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// UploadImport parses and validates a spreadsheet and opens a review session
// @Summary Upload kit spreadsheet for review
// @Tags Kit Import
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or XLSX file"
// @Success 201 {object} ReviewResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /kits/import [post]
func (h *ImportHandler) UploadImport(c *gin.Context) {
	actorID := middleware.ActorID(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("FILE_REQUIRED", "Please upload a CSV or Excel file", nil))
		return
	}
	defer file.Close()

	orch := h.newOrchestrator(actorID)
	validations, err := orch.Load(c.Request.Context(), file, header.Filename)
	if err != nil {
		h.logger.WithError(err).WithField("filename", header.Filename).Warn("Kit import upload rejected")
		h.respondError(c, err, nil)
		return
	}

	now := time.Now().UTC()
	sess := &session.Session{
		ID:          uuid.New().String(),
		Filename:    header.Filename,
		State:       orch.State(),
		Validations: validations,
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	sess.Summarize()

	if err := h.store.Save(c.Request.Context(), sess); err != nil {
		h.logger.WithError(err).Error("Failed to save import session")
		h.respondError(c, &importer.InfrastructureError{Op: "save session", Err: err}, nil)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"filename":   sess.Filename,
		"total_rows": sess.TotalRows,
		"errors":     sess.ErrorCount,
		"user_id":    actorID,
	}).Info("Kit import awaiting confirmation")

	c.JSON(http.StatusCreated, models.SuccessResponse{
		Success: true,
		Data:    newReviewResponse(sess),
	})
}

// GetImport returns a review session with its report once committed
// @Summary Get kit import session
// @Tags Kit Import
// @Produce json
// @Param sessionId path string true "Import session ID"
// @Success 200 {object} ReviewResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /kits/import/{sessionId} [get]
func (h *ImportHandler) GetImport(c *gin.Context) {
	sess, err := h.store.Get(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    newReviewResponse(sess),
	})
}

// CommitImport persists the reviewed rows of a session
// @Summary Confirm and commit a kit import
// @Tags Kit Import
// @Produce json
// @Param sessionId path string true "Import session ID"
// @Success 200 {object} models.BulkImportReport
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /kits/import/{sessionId}/commit [post]
func (h *ImportHandler) CommitImport(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("sessionId")

	lease, err := h.store.Lock(ctx, id, h.lockTTL)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	defer lease.Release()

	sess, err := h.store.Get(ctx, id)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	if committed(sess) {
		c.JSON(http.StatusConflict, errorResponse("IMPORT_ALREADY_COMMITTED", "This import has already been committed", sess.Report))
		return
	}
	if sess.State == models.ImportStateImporting {
		// An earlier commit died or lost its lock and may have written rows.
		h.respondError(c, session.ErrBusy, nil)
		return
	}
	if sess.State == models.ImportStateFailed {
		// Nothing was created by the earlier attempt, so it is safe to retry.
		sess.State = models.ImportStateValidated
		sess.Report = nil
		sess.Error = ""
	}

	orch := h.newOrchestrator(middleware.ActorID(c))
	if err := orch.Restore(sess.Validations); err != nil {
		h.respondError(c, err, nil)
		return
	}

	sess.State = models.ImportStateImporting
	sess.UpdatedAt = time.Now().UTC()
	if err := h.store.Save(ctx, sess); err != nil {
		h.respondError(c, &importer.InfrastructureError{Op: "save session", Err: err}, nil)
		return
	}

	stopRefresh := h.keepLease(ctx, lease, id)
	report, commitErr := orch.Commit(ctx, sess.Validations)
	stopRefresh()

	sess.State = orch.State()
	sess.Report = report
	sess.UpdatedAt = time.Now().UTC()
	if commitErr != nil {
		sess.Error = commitErr.Error()
	}
	h.saveDetached(ctx, sess)

	if commitErr != nil {
		var partial interface{}
		if report != nil {
			partial = report
		}
		h.respondError(c, commitErr, partial)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    report,
	})
}

// keepLease refreshes the commit lock every third of its TTL until the
// returned func is called.
func (h *ImportHandler) keepLease(ctx context.Context, lease session.Lease, id string) (stop func()) {
	interval := h.lockTTL / 3
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionSaveTimeout)
				err := lease.Refresh(refreshCtx, h.lockTTL)
				cancel()
				if err == nil {
					continue
				}
				h.logger.WithError(err).WithField("session_id", id).Warn("Failed to refresh import session lock")
				if errors.Is(err, session.ErrLockLost) {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// saveDetached stores the session even when the request was cancelled, so the
// outcome of rows already committed is never lost.
func (h *ImportHandler) saveDetached(ctx context.Context, sess *session.Session) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionSaveTimeout)
	defer cancel()
	if err := h.store.Save(saveCtx, sess); err != nil {
		h.logger.WithError(err).WithField("session_id", sess.ID).Error("Failed to save committed import session")
	}
}

// committed reports whether any product of the session was already written.
func committed(s *session.Session) bool {
	switch s.State {
	case models.ImportStateCompleted:
		return true
	case models.ImportStateFailed:
		return s.Report != nil && s.Report.SuccessCount > 0
	}
	return false
}

// CancelImport discards a review session that has not been committed
// @Summary Discard a kit import session
// @Tags Kit Import
// @Produce json
// @Param sessionId path string true "Import session ID"
// @Success 200 {object} models.SuccessResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /kits/import/{sessionId} [delete]
func (h *ImportHandler) CancelImport(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("sessionId")

	lease, err := h.store.Lock(ctx, id, h.lockTTL)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	defer lease.Release()

	if err := h.store.Delete(ctx, id); err != nil {
		h.respondError(c, err, nil)
		return
	}

	message := "Import session discarded"
	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: &message,
	})
}

// GetImportReport returns the report of a committed session
// @Summary Get kit import report
// @Tags Kit Import
// @Produce json
// @Produce octet-stream
// @Param sessionId path string true "Import session ID"
// @Param format query string false "json or xlsx" default(json)
// @Success 200 {object} models.BulkImportReport
// @Failure 404 {object} models.ErrorResponse
// @Router /kits/import/{sessionId}/report [get]
func (h *ImportHandler) GetImportReport(c *gin.Context) {
	sess, err := h.store.Get(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	if sess.Report == nil {
		c.JSON(http.StatusNotFound, errorResponse("REPORT_NOT_FOUND", "This import has not been committed yet", nil))
		return
	}

	if c.DefaultQuery("format", "json") != "xlsx" {
		c.JSON(http.StatusOK, models.SuccessResponse{
			Success: true,
			Data:    sess.Report,
		})
		return
	}

	var buf bytes.Buffer
	if err := importer.WriteReportXLSX(&buf, sess.Report); err != nil {
		h.logger.WithError(err).Error("Failed to render import report")
		h.respondError(c, err, nil)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=kits_import_"+sess.Report.ID+".xlsx")
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// GetImportedProducts lists the products a committed session created
// @Summary List products created by a kit import
// @Tags Kit Import
// @Produce json
// @Param sessionId path string true "Import session ID"
// @Success 200 {array} models.Product
// @Failure 404 {object} models.ErrorResponse
// @Router /kits/import/{sessionId}/products [get]
func (h *ImportHandler) GetImportedProducts(c *gin.Context) {
	sess, err := h.store.Get(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	if sess.Report == nil {
		c.JSON(http.StatusNotFound, errorResponse("REPORT_NOT_FOUND", "This import has not been committed yet", nil))
		return
	}

	products, err := h.pipeline.Products.ListByImport(c.Request.Context(), sess.Report.ID)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    products,
	})
}

func (h *ImportHandler) respondError(c *gin.Context, err error, data interface{}) {
	var (
		parseErr *importer.ParseError
		infraErr *importer.InfrastructureError
	)
	switch {
	case errors.As(err, &parseErr):
		c.JSON(http.StatusBadRequest, errorResponse(parseErr.Code, parseErr.Error(), data))
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse("SESSION_NOT_FOUND", "Import session not found or expired", data))
	case errors.Is(err, session.ErrBusy):
		c.JSON(http.StatusConflict, errorResponse("IMPORT_IN_PROGRESS", "This import is already being committed", data))
	case errors.Is(err, importer.ErrInvalidState):
		c.JSON(http.StatusConflict, errorResponse("INVALID_STATE", err.Error(), data))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusRequestTimeout, errorResponse("IMPORT_CANCELLED", "The import was cancelled before every row was processed", data))
	case errors.As(err, &infraErr), errors.Is(err, repository.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorResponse("SERVICE_UNAVAILABLE", err.Error(), data))
	default:
		c.JSON(http.StatusInternalServerError, errorResponse("INTERNAL_ERROR", "Unexpected error", data))
	}
}

func errorResponse(code, message string, data interface{}) models.ErrorResponse {
	return models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    code,
			Message: message,
		},
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
