package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lambari-service/internal/importer"
	"lambari-service/internal/middleware"
	"lambari-service/internal/models"
	"lambari-service/internal/repository"
	"lambari-service/internal/session"
	"lambari-service/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const kitsCSV = "nome;marca;preco;custo;categoria;estoque_P\n" +
	"Kit Verão;Pimpolho;89,90;50,00;Verão;10\n" +
	"Kit Praia;;79,90;40,00;;3\n" +
	"Kit Erro;Pimpolho;;60,00;;\n"

type fixture struct {
	router   *gin.Engine
	db       *gorm.DB
	store    *session.MemoryStore
	products *repository.ProductsRepository
	brands   *repository.BrandsRepository
}

func setupImportRouter(t *testing.T, brands importer.BrandRepository) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.OpenSQLite(t)
	products := repository.NewProductsRepository(db)
	brandsRepo := repository.NewBrandsRepository(db, nil)
	categories := repository.NewCategoriesRepository(db, nil)
	if brands == nil {
		brands = brandsRepo
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := session.NewMemoryStore(time.Hour)
	handler := NewImportHandler(ImportPipeline{
		Parser:     importer.NewParser(0),
		Validator:  importer.NewValidator(""),
		Products:   products,
		Brands:     brands,
		Categories: categories,
		Options:    importer.Options{Workers: 2},
	}, store, time.Minute, logger)

	router := gin.New()
	router.Use(middleware.Actor())
	RegisterImportRoutes(router.Group("/api/v1"), handler)

	return &fixture{router: router, db: db, store: store, products: products, brands: brandsRepo}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(middleware.HeaderUserID, "staff-7")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return f.do(t, http.MethodPost, "/api/v1/kits/import", &body, mw.FormDataContentType())
}

type reviewEnvelope struct {
	Success bool           `json:"success"`
	Data    ReviewResponse `json:"data"`
}

type reportEnvelope struct {
	Success bool                    `json:"success"`
	Data    models.BulkImportReport `json:"data"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	return resp
}

func TestGetImportTemplate(t *testing.T) {
	f := setupImportRouter(t, nil)

	w := f.do(t, http.MethodGet, "/api/v1/kits/import/template", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"entity":"kits"`)

	w = f.do(t, http.MethodGet, "/api/v1/kits/import/template?format=csv", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.True(t, strings.HasPrefix(w.Body.String(), "nome;marca;preco"))

	w = f.do(t, http.MethodGet, "/api/v1/kits/import/template?format=xlsx", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "kits_import_template.xlsx")
}

func TestUploadImport_Rejections(t *testing.T) {
	f := setupImportRouter(t, nil)

	t.Run("missing file", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/kits/import", strings.NewReader(""), "multipart/form-data; boundary=x")
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "FILE_REQUIRED", decodeError(t, w).Error.Code)
	})

	t.Run("unsupported format", func(t *testing.T) {
		w := f.upload(t, "kits.pdf", "%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n")
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, importer.CodeInvalidFormat, decodeError(t, w).Error.Code)
	})

	t.Run("no recognised header", func(t *testing.T) {
		w := f.upload(t, "kits.csv", "foo;bar\n1;2\n")
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, importer.CodeMissingHeader, decodeError(t, w).Error.Code)
	})
}

func TestImportFlow_UploadCommitReport(t *testing.T) {
	f := setupImportRouter(t, nil)
	ctx := context.Background()
	_, err := f.brands.Create(ctx, models.NewBrand{Name: "Pimpolho", Active: true})
	require.NoError(t, err)

	w := f.upload(t, "kits.csv", kitsCSV)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var review reviewEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &review))
	require.True(t, review.Success)
	sessionID := review.Data.SessionID
	require.NotEmpty(t, sessionID)
	assert.Equal(t, models.ImportStateValidated, review.Data.State)
	assert.Equal(t, 3, review.Data.TotalRows)
	assert.Equal(t, 1, review.Data.ErrorCount)
	assert.Equal(t, 2, review.Data.WarningCount)

	// Reviewing writes nothing.
	brands, err := f.brands.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, brands, 1)

	w = f.do(t, http.MethodGet, "/api/v1/kits/import/"+sessionID+"/report", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "REPORT_NOT_FOUND", decodeError(t, w).Error.Code)

	w = f.do(t, http.MethodPost, "/api/v1/kits/import/"+sessionID+"/commit", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report reportEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Data.SuccessCount)
	assert.Equal(t, 1, report.Data.ErrorCount)
	assert.Equal(t, 1, report.Data.CreatedBrands) // default brand
	assert.Equal(t, 1, report.Data.CreatedCategories)

	w = f.do(t, http.MethodPost, "/api/v1/kits/import/"+sessionID+"/commit", nil, "")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "IMPORT_ALREADY_COMMITTED", decodeError(t, w).Error.Code)

	w = f.do(t, http.MethodGet, "/api/v1/kits/import/"+sessionID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &review))
	assert.Equal(t, models.ImportStateCompleted, review.Data.State)
	require.NotNil(t, review.Data.Report)

	w = f.do(t, http.MethodGet, "/api/v1/kits/import/"+sessionID+"/report?format=xlsx", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))

	w = f.do(t, http.MethodGet, "/api/v1/kits/import/"+sessionID+"/products", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Data []models.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Data, 2)
	for _, p := range listed.Data {
		require.NotNil(t, p.CreatedByID)
		assert.Equal(t, "staff-7", *p.CreatedByID)
	}
}

func TestCommitImport_Conflicts(t *testing.T) {
	f := setupImportRouter(t, nil)

	w := f.upload(t, "kits.csv", kitsCSV)
	require.Equal(t, http.StatusCreated, w.Code)
	var review reviewEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &review))
	sessionID := review.Data.SessionID

	lease, err := f.store.Lock(context.Background(), sessionID, time.Minute)
	require.NoError(t, err)

	w = f.do(t, http.MethodPost, "/api/v1/kits/import/"+sessionID+"/commit", nil, "")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "IMPORT_IN_PROGRESS", decodeError(t, w).Error.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/kits/import/"+sessionID, nil, "")
	require.Equal(t, http.StatusConflict, w.Code)

	lease.Release()

	w = f.do(t, http.MethodPost, "/api/v1/kits/import/"+sessionID+"/commit", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCommitImport_RejectsSessionLeftImporting(t *testing.T) {
	f := setupImportRouter(t, nil)
	ctx := context.Background()
	_, err := f.brands.Create(ctx, models.NewBrand{Name: "Pimpolho", Active: true})
	require.NoError(t, err)

	w := f.upload(t, "kits.csv", kitsCSV)
	require.Equal(t, http.StatusCreated, w.Code)
	var review reviewEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &review))
	sessionID := review.Data.SessionID
	commitPath := "/api/v1/kits/import/" + sessionID + "/commit"

	w = f.do(t, http.MethodPost, commitPath, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// A commit that died mid-way leaves the session IMPORTING with no report.
	sess, err := f.store.Get(ctx, sessionID)
	require.NoError(t, err)
	sess.State = models.ImportStateImporting
	sess.Report = nil
	require.NoError(t, f.store.Save(ctx, sess))

	w = f.do(t, http.MethodPost, commitPath, nil, "")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "IMPORT_IN_PROGRESS", decodeError(t, w).Error.Code)

	var stored int64
	require.NoError(t, f.db.Model(&models.Product{}).Count(&stored).Error)
	assert.Equal(t, int64(2), stored)
}

func TestKeepLease_RefreshesUntilStopped(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := session.NewMemoryStore(time.Hour)
	h := NewImportHandler(ImportPipeline{}, store, 30*time.Millisecond, logger)
	ctx := context.Background()

	lease, err := store.Lock(ctx, "s1", h.lockTTL)
	require.NoError(t, err)

	stop := h.keepLease(ctx, lease, "s1")
	time.Sleep(100 * time.Millisecond)
	_, err = store.Lock(ctx, "s1", time.Minute)
	assert.ErrorIs(t, err, session.ErrBusy)
	stop()
	stop()

	assert.Eventually(t, func() bool {
		other, err := store.Lock(ctx, "s1", time.Minute)
		if err != nil {
			return false
		}
		other.Release()
		return true
	}, time.Second, 10*time.Millisecond)
	lease.Release()
}

func TestCancelImport(t *testing.T) {
	f := setupImportRouter(t, nil)

	w := f.upload(t, "kits.csv", kitsCSV)
	require.Equal(t, http.StatusCreated, w.Code)
	var review reviewEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &review))
	path := "/api/v1/kits/import/" + review.Data.SessionID

	w = f.do(t, http.MethodDelete, path, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		w = f.do(t, method, path, nil, "")
		require.Equal(t, http.StatusNotFound, w.Code, method)
		assert.Equal(t, "SESSION_NOT_FOUND", decodeError(t, w).Error.Code)
	}

	w = f.do(t, http.MethodPost, path+"/commit", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)

	products, err := f.products.ListByImport(context.Background(), review.Data.SessionID)
	require.NoError(t, err)
	assert.Empty(t, products)
}

type unavailableBrands struct{}

func (unavailableBrands) FindAll(context.Context) ([]models.Brand, error) {
	return nil, fmt.Errorf("%w: connection refused", repository.ErrUnavailable)
}

func (unavailableBrands) Create(context.Context, models.NewBrand) (*models.Brand, error) {
	return nil, fmt.Errorf("%w: connection refused", repository.ErrUnavailable)
}

func TestUploadImport_CatalogUnavailable(t *testing.T) {
	f := setupImportRouter(t, unavailableBrands{})

	w := f.upload(t, "kits.csv", kitsCSV)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, w).Error.Code)
}
