package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestActor(t *testing.T) {
	router := gin.New()
	router.Use(Actor())
	router.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, ActorID(c))
	})

	t.Run("header sets actor", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set(HeaderUserID, " staff-42 ")
		router.ServeHTTP(w, req)
		assert.Equal(t, "staff-42", w.Body.String())
	})

	t.Run("missing header leaves actor empty", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "req-1", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Equal(t, w.Header().Get(HeaderRequestID), w.Body.String())
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	router := gin.New()
	router.Use(Logger(logger, "/health"))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, buf.String())

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NotEmpty(t, buf.String())
	assert.Contains(t, buf.String(), `"status":404`)
	assert.Contains(t, buf.String(), `"level":"warning"`)
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://admin.lambari.com.br"}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://admin.lambari.com.br")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://admin.lambari.com.br", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
