package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestHealthz_AlwaysOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(nil)

	router := gin.New()
	router.GET("/healthz", h.Healthz)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyz_NilDBIsOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(nil)

	router := gin.New()
	router.GET("/readyz", h.Readyz)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
