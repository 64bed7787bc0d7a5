package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftbench/livebuild/internal/shared/id"
)

func newRequestIDRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"requestId": c.GetString(ContextRequestID)})
	})
	return r
}

func TestRequestIDGenerated(t *testing.T) {
	r := newRequestIDRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(rec, req)

	rid := rec.Header().Get(HeaderRequestID)
	require.NotEmpty(t, rid)
	assert.True(t, id.IsValid(rid, id.RequestPrefix))
}

func TestRequestIDEchoed(t *testing.T) {
	r := newRequestIDRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req_client_supplied")
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req_client_supplied", rec.Header().Get(HeaderRequestID))
}
