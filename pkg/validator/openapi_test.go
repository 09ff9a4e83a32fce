package validator

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `openapi: 3.0.3
info:
  title: Test API
  version: 1.0.0
paths:
  /api/chat:
    post:
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [message]
              properties:
                message:
                  type: string
                  minLength: 1
      responses:
        "200":
          description: OK
`

func writeTestSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSchema), 0o644))
	return path
}

// newValidatedEngine registers the middleware before any routes, the same
// order the server wires it
func newValidatedEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	v, err := NewOpenAPIValidator(writeTestSchema(t))
	require.NoError(t, err)

	e := gin.New()
	e.Use(v.Middleware())
	e.POST("/api/chat", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	e.GET("/api/unlisted", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return e
}

func TestSchemaRejectsMalformedBody(t *testing.T) {
	e := newValidatedEngine(t)

	for _, body := range []string{"{not json", `{"wrong":"field"}`, `{"message":""}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		e.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, w.Body.String(), "Invalid request", body)
	}
}

func TestSchemaAcceptsValidBody(t *testing.T) {
	e := newValidatedEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutesOutsideSchemaPassThrough(t *testing.T) {
	e := newValidatedEngine(t)

	req := httptest.NewRequest(http.MethodGet, "/api/unlisted", nil)
	w := httptest.NewRecorder()

	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
