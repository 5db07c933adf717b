package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-pos-sync/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(permissive bool, iss *auth.Issuer) *gin.Engine {
	r := gin.New()
	api := r.Group("/api", AccessKey(auth.NewKeyVerifier("sync-key", ""), iss, permissive))
	api.GET("/sync", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(KeyRole)) })
	api.GET("/admin", RequireRole("admin"), func(c *gin.Context) { c.String(http.StatusOK, c.GetString(KeyUserID)) })
	return r
}

func get(r http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAccessKeyHeaders(t *testing.T) {
	r := newRouter(false, nil)

	w := get(r, "/api/sync", map[string]string{"Authorization": "Bearer sync-key"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, RolePeer, w.Body.String())

	w = get(r, "/api/sync", map[string]string{"x-api-key": "sync-key"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(r, "/api/sync", map[string]string{"x-api-key": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(r, "/api/sync", map[string]string{"Authorization": "sync-key"})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "bearer prefix is required")

	w = get(r, "/api/sync", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPermissiveMode(t *testing.T) {
	r := newRouter(true, nil)
	w := get(r, "/api/sync", map[string]string{"x-api-key": "wrong"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDashboardTokenAndRoles(t *testing.T) {
	iss := auth.NewIssuer("secret", time.Hour)
	r := newRouter(false, iss)

	admin, err := iss.GenerateToken("u-admin", "admin")
	require.NoError(t, err)
	cashier, err := iss.GenerateToken("u-cash", "cashier")
	require.NoError(t, err)

	w := get(r, "/api/admin", map[string]string{"Authorization": "Bearer " + admin})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-admin", w.Body.String())

	w = get(r, "/api/admin", map[string]string{"Authorization": "Bearer " + cashier})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = get(r, "/api/admin", map[string]string{"x-api-key": "sync-key"})
	assert.Equal(t, http.StatusForbidden, w.Code, "the sync key is not an admin login")
}
