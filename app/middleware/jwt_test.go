package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcompressor/app/auth"
	"vcompressor/app/config"
	"vcompressor/app/model"
)

func newRouter(svc *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWTAuth(svc), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": c.GetString(ContextUsername)})
	})
	r.GET("/admin", JWTAuth(svc), AdminOnly(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r *gin.Engine, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	svc := auth.NewJWTService(config.JWTConfig{Secret: "s", ExpireTime: 1, Issuer: "vcompressor"})
	r := newRouter(svc)

	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "Bearer abc").Code)

	token, _, err := svc.GenerateToken(&model.User{ID: 1, Username: "bob"})
	require.NoError(t, err)
	w := do(r, "/me", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bob")

	assert.Equal(t, http.StatusForbidden, do(r, "/admin", "Bearer "+token).Code)

	adminToken, _, err := svc.GenerateToken(&model.User{ID: 2, Username: "admin", IsAdmin: true})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, do(r, "/admin", "Bearer "+adminToken).Code)
}
