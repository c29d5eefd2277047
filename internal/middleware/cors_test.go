package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func corsRequest(t *testing.T, allowlist []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(allowlist))
	r.Any("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(method, "/x", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	w := corsRequest(t, nil, http.MethodGet, "https://a.example")
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = corsRequest(t, []string{" https://a.example "}, http.MethodGet, "https://a.example")
	require.Equal(t, "https://a.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = corsRequest(t, []string{"https://a.example"}, http.MethodGet, "https://evil.example")
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, http.StatusOK, w.Code)

	w = corsRequest(t, nil, http.MethodOptions, "https://a.example")
	require.Equal(t, http.StatusNoContent, w.Code)
}
