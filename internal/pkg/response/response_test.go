package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func serve(t *testing.T, handlers ...gin.HandlerFunc) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", handlers...)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestListSendsEmptyArray(t *testing.T) {
	_, env := serve(t, func(c *gin.Context) {
		var items []string
		List(c, items)
	})
	require.Equal(t, 0, env.Code)
	require.JSONEq(t, `[]`, string(env.Data))

	_, env = serve(t, func(c *gin.Context) {
		List(c, []string{"a"})
	})
	require.JSONEq(t, `["a"]`, string(env.Data))
}

func TestErrorAbortsChain(t *testing.T) {
	reached := false
	w, env := serve(t,
		func(c *gin.Context) { Error(c, 10000001, "missing authorization") },
		func(c *gin.Context) { reached = true },
	)
	require.False(t, reached)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 10000001, env.Code)
	require.Equal(t, "missing authorization", env.Message)
}

func TestFailCarriesCode(t *testing.T) {
	err := Fail(42, "boom")
	require.EqualError(t, err, "boom")
	coded, ok := err.(interface{ Code() uint32 })
	require.True(t, ok)
	require.Equal(t, uint32(42), coded.Code())
}
