package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

// Every API reply is HTTP 200 with a {code, message, data} envelope; code 0
// means success and errcode values describe failures.

type apiError struct {
	code uint32
	msg  string
}

func (e apiError) Error() string {
	return e.msg
}

func (e apiError) Code() uint32 {
	return e.code
}

// Fail builds an error that carries an errcode through the envelope.
func Fail(code int, msg string) error {
	return apiError{code: uint32(code), msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// List replies with items, sending [] rather than null when there are none.
func List[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	proxyutil.SuccessJson(c, items)
}

// Error replies with an errcode and aborts the handler chain, so
// middleware can return right after calling it.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, http.StatusOK, Fail(code, message))
}
