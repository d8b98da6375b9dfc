package response

import "github.com/gin-gonic/gin"

const (
	CodeOK              = 0
	CodeBadRequest      = 40000
	CodeEmptyQuestion   = 40001
	CodeUnauthorized    = 40100
	CodeSessionNotFound = 40401
	CodeIndexConflict   = 40901
	CodeFileTooLarge    = 41300
	CodeInternalServer  = 50000
	CodeBackendFailed   = 50201
	CodeEmbeddingFailed = 50202
	CodeIndexNotReady   = 50301
	CodeNoBackend       = 50302
	CodeBackendTimeout  = 50401
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
