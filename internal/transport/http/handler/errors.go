package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"docqa/internal/ai"
	appsvc "docqa/internal/app"
	"docqa/internal/chatlog"
	"docqa/internal/transport/http/response"
	"docqa/internal/vectorindex"
)

// writeError maps service errors onto the response envelope.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, appsvc.ErrEmptyQuestion):
		response.Error(c, http.StatusBadRequest, response.CodeEmptyQuestion, err.Error())
	case errors.Is(err, appsvc.ErrInvalidInput), errors.Is(err, chatlog.ErrInvalidSessionID):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, appsvc.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
	case errors.Is(err, vectorindex.ErrDimensionMismatch), errors.Is(err, vectorindex.ErrModelMismatch):
		response.Error(c, http.StatusConflict, response.CodeIndexConflict, err.Error())
	case errors.Is(err, appsvc.ErrIndexNotReady), errors.Is(err, appsvc.ErrNoDocuments):
		response.Error(c, http.StatusServiceUnavailable, response.CodeIndexNotReady, err.Error())
	case errors.Is(err, ai.ErrBackendUnconfigured):
		response.Error(c, http.StatusServiceUnavailable, response.CodeNoBackend, err.Error())
	case errors.Is(err, ai.ErrBackendTimeout):
		response.Error(c, http.StatusGatewayTimeout, response.CodeBackendTimeout, "llm backend timed out")
	case errors.Is(err, ai.ErrBackendCallFailed):
		response.Error(c, http.StatusBadGateway, response.CodeBackendFailed, "llm backend call failed")
	case errors.Is(err, appsvc.ErrEmbeddingFailed):
		response.Error(c, http.StatusBadGateway, response.CodeEmbeddingFailed, "embedding failed")
	default:
		log.Printf("http: %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "internal server error")
	}
}
