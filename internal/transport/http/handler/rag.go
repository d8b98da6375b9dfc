package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	appsvc "docqa/internal/app"
	"docqa/internal/transport/http/response"
	"docqa/internal/vectorindex"
)

// RAGService is the part of the pipeline the HTTP layer drives.
type RAGService interface {
	Ask(ctx context.Context, input appsvc.AskInput) (*appsvc.AskResult, error)
	Stats() (vectorindex.Stats, error)
	Sync(ctx context.Context) (*appsvc.BuildReport, error)
	Rebuild(ctx context.Context) (*appsvc.BuildReport, error)
	AddDocument(ctx context.Context, name string, r io.Reader) (*appsvc.BuildReport, error)
}

type RAGHandler struct {
	rag            RAGService
	maxUploadBytes int64
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k" binding:"omitempty,min=1,max=50"`
}

func NewRAGHandler(rag RAGService, maxUploadMB int) *RAGHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 20
	}
	return &RAGHandler{rag: rag, maxUploadBytes: int64(maxUploadMB) << 20}
}

func (h *RAGHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request body")
		return
	}

	result, err := h.rag.Ask(c.Request.Context(), appsvc.AskInput{
		Question: req.Question,
		TopK:     req.TopK,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *RAGHandler) IndexStats(c *gin.Context) {
	stats, err := h.rag.Stats()
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, stats)
}

func (h *RAGHandler) SyncIndex(c *gin.Context) {
	report, err := h.rag.Sync(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, report)
}

func (h *RAGHandler) RebuildIndex(c *gin.Context) {
	report, err := h.rag.Rebuild(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, report)
}

// UploadDocument accepts a multipart "file" field holding a PDF.
func (h *RAGHandler) UploadDocument(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+(1<<20))
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.rejectTooLarge(c)
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file is required")
		return
	}
	if fileHeader.Size > h.maxUploadBytes {
		h.rejectTooLarge(c)
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read uploaded file failed")
		return
	}
	defer f.Close()

	report, err := h.rag.AddDocument(c.Request.Context(), fileHeader.Filename, f)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{
		"filename": fileHeader.Filename,
		"size":     fileHeader.Size,
		"index":    report,
	})
}

func (h *RAGHandler) rejectTooLarge(c *gin.Context) {
	response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge,
		fmt.Sprintf("file exceeds %d MB", h.maxUploadBytes>>20))
}
