package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docqa/internal/ai"
	"docqa/internal/bootstrap"
)

type HealthHandler struct {
	app *bootstrap.App
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type indexSummary struct {
	Count          int    `json:"count"`
	Dimension      int    `json:"dimension"`
	EmbeddingModel string `json:"embedding_model"`
	Generation     int    `json:"generation"`
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

// Check reports the index and every configured dependency. Dependencies
// that are not configured are left out.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	indexStatus, summary := h.checkIndex()
	deps := gin.H{"index": indexStatus}
	allOK := indexStatus.OK
	if h.app.MySQL != nil {
		st := h.checkMySQL(ctx)
		deps["mysql"] = st
		allOK = allOK && st.OK
	}
	if h.app.Redis != nil {
		st := h.checkRedis(ctx)
		deps["redis"] = st
		allOK = allOK && st.OK
	}
	if h.app.MQConn != nil {
		st := h.checkRabbitMQ()
		deps["rabbitmq"] = st
		allOK = allOK && st.OK
	}

	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}

	backend := ""
	if h.app.Backend != nil {
		backend = h.app.Backend.Name()
	}
	c.JSON(statusCode, gin.H{
		"app":          h.app.Config.App.Name,
		"env":          h.app.Config.App.Env,
		"uptime_sec":   int(time.Since(h.app.StartedAt).Seconds()),
		"llm_backend":  backend,
		"llm_backends": ai.DefaultRegistry.Names(),
		"index":        summary,
		"dependencies": deps,
	})
}

// checkIndex returns a nil summary when no index is loaded.
func (h *HealthHandler) checkIndex() (dependencyStatus, *indexSummary) {
	if h.app.RAG == nil {
		return dependencyStatus{OK: false, Message: "rag service not initialized"}, nil
	}
	stats, err := h.app.RAG.Stats()
	if err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}, nil
	}
	return dependencyStatus{OK: true}, &indexSummary{
		Count:          stats.Count,
		Dimension:      stats.Dimension,
		EmbeddingModel: stats.EmbeddingModel,
		Generation:     stats.Generation,
	}
}

func (h *HealthHandler) checkMySQL(ctx context.Context) dependencyStatus {
	sqlDB, err := h.app.MySQL.DB()
	if err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRedis(ctx context.Context) dependencyStatus {
	if err := h.app.Redis.Ping(ctx).Err(); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRabbitMQ() dependencyStatus {
	if h.app.MQConn.IsClosed() {
		return dependencyStatus{OK: false, Message: "connection closed"}
	}
	return dependencyStatus{OK: true}
}
