package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docqa/internal/bootstrap"
	"docqa/internal/transport/http/handler"
	"docqa/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	ragHandler := handler.NewRAGHandler(app.RAG, app.Config.Documents.MaxUploadMB)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	v1.POST("/ask", ragHandler.Ask)
	v1.GET("/index", ragHandler.IndexStats)
	v1.POST("/index/sync", ragHandler.SyncIndex)
	v1.POST("/index/rebuild", ragHandler.RebuildIndex)
	v1.POST("/documents", ragHandler.UploadDocument)

	if app.Chat != nil {
		chatHandler := handler.NewChatHandler(app.Chat)
		sessions := v1.Group("/sessions")
		sessions.POST("", chatHandler.CreateSession)
		sessions.GET("/:id", chatHandler.GetSession)
		sessions.POST("/:id/messages", chatHandler.SendMessage)
		sessions.DELETE("/:id", chatHandler.DeleteSession)
	}

	return router
}

// Serve runs the API until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, app *bootstrap.App) error {
	server := &http.Server{
		Addr:              app.Config.HTTPAddr(),
		Handler:           NewRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
