package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/serpwatch/serpwatch/config"
	"github.com/serpwatch/serpwatch/internal/handler"
)

func Setup(
	cfg *config.Config,
	runHandler *handler.RunHandler,
	taskHandler *handler.TaskHandler,
	keywordHandler *handler.KeywordHandler,
	resultHandler *handler.ResultHandler,
	configHandler *handler.ConfigHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	api := r.Group("/api")
	{
		runs := api.Group("/runs")
		{
			runs.POST("", runHandler.Create)
			runs.GET("", runHandler.List)
			runs.GET("/:id", runHandler.Get)
			runs.GET("/:id/tasks", runHandler.GetTasks)
			runs.GET("/:id/results", resultHandler.ListByRun)
			runs.POST("/:id/cancel", runHandler.Cancel)
		}

		tasks := api.Group("/tasks")
		{
			tasks.GET("/status", taskHandler.GetOrchestratorStatus)
			tasks.POST("/cleanup", taskHandler.CleanupStuck)
			tasks.GET("/:id", taskHandler.Get)
			tasks.POST("/:id/retry", taskHandler.Retry)
		}

		keywords := api.Group("/keywords")
		{
			keywords.GET("", keywordHandler.List)
			keywords.POST("", keywordHandler.Create)
			keywords.POST("/import", keywordHandler.Import)
			keywords.PUT("/:id", keywordHandler.Update)
			keywords.DELETE("/:id", keywordHandler.Delete)
		}

		api.GET("/results", resultHandler.List)
		api.GET("/config", configHandler.Get)
	}

	return r
}
