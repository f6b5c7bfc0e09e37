package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuongbtq/report-autofill/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", handler.HealthHandler(deps))

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	profileHandler := handler.NewProfileHandler(deps)
	batchHandler := handler.NewBatchHandler(deps)

	v1 := r.Group("/api/v1")
	{
		profiles := v1.Group("/profiles")
		{
			profiles.GET("", profileHandler.ListProfiles)
			profiles.PUT("/:profile_id", profileHandler.PutProfile)
			profiles.GET("/:profile_id", profileHandler.GetProfile)
			profiles.GET("/:profile_id/history", profileHandler.GetHistory)
			profiles.GET("/:profile_id/submissions", profileHandler.ListSubmissions)
		}

		v1.POST("/batches", batchHandler.CreateBatch)
	}

	return r
}
