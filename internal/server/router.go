package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/pathpilot/internal/handlers"
)

type RouterConfig struct {
	ServiceName    string
	PlanHandler    *handlers.PlanHandler
	OutcomeHandler *handlers.OutcomeHandler
	LearnerHandler *handlers.LearnerHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(cfg.ServiceName))

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthz", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/learners", cfg.LearnerHandler.Create)
		api.POST("/plan", cfg.PlanHandler.Plan)
		api.POST("/outcome", cfg.OutcomeHandler.Outcome)
	}

	return router
}
