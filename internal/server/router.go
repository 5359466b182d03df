package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/vitisalign/vitisalign-backend/internal/handlers"
	"github.com/vitisalign/vitisalign-backend/internal/middleware"
)

type RouterConfig struct {
	ReferentialHandler *handlers.ReferentialHandler
	AlignHandler       *handlers.AlignHandler
	AllowOrigins       []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Requested-With", middleware.RequestIDHeader},
		AllowCredentials: true,
	}))
	router.Use(middleware.RequestID())

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.GET("/referential", cfg.ReferentialHandler.GetReferential)
		api.POST("/align", cfg.AlignHandler.Align)
		api.POST("/align/candidates", cfg.AlignHandler.Candidates)
	}

	return router
}
