package router

import (
	"github.com/gin-gonic/gin"

	"clearcheck.app/engine/internal/http/handler"
)

type RouterConfig struct {
	IsProduction bool
}

func SetupRoutes(router *gin.Engine, verifyHandler *handler.VerifyHandler, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		VerifyRouter(v1.Group("/verify"), verifyHandler)
	}
}
