package router

import (
	"github.com/gin-gonic/gin"

	"clearcheck.app/engine/internal/http/handler"
)

func VerifyRouter(group *gin.RouterGroup, h *handler.VerifyHandler) {
	group.POST("", h.Verify)
	group.POST("/async", h.VerifyAsync)
	group.GET("/:id", h.GetResult)
}
