package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/aditya2785/web-chat/internal/auth"
	"github.com/aditya2785/web-chat/internal/configuration"
)

func MessageRouters(router *gin.Engine, container *configuration.Container) {
	requireAuth := auth.RequireAuth(container.Tokens)

	messageRoute := router.Group("/api/messages", requireAuth)
	{
		messageRoute.GET("/users", container.MessageHandler.GetPeers)
		messageRoute.GET("/:id", container.MessageHandler.GetMessages)
		messageRoute.PUT("/mark/:id", container.MessageHandler.MarkSeen)
		messageRoute.POST("/send/:id", container.MessageHandler.SendMessage)
		messageRoute.POST("/send-file/:id", container.MessageHandler.SendFileMessage)
	}
}
