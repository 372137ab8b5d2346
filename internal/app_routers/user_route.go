package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/aditya2785/web-chat/internal/auth"
	"github.com/aditya2785/web-chat/internal/configuration"
)

func UserRouters(router *gin.Engine, container *configuration.Container) {
	requireAuth := auth.RequireAuth(container.Tokens)

	userRoute := router.Group("/api/users")
	{
		userRoute.POST("/signup", container.UserHandler.Signup)
		userRoute.POST("/login", container.UserHandler.Login)
		userRoute.GET("/check", requireAuth, container.UserHandler.CheckAuth)
		userRoute.PUT("/update-profile", requireAuth, container.UserHandler.UpdateProfile)
		userRoute.DELETE("/delete/:id", requireAuth, auth.RequireAdmin(), container.UserHandler.DeleteUser)
	}
}
