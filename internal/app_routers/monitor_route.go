package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/aditya2785/web-chat/internal/configuration"
	"github.com/aditya2785/web-chat/internal/handler"
	"github.com/aditya2785/web-chat/internal/hub"
)

// MonitorRouters sets up monitoring API routes
func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	monitorService := hub.NewMonitorService(container.Hub)
	monitorHandler := handler.NewMonitorHandler(monitorService)

	monitorGroup := router.Group("/api/monitor")
	{
		monitorGroup.GET("/stats", monitorHandler.GetHubStats)
	}
}
