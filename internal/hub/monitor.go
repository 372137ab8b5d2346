package hub

import (
	"sort"

	"github.com/aditya2785/web-chat/internal/model"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub *Hub
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats gathers and returns hub statistics: how many connections are
// live, how many distinct users are online, and the per-user breakdown.
func (ms *MonitorService) GetStats() model.MonitorResponse {
	registry := ms.hub.registry

	userIDs := registry.OnlineUserIDs()
	sort.Strings(userIDs)

	users := make([]model.UserPresence, 0, len(userIDs))
	for _, id := range userIDs {
		users = append(users, model.UserPresence{
			UserID:      id,
			Connections: len(registry.ConnectionsFor(id)),
		})
	}

	status := "healthy"
	if len(users) == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status: status,
		Connections: model.ConnectionStats{
			TotalConnected: registry.ConnectionCount(),
			OnlineUsers:    len(userIDs),
		},
		Users: users,
	}
}
