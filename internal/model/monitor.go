package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string          `json:"status"` // "healthy" or "idle"
	Connections ConnectionStats `json:"connections"`
	Users       []UserPresence  `json:"users"` // per-user connection breakdown
}

// ConnectionStats holds connection-related statistics
type ConnectionStats struct {
	TotalConnected int `json:"totalConnected"` // live WebSocket connections
	OnlineUsers    int `json:"onlineUsers"`    // distinct users with >=1 connection
}

// UserPresence describes one online user's live connections
type UserPresence struct {
	UserID      string `json:"userId"`
	Connections int    `json:"connections"`
}
