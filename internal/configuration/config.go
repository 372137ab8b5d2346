package configuration

import (
	"encoding/json"
	"os"

	"github.com/joho/godotenv"
)

type MongoConfig struct {
	Uri                string `json:"uri"`
	Database           string `json:"database"`
	MessagesCollection string `json:"messagesCollection"`
	UsersCollection    string `json:"usersCollection"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port"`
	SocketPort     int      `json:"socket_port"`
	SocketRoute    string   `json:"socket_route"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type MediaConfig struct {
	Dir     string `json:"dir"`
	BaseURL string `json:"base_url"`
}

type Config struct {
	Mongo  MongoConfig  `json:"mongo"`
	Server ServerConfig `json:"server"`
	Media  MediaConfig  `json:"media"`

	// Secrets come from the environment, never the config file.
	JWTSecret string `json:"-"`
}

func LoadConfig(config_path string) (*Config, error) {
	// A .env file is optional; real environment variables win either way.
	_ = godotenv.Load()

	file, err := os.ReadFile(config_path)
	if err != nil {
		return nil, err
	}

	var config Config
	err = json.Unmarshal(file, &config)
	if err != nil {
		return nil, err
	}

	if uri := os.Getenv("MONGO_URI"); uri != "" {
		config.Mongo.Uri = uri
	}
	config.JWTSecret = os.Getenv("JWT_SECRET")

	return &config, nil
}
