package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Rooms    RoomsConfig    `mapstructure:"rooms"`
	Database DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	HostName       string `mapstructure:"host_name"`
	MetricsAddress string `mapstructure:"metrics_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	LogLevel       string `mapstructure:"log_level"`
}

type RoomsConfig struct {
	Names                []string `mapstructure:"names"` // 启动时创建并常驻的房间
	MaxRooms             int      `mapstructure:"max_rooms"`
	MaxPlayersPerRoom    int      `mapstructure:"max_players_per_room"`
	MaxSpectatorsPerRoom int      `mapstructure:"max_spectators_per_room"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"` // 为空时使用内存存档
}

var envKeys = map[string]string{
	"server.port":                   "PORT",
	"server.host_name":              "HOST_NAME",
	"server.metrics_address":        "METRICS_ADDRESS",
	"server.rpc_address":            "RPC_ADDRESS",
	"server.log_level":              "LOG_LEVEL",
	"rooms.names":                   "SERVER_ROOM_NAMES",
	"rooms.max_rooms":               "SERVER_MAX_ROOMS",
	"rooms.max_players_per_room":    "SERVER_MAX_PLAYERS_PER_ROOM",
	"rooms.max_spectators_per_room": "SERVER_MAX_SPECTATORS_PER_ROOM",
	"database.dsn":                  "DATABASE_DSN",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 4001)
	v.SetDefault("server.host_name", "localhost")
	v.SetDefault("server.metrics_address", "")
	v.SetDefault("server.rpc_address", "")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("rooms.names", "")
	v.SetDefault("rooms.max_rooms", 3)
	v.SetDefault("rooms.max_players_per_room", 3)
	v.SetDefault("rooms.max_spectators_per_room", 3)
	v.SetDefault("database.dsn", "")
}

// LoadConfig reads path/.env.<APP_ENV>, an optional path/config.yaml and the
// environment, in increasing order of precedence.
func LoadConfig(path string) (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	if err := godotenv.Load(filepath.Join(path, ".env."+env)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)
	for key, name := range envKeys {
		if err := v.BindEnv(key, name); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Rooms.Names = cleanNames(cfg.Rooms.Names)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// cleanNames trims each name and drops blanks and repeats.
func cleanNames(names []string) []string {
	result := make([]string, 0, len(names))
	seen := make(map[string]struct{})
	for _, raw := range names {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			result = append(result, name)
		}
	}
	return result
}

func (c *Config) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Server.Port)
	case c.Rooms.MaxRooms <= 0:
		return fmt.Errorf("max_rooms must be positive, got %d", c.Rooms.MaxRooms)
	case c.Rooms.MaxPlayersPerRoom <= 0:
		return fmt.Errorf("max_players_per_room must be positive, got %d", c.Rooms.MaxPlayersPerRoom)
	case c.Rooms.MaxSpectatorsPerRoom < 0:
		return fmt.Errorf("max_spectators_per_room must not be negative, got %d", c.Rooms.MaxSpectatorsPerRoom)
	}
	return nil
}

// ListenAddress is the address the HTTP server binds.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
