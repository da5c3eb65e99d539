package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
}

type AuthConfig struct {
	SecretKey string `yaml:"secret_key"`
}

type EngineConfig struct {
	SessionTimeoutSeconds    int `yaml:"session_timeout_seconds"`
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
	ConflictWindowSeconds    int `yaml:"conflict_window_seconds"`
}

func (e EngineConfig) SessionTimeout() time.Duration {
	return time.Duration(e.SessionTimeoutSeconds) * time.Second
}

func (e EngineConfig) HeartbeatInterval() time.Duration {
	return time.Duration(e.HeartbeatIntervalSeconds) * time.Second
}

func (e EngineConfig) ConflictWindow() time.Duration {
	return time.Duration(e.ConflictWindowSeconds) * time.Second
}

type StorageConfig struct {
	Backend  string         `yaml:"backend"` // file, redis, postgres
	FileDir  string         `yaml:"file_dir"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     8004,
			BasePath: "/api/collab",
			Env:      "dev",
			LogLevel: "debug",
		},
		Engine: EngineConfig{
			SessionTimeoutSeconds:    1800,
			HeartbeatIntervalSeconds: 5,
			ConflictWindowSeconds:    5,
		},
		Storage: StorageConfig{
			Backend: "file",
			FileDir: "data/workspaces",
			Redis: RedisConfig{
				Host: "localhost",
				Port: 6379,
				DB:   0,
			},
		},
	}

	// Load from yaml file if exists
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Override with environment variables
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if basePath := os.Getenv("SERVER_BASE_PATH"); basePath != "" {
		cfg.Server.BasePath = basePath
	}
	if env := os.Getenv("ENV"); env != "" {
		cfg.Server.Env = env
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if secretKey := os.Getenv("SECRET_KEY"); secretKey != "" {
		cfg.Auth.SecretKey = secretKey
	}
	if timeout := os.Getenv("SESSION_TIMEOUT_SECONDS"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil {
			cfg.Engine.SessionTimeoutSeconds = t
		}
	}
	if backend := os.Getenv("STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if dir := os.Getenv("STORAGE_FILE_DIR"); dir != "" {
		cfg.Storage.FileDir = dir
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		cfg.Storage.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		if p, err := strconv.Atoi(redisPort); err == nil {
			cfg.Storage.Redis.Port = p
		}
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Storage.Redis.Password = redisPassword
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Storage.Postgres.DSN = dsn
	}

	return cfg, nil
}
