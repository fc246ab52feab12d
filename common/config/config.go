package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Scheduler SchedulerConfig
	Health    HealthConfig
	Worker    WorkerConfig
	Storage   StorageConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig holds schema catalog cache settings
type CacheConfig struct {
	Backend    string // "memory" or "redis"
	CatalogTTL time.Duration
}

// SchedulerConfig holds dispatch loop settings
type SchedulerConfig struct {
	Tick          time.Duration
	DispatchBatch int
	PollBatch     int
}

// HealthConfig holds worker fleet health probing settings
type HealthConfig struct {
	Interval  time.Duration
	Timeout   time.Duration
	DeadAfter time.Duration
}

// WorkerConfig holds timeouts for worker-facing HTTP and the progress socket
type WorkerConfig struct {
	ConnectTimeout       time.Duration
	ReadTimeout          time.Duration
	ProgressPingInterval time.Duration
}

// StorageConfig holds input/output file storage settings
type StorageConfig struct {
	Root string
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "renderplane"),
			User:        getEnv("POSTGRES_USER", "renderplane"),
			Password:    getEnv("POSTGRES_PASSWORD", "renderplane"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Backend:    getEnv("CACHE_BACKEND", "memory"),
			CatalogTTL: getEnvDuration("CATALOG_TTL", 60*time.Second),
		},
		Scheduler: SchedulerConfig{
			Tick:          getEnvDuration("SCHEDULER_TICK", 1*time.Second),
			DispatchBatch: getEnvInt("DISPATCH_BATCH", 5),
			PollBatch:     getEnvInt("POLL_BATCH", 10),
		},
		Health: HealthConfig{
			Interval:  getEnvDuration("HEALTHCHECK_INTERVAL", 30*time.Second),
			Timeout:   getEnvDuration("HEALTHCHECK_TIMEOUT", 5*time.Second),
			DeadAfter: getEnvDuration("DEAD_AFTER", 120*time.Second),
		},
		Worker: WorkerConfig{
			ConnectTimeout:       getEnvDuration("WORKER_CONNECT_TIMEOUT", 10*time.Second),
			ReadTimeout:          getEnvDuration("WORKER_READ_TIMEOUT", 60*time.Second),
			ProgressPingInterval: getEnvDuration("PROGRESS_PING_INTERVAL", 20*time.Second),
		},
		Storage: StorageConfig{
			Root: getEnv("STORAGE_ROOT", "./storage"),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Scheduler.DispatchBatch < 1 {
		return fmt.Errorf("dispatch batch must be >= 1")
	}

	if c.Scheduler.PollBatch < 1 {
		return fmt.Errorf("poll batch must be >= 1")
	}

	if c.Storage.Root == "" {
		return fmt.Errorf("storage root is required")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the Redis host:port address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Bare numbers are treated as seconds
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
