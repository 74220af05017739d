package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Archive   ArchiveConfig
	Simulator SimulatorConfig
}

// DatabaseConfig holds the optional score archive configuration. The archive
// is enabled only when a DSN is resolvable.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Enabled  bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	DB       int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int
}

// ArchiveConfig sizes the write-behind worker pool.
type ArchiveConfig struct {
	Workers     int
	QueueSize   int
	SyncOnStart bool
}

// SimulatorConfig drives the optional score traffic simulator.
type SimulatorConfig struct {
	Enabled        bool
	GameID         string
	UserCount      int
	TickInterval   time.Duration
	UpdatesPerTick int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "leaderboard"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port: getEnvAsInt("PORT", 8000),
		},
		Archive: ArchiveConfig{
			Workers:     getEnvAsInt("ARCHIVE_WORKERS", 20),
			QueueSize:   getEnvAsInt("ARCHIVE_QUEUE_SIZE", 1000),
			SyncOnStart: getEnvAsBool("ARCHIVE_SYNC_ON_START", false),
		},
		Simulator: SimulatorConfig{
			Enabled:        getEnvAsBool("SIMULATOR_ENABLED", false),
			GameID:         getEnv("SIMULATOR_GAME_ID", "simgame"),
			UserCount:      getEnvAsInt("SIMULATOR_USERS", 100),
			TickInterval:   time.Duration(getEnvAsInt("SIMULATOR_TICK_MS", 500)) * time.Millisecond,
			UpdatesPerTick: getEnvAsInt("SIMULATOR_UPDATES_PER_TICK", 1),
		},
	}

	cfg.Database.Enabled = cfg.Database.URL != "" || cfg.Database.Host != ""

	return cfg, nil
}

// GetDSN returns the PostgreSQL DSN
func (c *Config) GetDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
