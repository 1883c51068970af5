package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Client   ClientConfig
	Logging  LoggingConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string
}

type ServerConfig struct {
	Addr           string
	JWTSecret      string
	TokenTTL       time.Duration
	AllowedOrigins []string // empty means echo any origin
	// Store selects the row storage: "postgres", or "memory" to run
	// without a database.
	Store string
}

// ClientConfig drives the shuttlectl client.
type ClientConfig struct {
	BackendURL     string
	RequestTimeout time.Duration
	DemoShuttles   bool // substitute the demonstration dataset for an empty feed
	Email          string
	Password       string
	// SessionFile keeps the signed-in session between invocations.
	SessionFile string
}

type LoggingConfig struct {
	Level    string
	FilePath string
	Console  bool
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found – relying on env vars")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "campus_shuttle"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			TimeZone: getEnv("DB_TIMEZONE", "UTC"),
		},
		Server: ServerConfig{
			Addr:           getEnv("SERVER_ADDR", "0.0.0.0:8080"),
			JWTSecret:      getEnv("JWT_SECRET", ""),
			TokenTTL:       getDurationEnv("JWT_TTL", 72*time.Hour),
			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS"),
			Store:          getEnv("SERVER_STORE", "postgres"),
		},
		Client: ClientConfig{
			BackendURL:     getEnv("SHUTTLE_BACKEND_URL", "http://localhost:8080"),
			RequestTimeout: getDurationEnv("SHUTTLE_REQUEST_TIMEOUT", 10*time.Second),
			DemoShuttles:   getBoolEnv("SHUTTLE_DEMO_DATA", false),
			Email:          getEnv("SHUTTLE_EMAIL", ""),
			Password:       getEnv("SHUTTLE_PASSWORD", ""),
			SessionFile:    getEnv("SHUTTLE_SESSION_FILE", ""),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			FilePath: getEnv("LOG_FILE", "./logs/app.log"),
			Console:  getBoolEnv("LOG_CONSOLE", false),
		},
	}

	if cfg.Client.RequestTimeout <= 0 {
		return nil, fmt.Errorf("SHUTTLE_REQUEST_TIMEOUT must be positive, got %s", cfg.Client.RequestTimeout)
	}
	return cfg, nil
}

// DSN builds the postgres connection string used by gorm and pq.Listener.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode, c.TimeZone,
	)
}

// getEnv reads an environment variable or returns the provided default
func getEnv(key, defaultValue string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
