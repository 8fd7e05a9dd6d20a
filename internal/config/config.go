package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/existflow/collabtask/internal/model"
	"gopkg.in/yaml.v3"
)

// Config holds server and client settings
type Config struct {
	// Server
	Addr           string   `yaml:"addr" json:"addr"`                         // Listen address
	DBDriver       string   `yaml:"db_driver" json:"db_driver"`               // sqlite or postgres
	DatabaseURL    string   `yaml:"database_url" json:"database_url"`         // DSN or SQLite path
	SendBufferSize int      `yaml:"send_buffer_size" json:"send_buffer_size"` // Per-connection outbound buffer
	CORSOrigins    []string `yaml:"cors_origins" json:"cors_origins"`         // Allowed browser origins

	// Client
	ServerURL string `yaml:"server_url" json:"server_url"` // Base URL of the server
	Username  string `yaml:"username" json:"username"`     // Display name used for joins and writes

	// Logging configuration
	LogLevel   string `yaml:"log_level" json:"log_level"`     // Log level: DEBUG, INFO, WARN, ERROR
	LogFile    string `yaml:"log_file" json:"log_file"`       // Path to log file
	LogConsole bool   `yaml:"log_console" json:"log_console"` // Enable console logging
}

// Dir returns ~/.collabtask
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".collabtask"), nil
}

// DefaultConfig returns default settings
func DefaultConfig() *Config {
	dir, _ := Dir()
	logPath := ""
	dbPath := "collabtask.db"
	if dir != "" {
		logPath = filepath.Join(dir, "logs", "collabtask.log")
		dbPath = filepath.Join(dir, "collabtask.db")
	}

	return &Config{
		Addr:           ":5004",
		DBDriver:       "sqlite",
		DatabaseURL:    dbPath,
		SendBufferSize: 64,
		CORSOrigins:    []string{"*"},
		ServerURL:      "http://localhost:5004",
		Username:       os.Getenv("USER"),
		LogLevel:       "INFO",
		LogFile:        logPath,
		LogConsole:     false,
	}
}

// applyEnv overrides settings from the environment
func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Addr = ":" + port
	}
	c.DBDriver = getEnv("DATABASE_DRIVER", c.DBDriver)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	if v := os.Getenv("COLLABTASK_SEND_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.SendBufferSize = n
		}
	}
	if v := os.Getenv("COLLABTASK_CORS_ORIGINS"); v != "" {
		c.CORSOrigins = strings.Split(v, ",")
	}
	c.ServerURL = getEnv("COLLABTASK_SERVER", c.ServerURL)
	c.Username = getEnv("COLLABTASK_USER", c.Username)
	c.LogLevel = getEnv("COLLABTASK_LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("COLLABTASK_LOG_FILE", c.LogFile)
	if v := os.Getenv("COLLABTASK_LOG_CONSOLE"); v != "" {
		c.LogConsole = v == "true"
	}
}

// UserColor is a palette color derived from the username, so writes made
// outside a live session keep a stable color
func (c *Config) UserColor() string {
	if c.Username == "" {
		return ""
	}
	h := fnv.New32a()
	h.Write([]byte(c.Username))
	return model.Palette[h.Sum32()%uint32(len(model.Palette))]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Path returns the config file path, ~/.collabtask/config.yaml unless
// COLLABTASK_CONFIG is set
func Path() (string, error) {
	if p := os.Getenv("COLLABTASK_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file over the defaults, then applies the environment
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile is Load for an explicit path. A missing file yields defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes the config to the config path
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
