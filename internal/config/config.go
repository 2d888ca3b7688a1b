package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	API      APIConfig      `yaml:"api"`
	Printing PrintingConfig `yaml:"printing"`
	Agent    AgentConfig    `yaml:"agent"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	UploadDir        string `yaml:"upload_dir"`
	MaxFileSize      int64  `yaml:"max_file_size"`
	DeleteAfterPrint bool   `yaml:"delete_after_print"`
}

type APIConfig struct {
	// Key is the shared API key presented in the X-API-Key header.
	// KeyHash, when set, takes precedence and holds a bcrypt hash of
	// the key so the plaintext never sits in the config file.
	Key        string   `yaml:"key"`
	KeyHash    string   `yaml:"key_hash"`
	AllowedIPs []string `yaml:"allowed_ips"`
}

type PrintingConfig struct {
	DefaultPrinter string `yaml:"default_printer"`
}

type AgentConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	TempDir string `yaml:"temp_dir"`
	// DefaultPrinter is the local queue used when a job was submitted
	// without an explicit printer (or with the server's "default"
	// placeholder).
	DefaultPrinter  string        `yaml:"default_printer"`
	Interpreter     string        `yaml:"interpreter"`
	Script          string        `yaml:"script"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	JobDelay        time.Duration `yaml:"job_delay"`
	TempMaxAge      time.Duration `yaml:"temp_max_age"`
	// MaxAttempts caps how many times the agent will pick up the same
	// job before skipping it. 0 means retry forever.
	MaxAttempts int `yaml:"max_attempts"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/printbridge.db",
		},
		Storage: StorageConfig{
			UploadDir:        "./data/uploads",
			MaxFileSize:      10 * 1024 * 1024,
			DeleteAfterPrint: true,
		},
		Printing: PrintingConfig{
			DefaultPrinter: "default",
		},
		Agent: AgentConfig{
			BaseURL:         "http://localhost:8080",
			TempDir:         "./temp",
			DefaultPrinter:  "HP_LaserJet",
			Interpreter:     "/usr/bin/python3",
			Script:          "./print_job.py",
			RequestTimeout:  30 * time.Second,
			DownloadTimeout: 5 * time.Minute,
			JobDelay:        2 * time.Second,
			TempMaxAge:      24 * time.Hour,
			MaxAttempts:     0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML config at configPath on top of the defaults. A
// missing file is not an error; the defaults are returned as-is.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PRINTBRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PRINTBRIDGE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PRINTBRIDGE_UPLOAD_DIR"); v != "" {
		cfg.Storage.UploadDir = v
	}
	if v := os.Getenv("PRINTBRIDGE_API_KEY"); v != "" {
		cfg.API.Key = v
		cfg.Agent.APIKey = v
	}
	if v := os.Getenv("PRINTBRIDGE_BASE_URL"); v != "" {
		cfg.Agent.BaseURL = v
	}
	if v := os.Getenv("PRINTBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Storage.UploadDir == "" {
		return fmt.Errorf("upload directory is required")
	}

	if c.Storage.MaxFileSize < 1 {
		return fmt.Errorf("max file size must be positive")
	}

	for _, ip := range c.API.AllowedIPs {
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("invalid allowed ip: %s", ip)
		}
	}

	if c.Printing.DefaultPrinter == "" {
		return fmt.Errorf("default printer is required")
	}

	if _, err := url.ParseRequestURI(c.Agent.BaseURL); err != nil {
		return fmt.Errorf("invalid agent base url: %s", c.Agent.BaseURL)
	}

	if c.Agent.RequestTimeout <= 0 || c.Agent.DownloadTimeout <= 0 {
		return fmt.Errorf("agent timeouts must be positive")
	}

	if c.Agent.JobDelay < 0 {
		return fmt.Errorf("agent job delay must be non-negative")
	}

	if c.Agent.TempMaxAge <= 0 {
		return fmt.Errorf("agent temp max age must be positive")
	}

	if c.Agent.MaxAttempts < 0 {
		return fmt.Errorf("agent max attempts must be non-negative")
	}

	if c.Agent.DefaultPrinter == "" {
		return fmt.Errorf("agent default printer is required")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}
