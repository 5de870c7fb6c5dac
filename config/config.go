package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v10"
)

// AppConfig holds file and environment driven configuration values.
// Database credentials never have defaults inside code and must be provided via config.json or the environment.
type AppConfig struct {
	AppPort        string   `env:"APP_PORT"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	// Gin framework configuration
	GinMode string `env:"GIN_MODE"`
	GinPath string `env:"GIN_PATH"`
	// Database
	DatabaseURI string `env:"DATABASE_URI"`
	DBHost      string `env:"DB_HOST"`
	DBPort      string `env:"DB_PORT"`
	DBUser      string `env:"DB_USER"`
	DBPassword  string `env:"DB_PASSWORD"`
	DBName      string `env:"DB_NAME"`
	// Redis backs the optional strict upload window
	RedisHost     string `env:"REDIS_HOST"`
	RedisPort     int    `env:"REDIS_PORT"`
	RedisDB       int    `env:"REDIS_DB"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	// Upload intake
	MediaRoot            string        `env:"MEDIA_ROOT"`
	MediaKind            string        `env:"MEDIA_KIND"`
	MaxUploadBytes       int64         `env:"UPLOAD_MAX_BYTES"`
	MaxFilesPerHour      int           `env:"UPLOAD_MAX_FILES_PER_HOUR"`
	MaxBytesPerHour      int64         `env:"UPLOAD_MAX_BYTES_PER_HOUR"`
	AllowedExt           []string      `env:"UPLOAD_ALLOWED_EXT" envSeparator:","`
	AllowedMIME          []string      `env:"UPLOAD_ALLOWED_MIME" envSeparator:","`
	StrictRateLimit      bool          `env:"UPLOAD_STRICT_LIMIT"`
	ReapInterval         time.Duration `env:"UPLOAD_REAP_INTERVAL"`
	UploadBurstPerMinute int           `env:"UPLOAD_BURST_PER_MINUTE"`
	// Logging configuration
	LogLevel      string `env:"LOG_LEVEL"`
	LogPath       string `env:"LOG_PATH"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS"`
	LogCompress   bool   `env:"LOG_COMPRESS"`
}

// ConfigurationError reports required settings that were not provided.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration missing: set %s (or DATABASE_URI) in config/config.json or the environment",
		strings.Join(e.Missing, ", "))
}

var (
	cfg      AppConfig
	loadOnce sync.Once
)

// Load resolves the application configuration once. A missing or invalid configuration aborts the process.
func Load() AppConfig {
	loadOnce.Do(func() {
		c, err := Parse(filepath.Join("config", "config.json"))
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = c
	})
	return cfg
}

// Parse builds a configuration from the JSON file at path (optional), environment overrides and defaults.
//
// Precedence: environment > config.json > defaults.
func Parse(path string) (AppConfig, error) {
	var c AppConfig
	if err := loadJSONConfig(path, &c); err != nil {
		return AppConfig{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := env.Parse(&c); err != nil {
		return AppConfig{}, fmt.Errorf("parse environment: %w", err)
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return AppConfig{}, err
	}
	return c, nil
}

// Validate checks settings that must never be silently substituted.
func (c AppConfig) Validate() error {
	if c.DatabaseURI != "" {
		return nil
	}
	var missing []string
	if strings.TrimSpace(c.DBUser) == "" {
		missing = append(missing, "DB_USER")
	}
	if strings.TrimSpace(c.DBName) == "" {
		missing = append(missing, "DB_NAME")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

type fileConfig struct {
	App struct {
		AppPort        string   `json:"AppPort"`
		AllowedOrigins []string `json:"AllowedOrigins"`
	} `json:"app"`
	Gin struct {
		Mode    string `json:"Mode"`
		LogPath string `json:"LogPath"`
	} `json:"gin"`
	Database struct {
		DatabaseURI string `json:"DatabaseURI"`
		DBHost      string `json:"DBHost"`
		DBPort      string `json:"DBPort"`
		DBUser      string `json:"DBUser"`
		DBPassword  string `json:"DBPassword"`
		DBName      string `json:"DBName"`
	} `json:"database"`
	Redis struct {
		RedisHost     string `json:"RedisHost"`
		RedisPort     int    `json:"RedisPort"`
		RedisDB       int    `json:"RedisDB"`
		RedisPassword string `json:"RedisPassword"`
	} `json:"redis"`
	Upload struct {
		MediaRoot       string   `json:"MediaRoot"`
		MediaKind       string   `json:"MediaKind"`
		MaxBytes        int64    `json:"MaxBytes"`
		MaxFilesPerHour int      `json:"MaxFilesPerHour"`
		MaxBytesPerHour int64    `json:"MaxBytesPerHour"`
		AllowedExt      []string `json:"AllowedExt"`
		AllowedMIME     []string `json:"AllowedMIME"`
		Strict          bool     `json:"Strict"`
		ReapInterval    string   `json:"ReapInterval"`
		BurstPerMinute  int      `json:"BurstPerMinute"`
	} `json:"upload"`
	Log struct {
		Level      string `json:"Level"`
		Path       string `json:"Path"`
		MaxSizeMB  int    `json:"MaxSizeMB"`
		MaxBackups int    `json:"MaxBackups"`
		MaxAgeDays int    `json:"MaxAgeDays"`
		Compress   bool   `json:"Compress"`
	} `json:"log"`
}

// loadJSONConfig reads the grouped JSON file into out if present. A missing file is not an error.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	var raw fileConfig
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	out.AppPort = raw.App.AppPort
	out.AllowedOrigins = raw.App.AllowedOrigins
	out.GinMode = raw.Gin.Mode
	out.GinPath = raw.Gin.LogPath

	out.DatabaseURI = raw.Database.DatabaseURI
	out.DBHost = raw.Database.DBHost
	out.DBPort = raw.Database.DBPort
	out.DBUser = raw.Database.DBUser
	out.DBPassword = raw.Database.DBPassword
	out.DBName = raw.Database.DBName

	out.RedisHost = raw.Redis.RedisHost
	out.RedisPort = raw.Redis.RedisPort
	out.RedisDB = raw.Redis.RedisDB
	out.RedisPassword = raw.Redis.RedisPassword

	out.MediaRoot = raw.Upload.MediaRoot
	out.MediaKind = raw.Upload.MediaKind
	out.MaxUploadBytes = raw.Upload.MaxBytes
	out.MaxFilesPerHour = raw.Upload.MaxFilesPerHour
	out.MaxBytesPerHour = raw.Upload.MaxBytesPerHour
	out.AllowedExt = raw.Upload.AllowedExt
	out.AllowedMIME = raw.Upload.AllowedMIME
	out.StrictRateLimit = raw.Upload.Strict
	out.UploadBurstPerMinute = raw.Upload.BurstPerMinute
	if raw.Upload.ReapInterval != "" {
		d, err := time.ParseDuration(raw.Upload.ReapInterval)
		if err != nil {
			return fmt.Errorf("upload.ReapInterval: %w", err)
		}
		out.ReapInterval = d
	}

	out.LogLevel = raw.Log.Level
	out.LogPath = raw.Log.Path
	out.LogMaxSizeMB = raw.Log.MaxSizeMB
	out.LogMaxBackups = raw.Log.MaxBackups
	out.LogMaxAgeDays = raw.Log.MaxAgeDays
	out.LogCompress = raw.Log.Compress
	return nil
}

// applyDefaults sets sane defaults for zero-value fields. Credentials are left alone.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.MediaRoot == "" {
		c.MediaRoot = filepath.Join("public", "media")
	}
	if c.MediaKind == "" {
		c.MediaKind = "img"
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = 5 * 1024 * 1024
	}
	if c.MaxFilesPerHour == 0 {
		c.MaxFilesPerHour = 20
	}
	if c.MaxBytesPerHour == 0 {
		c.MaxBytesPerHour = 50_000_000
	}
	if len(c.AllowedExt) == 0 {
		c.AllowedExt = []string{"jpg", "jpeg", "png", "gif"}
	}
	if len(c.AllowedMIME) == 0 {
		c.AllowedMIME = []string{"image/jpeg", "image/png", "image/gif"}
	}
	if c.UploadBurstPerMinute == 0 {
		c.UploadBurstPerMinute = 30
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}
