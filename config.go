package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/orian/trendlabel/models"
)

// ClickHouseConfig configures the optional annotation warehouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
	Secure   bool   `yaml:"secure"`
}

// Enabled reports whether a ClickHouse host is configured.
func (c ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

// WindowConfig limits the raw series handed to the model, in days.
type WindowConfig struct {
	DaysTowardsEnd int `yaml:"days_towards_end" validate:"gte=0"`
	DaysFromStart  int `yaml:"days_from_start" validate:"gte=0"`
}

// Config holds every runtime setting. Values come from defaults, then the
// YAML file, then the environment.
type Config struct {
	Listen           string        `yaml:"listen" validate:"required"`
	MediaRoot        string        `yaml:"media_root" validate:"required"`
	RawDataDir       string        `yaml:"raw_data_dir" validate:"required"`
	AnnotationsRoot  string        `yaml:"annotations_root" validate:"required"`
	ModelsDir        string        `yaml:"models_dir" validate:"required"`
	StaticDir        string        `yaml:"static_dir"`
	DuckDBPath       string        `yaml:"duckdb_path" validate:"required"`
	InferenceURL     string        `yaml:"inference_url" validate:"required,url"`
	InferenceTimeout time.Duration `yaml:"inference_timeout" validate:"gt=0"`
	DefaultTimezone  string        `yaml:"default_timezone" validate:"required"`
	TimeColumn       string        `yaml:"time_column" validate:"required"`
	SaveRetries      int           `yaml:"save_retries" validate:"gte=1"`
	SaveBackoff      time.Duration `yaml:"save_backoff" validate:"gte=0"`
	LogLevel         string        `yaml:"log_level" validate:"oneof=debug info warn error"`

	Window     WindowConfig       `yaml:"window"`
	ClickHouse ClickHouseConfig   `yaml:"clickhouse"`
	Labels     []models.LabelSpec `yaml:"labels" validate:"min=1,dive"`
}

// DefaultConfig returns the built-in settings. Directory defaults derived
// from MediaRoot are filled by LoadConfig once MediaRoot is final.
func DefaultConfig() *Config {
	return &Config{
		Listen:           ":8080",
		MediaRoot:        "./media",
		StaticDir:        "./static",
		DuckDBPath:       "./trendlabel.db",
		InferenceURL:     "http://label-inference:8000",
		InferenceTimeout: 60 * time.Second,
		DefaultTimezone:  "UTC",
		TimeColumn:       "date",
		SaveRetries:      3,
		SaveBackoff:      500 * time.Millisecond,
		LogLevel:         "info",
		ClickHouse: ClickHouseConfig{
			Database: "default",
			User:     "default",
			Table:    "annotations",
		},
		Labels: models.DefaultLabels(),
	}
}

// LoadConfig builds the configuration. An empty path skips the file; a
// named file that does not exist is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDerived()

	if _, err := models.LoadLocation(cfg.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("default timezone: %w", err)
	}
	if _, err := models.LabelMapping(cfg.Labels); err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Listen = getEnvString("TRENDLABEL_LISTEN", c.Listen)
	c.MediaRoot = getEnvString("TRENDLABEL_MEDIA_ROOT", c.MediaRoot)
	c.RawDataDir = getEnvString("TRENDLABEL_RAW_DIR", c.RawDataDir)
	c.AnnotationsRoot = getEnvString("TRENDLABEL_ANNOTATIONS_ROOT", c.AnnotationsRoot)
	c.ModelsDir = getEnvString("TRENDLABEL_MODELS_DIR", c.ModelsDir)
	c.StaticDir = getEnvString("TRENDLABEL_STATIC_DIR", c.StaticDir)
	c.DuckDBPath = getEnvString("DUCKDB_PATH", c.DuckDBPath)
	c.InferenceURL = getEnvString("TRENDLABEL_INFERENCE_URL", c.InferenceURL)
	c.DefaultTimezone = getEnvString("TRENDLABEL_DEFAULT_TZ", c.DefaultTimezone)
	c.TimeColumn = getEnvString("TRENDLABEL_TIME_COLUMN", c.TimeColumn)
	c.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", c.LogLevel))
	c.SaveRetries = getEnvInt("TRENDLABEL_SAVE_RETRIES", c.SaveRetries)

	var err error
	if c.InferenceTimeout, err = getEnvDuration("TRENDLABEL_INFERENCE_TIMEOUT", c.InferenceTimeout); err != nil {
		return err
	}
	if c.SaveBackoff, err = getEnvDuration("TRENDLABEL_SAVE_BACKOFF", c.SaveBackoff); err != nil {
		return err
	}

	c.ClickHouse.Host = getEnvString("CLICKHOUSE_HOST", c.ClickHouse.Host)
	c.ClickHouse.Database = getEnvString("CLICKHOUSE_DATABASE", c.ClickHouse.Database)
	c.ClickHouse.User = getEnvString("CLICKHOUSE_USER", c.ClickHouse.User)
	c.ClickHouse.Password = getEnvString("CLICKHOUSE_PASSWORD", c.ClickHouse.Password)
	c.ClickHouse.Table = getEnvString("CLICKHOUSE_TABLE", c.ClickHouse.Table)
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		c.ClickHouse.Secure = true
	}
	return nil
}

func (c *Config) fillDerived() {
	if c.RawDataDir == "" {
		c.RawDataDir = filepath.Join(c.MediaRoot, "Raw_Time_Series_Data")
	}
	if c.AnnotationsRoot == "" {
		c.AnnotationsRoot = c.MediaRoot
	}
	if c.ModelsDir == "" {
		c.ModelsDir = filepath.Join(c.MediaRoot, "models_to_use")
	}
	// port 9440 is ClickHouse's native TLS port
	if strings.HasSuffix(c.ClickHouse.Host, ":9440") {
		c.ClickHouse.Secure = true
	}
}

// DataRoot is the directory identifiers are relative to: the parent of
// RawDataDir, so every identifier starts with the dataset folder name.
func (c *Config) DataRoot() string {
	return filepath.Dir(filepath.Clean(c.RawDataDir))
}

// Dataset is the dataset folder name of RawDataDir.
func (c *Config) Dataset() string {
	return filepath.Base(filepath.Clean(c.RawDataDir))
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// configFileExists lets the CLI fall back to ./trendlabel.yaml silently.
func configFileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
