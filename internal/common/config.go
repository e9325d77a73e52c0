package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/photon-decode/constants"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Upload    UploadConfig    `yaml:"upload"`
	OCR       OCRConfig       `yaml:"ocr"`
	Quality   QualityConfig   `yaml:"quality"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
	Cache     CacheConfig     `yaml:"cache"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `yaml:"driver"` // postgres | sqlite
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr         string        `yaml:"http_addr"`
	GRPCAddr         string        `yaml:"grpc_addr"` // gRPC health endpoint; empty disables it
	BasePath         string        `yaml:"base_path"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// UploadConfig bounds accepted payloads.
type UploadConfig struct {
	MaxBytes  int64 `yaml:"max_bytes"`
	MaxPixels int64 `yaml:"max_pixels"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract       string        `yaml:"tesseract"`
	Lang            string        `yaml:"lang"`
	TessdataDir     string        `yaml:"tessdata_dir"`
	PSM             int           `yaml:"psm"`
	OEM             int           `yaml:"oem"`
	EnableTSV       bool          `yaml:"enable_tsv"`
	StrategyTimeout time.Duration `yaml:"strategy_timeout"`
	TempDir         string        `yaml:"temp_dir"`
}

// QualityConfig holds the confidence cut-offs for the quality classes.
type QualityConfig struct {
	Good float32 `yaml:"good"`
	Fair float32 `yaml:"fair"`
}

// ThumbnailConfig selects where previews are stored and how they are addressed.
type ThumbnailConfig struct {
	Store   string `yaml:"store"` // local | gcs
	Dir     string `yaml:"dir"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	BaseURL string `yaml:"base_url"`
	MaxEdge int    `yaml:"max_edge"`
}

// CacheConfig holds the read-through cache settings for submission lookups.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // none | memory | redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	RedisAddr  string        `yaml:"redis_addr"`
	RedisDB    int           `yaml:"redis_db"`
}

// PipelineConfig bounds a single upload's processing time.
type PipelineConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxConns:        20,
			MinConns:        5,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{
			HTTPAddr:         ":3000",
			BasePath:         "/api",
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     90 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Upload: UploadConfig{
			MaxBytes:  constants.MaxUploadBytes,
			MaxPixels: 40_000_000,
		},
		OCR: OCRConfig{
			Tesseract:       "tesseract",
			Lang:            "eng",
			EnableTSV:       true,
			StrategyTimeout: 20 * time.Second,
		},
		Quality: QualityConfig{
			Good: 0.80,
			Fair: 0.55,
		},
		Thumbnail: ThumbnailConfig{
			Store:   "local",
			Dir:     "./uploads/thumbnails",
			BaseURL: "/uploads/thumbnails",
			MaxEdge: 256,
		},
		Cache: CacheConfig{
			Driver:     "none",
			TTL:        10 * time.Minute,
			MaxEntries: 10000,
		},
		Pipeline: PipelineConfig{
			Timeout: 60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from an optional .env file, an optional YAML
// file (CONFIG_PATH), then environment variables, in increasing precedence.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(c *Config) {
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_URL", getEnv("DATABASE_URL", c.Database.DSN))
	if strings.HasPrefix(c.Database.DSN, "sqlite:") {
		c.Database.Driver = "sqlite"
		c.Database.DSN = strings.TrimPrefix(c.Database.DSN, "sqlite:")
	}
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)
	c.Database.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)

	if port := os.Getenv("PORT"); port != "" {
		c.Server.HTTPAddr = ":" + port
	}
	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.BasePath = getEnv("API_BASE_PATH", c.Server.BasePath)
	c.Server.ReadTimeout = getEnvAsDuration("HTTP_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvAsDuration("HTTP_WRITE_TIMEOUT", c.Server.WriteTimeout)

	c.Upload.MaxBytes = getEnvAsInt64("UPLOAD_MAX_BYTES", c.Upload.MaxBytes)
	c.Upload.MaxPixels = getEnvAsInt64("UPLOAD_MAX_PIXELS", c.Upload.MaxPixels)

	c.OCR.Tesseract = getEnv("TESSERACT_BIN", c.OCR.Tesseract)
	c.OCR.Lang = getEnv("TESSERACT_LANG", c.OCR.Lang)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.PSM = getEnvAsInt("TESSERACT_PSM", c.OCR.PSM)
	c.OCR.OEM = getEnvAsInt("TESSERACT_OEM", c.OCR.OEM)
	c.OCR.EnableTSV = getEnvAsBool("TESSERACT_TSV_CONFIDENCE", c.OCR.EnableTSV)
	c.OCR.StrategyTimeout = getEnvAsDuration("OCR_STRATEGY_TIMEOUT", c.OCR.StrategyTimeout)
	c.OCR.TempDir = getEnv("OCR_TEMP_DIR", c.OCR.TempDir)

	c.Quality.Good = getEnvAsFloat32("QUALITY_GOOD_THRESHOLD", c.Quality.Good)
	c.Quality.Fair = getEnvAsFloat32("QUALITY_FAIR_THRESHOLD", c.Quality.Fair)

	c.Thumbnail.Store = getEnv("THUMBNAIL_STORE", c.Thumbnail.Store)
	c.Thumbnail.Dir = getEnv("THUMBNAIL_DIR", c.Thumbnail.Dir)
	c.Thumbnail.Bucket = getEnv("THUMBNAIL_BUCKET", c.Thumbnail.Bucket)
	c.Thumbnail.Prefix = getEnv("THUMBNAIL_PREFIX", c.Thumbnail.Prefix)
	c.Thumbnail.BaseURL = getEnv("THUMBNAIL_BASE_URL", c.Thumbnail.BaseURL)
	c.Thumbnail.MaxEdge = getEnvAsInt("THUMBNAIL_MAX_EDGE", c.Thumbnail.MaxEdge)

	c.Cache.Driver = getEnv("CACHE_DRIVER", c.Cache.Driver)
	c.Cache.TTL = getEnvAsDuration("CACHE_TTL", c.Cache.TTL)
	c.Cache.MaxEntries = getEnvAsInt("CACHE_MAX_ENTRIES", c.Cache.MaxEntries)
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Cache.Driver = "redis"
		c.Cache.RedisAddr = strings.TrimPrefix(v, "redis://")
	}
	c.Cache.RedisDB = getEnvAsInt("REDIS_DB", c.Cache.RedisDB)

	c.Pipeline.Timeout = getEnvAsDuration("PIPELINE_TIMEOUT", c.Pipeline.Timeout)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown DB_DRIVER %q", c.Database.Driver), ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Upload.MaxBytes <= 0 {
		return NewAppError("CONFIG_ERROR", "UPLOAD_MAX_BYTES must be positive", ErrInvalidInput)
	}
	if c.Quality.Fair < 0 || c.Quality.Good > 1 || c.Quality.Fair > c.Quality.Good {
		return NewAppError("CONFIG_ERROR", "quality thresholds must satisfy 0 <= fair <= good <= 1", ErrInvalidInput)
	}
	switch c.Thumbnail.Store {
	case "local":
		if c.Thumbnail.Dir == "" {
			return NewAppError("CONFIG_ERROR", "THUMBNAIL_DIR is required for the local store", ErrInvalidInput)
		}
	case "gcs":
		if c.Thumbnail.Bucket == "" {
			return NewAppError("CONFIG_ERROR", "THUMBNAIL_BUCKET is required for the gcs store", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown THUMBNAIL_STORE %q", c.Thumbnail.Store), ErrInvalidInput)
	}
	switch c.Cache.Driver {
	case "none", "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return NewAppError("CONFIG_ERROR", "REDIS_URL is required for the redis cache", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown CACHE_DRIVER %q", c.Cache.Driver), ErrInvalidInput)
	}
	return nil
}
