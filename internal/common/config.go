package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig
	Companies CompaniesConfig
	Server    ServerConfig
	Storage   StorageConfig
	OCR       OCRConfig
	LLM       LLMConfig
	Pipeline  PipelineConfig
}

// DatabaseConfig holds the main database connection settings.
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// CompaniesConfig points at the external payroll database (read-only).
type CompaniesConfig struct {
	DSN string
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr string
}

// StorageConfig holds the uploaded-content store settings.
type StorageConfig struct {
	Root string
}

// OCRConfig holds the external OCR tool settings.
type OCRConfig struct {
	Pdftoppm  string
	Tesseract string
	Language  string
	DPI       int
}

// LLMConfig holds the completion-service settings for the assisted extractor.
type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// PipelineConfig tunes the job worker.
type PipelineConfig struct {
	// Strategy selects the structured extractor: "assisted" or "pattern".
	Strategy string
	// ProcessTimeout bounds one file's pipeline pass. Zero disables the bound.
	ProcessTimeout time.Duration
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Companies: CompaniesConfig{
			DSN: getEnv("PAYROLL_DB_URL", ""),
		},
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Storage: StorageConfig{
			Root: getEnv("NFSE_STORAGE_ROOT", "./data"),
		},
		OCR: OCRConfig{
			Pdftoppm:  getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract: getEnv("TESSERACT_BIN", "tesseract"),
			Language:  getEnv("NFSE_OCR_LANGUAGE", "por"),
			DPI:       getEnvAsInt("NFSE_OCR_DPI", 300),
		},
		LLM: LLMConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("OPENAI_MODEL", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Timeout: getEnvAsDuration("OPENAI_TIMEOUT", 120*time.Second),
		},
		Pipeline: PipelineConfig{
			Strategy:       getEnv("NFSE_EXTRACTOR", "assisted"),
			ProcessTimeout: getEnvAsDuration("NFSE_PROCESS_TIMEOUT", 10*time.Minute),
		},
	}
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Pipeline.Strategy != "assisted" && c.Pipeline.Strategy != "pattern" {
		return NewAppError("CONFIG_ERROR", "NFSE_EXTRACTOR must be assisted or pattern", ErrInvalidInput)
	}
	if c.Pipeline.Strategy == "assisted" && c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required for the assisted extractor", ErrInvalidInput)
	}
	return nil
}

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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
