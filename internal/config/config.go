package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"TS_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"TS_DB_MAX_CONNS" default:"8"`

	CRMBaseURL      string        `envconfig:"CRM_BASE_URL" default:"http://localhost:8080"`
	CRMClientID     string        `envconfig:"CRM_CLIENT_ID" default:""`
	CRMClientSecret string        `envconfig:"CRM_CLIENT_SECRET" default:""`
	CRMUsername     string        `envconfig:"CRM_USERNAME" default:""`
	CRMPassword     string        `envconfig:"CRM_PASSWORD" default:""`
	CRMPageSize     int           `envconfig:"CRM_PAGE_SIZE" default:"1000"`
	CRMPageDelay    time.Duration `envconfig:"CRM_PAGE_DELAY" default:"100ms"`
	CRMMaxRecords   int           `envconfig:"CRM_MAX_RECORDS" default:"50000"`

	EmbeddingServiceURL string        `envconfig:"EMBEDDING_SERVICE_URL" default:"http://localhost:8000"`
	EmbeddingBatchSize  int           `envconfig:"EMBEDDING_BATCH_SIZE" default:"500"`
	EmbeddingWorkers    int           `envconfig:"EMBEDDING_WORKERS" default:"5"`
	EmbeddingTimeout    time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"120s"`

	MatchingMinScore   int           `envconfig:"MATCHING_MIN_SCORE" default:"70"`
	MatchingMaxMatches int           `envconfig:"MATCHING_MAX_MATCHES" default:"100"`
	MatchingTimeout    time.Duration `envconfig:"MATCHING_TIMEOUT" default:"300s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("TS_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("TS_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("TS_DB_MIN_CONNS (%d) cannot exceed TS_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if strings.TrimSpace(c.CRMBaseURL) == "" {
		return fmt.Errorf("CRM_BASE_URL is required")
	}
	if c.CRMPageSize < 1 {
		return fmt.Errorf("CRM_PAGE_SIZE must be >= 1")
	}
	if c.CRMMaxRecords < 0 {
		return fmt.Errorf("CRM_MAX_RECORDS must be >= 0")
	}
	if strings.TrimSpace(c.EmbeddingServiceURL) == "" {
		return fmt.Errorf("EMBEDDING_SERVICE_URL is required")
	}
	if c.EmbeddingBatchSize < 1 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be >= 1")
	}
	if c.EmbeddingWorkers < 1 {
		return fmt.Errorf("EMBEDDING_WORKERS must be >= 1")
	}
	if c.MatchingMinScore < 0 || c.MatchingMinScore > 100 {
		return fmt.Errorf("MATCHING_MIN_SCORE must be between 0 and 100")
	}
	if c.MatchingMaxMatches < 1 {
		return fmt.Errorf("MATCHING_MAX_MATCHES must be >= 1")
	}
	return nil
}
