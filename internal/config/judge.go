package config

import (
	"log/slog"
	"time"

	"github.com/deloaiprivatelimited/exam-engine/internal/judge"
)

// JudgeConfig holds the Judge0 upstream settings
type JudgeConfig struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	APIHost      string // RapidAPI host header, empty for self-hosted instances
	Timeout      time.Duration
	MaxWorkers   int // per-submission dispatch pool size
}

// CreateClient creates a Judge0 client from the configuration
func (c *JudgeConfig) CreateClient(logger *slog.Logger) *judge.Client {
	return judge.NewClient(judge.ClientConfig{
		BaseURL:      c.BaseURL,
		APIKey:       c.APIKey,
		APIKeyHeader: c.APIKeyHeader,
		APIHost:      c.APIHost,
		Timeout:      c.Timeout,
	}, logger)
}
