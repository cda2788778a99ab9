package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL   string // RELAY_DATABASE_URL (required)
	HTTPAddr      string // RELAY_HTTP_ADDR (default ":8080")
	NATSURL       string // RELAY_NATS_URL (optional, empty = no events)
	AuthToken     string // RELAY_AUTH_TOKEN (optional, empty = auth disabled)
	DefaultBranch string // RELAY_DEFAULT_BRANCH (default "main")
	WorkflowDir   string // RELAY_WORKFLOW_DIR (default "workflows")
	WorkDir       string // RELAY_WORK_DIR (working directory for stage steps)
	Workers       int    // RELAY_WORKERS (default 2)

	// Artifact storage settings
	ArtifactS3Bucket   string        // RELAY_ARTIFACT_S3_BUCKET (enables S3 when set)
	ArtifactS3Endpoint string        // RELAY_ARTIFACT_S3_ENDPOINT (custom endpoint for MinIO)
	ArtifactS3Region   string        // RELAY_ARTIFACT_S3_REGION (default "us-east-1")
	ArtifactS3Prefix   string        // RELAY_ARTIFACT_S3_PREFIX (default "relay")
	SweepInterval      time.Duration // RELAY_SWEEP_INTERVAL (default 1h; 0 = disabled)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:        os.Getenv("RELAY_DATABASE_URL"),
		HTTPAddr:           envOrDefault("RELAY_HTTP_ADDR", ":8080"),
		NATSURL:            os.Getenv("RELAY_NATS_URL"),
		AuthToken:          os.Getenv("RELAY_AUTH_TOKEN"),
		DefaultBranch:      envOrDefault("RELAY_DEFAULT_BRANCH", "main"),
		WorkflowDir:        envOrDefault("RELAY_WORKFLOW_DIR", "workflows"),
		WorkDir:            os.Getenv("RELAY_WORK_DIR"),
		ArtifactS3Bucket:   os.Getenv("RELAY_ARTIFACT_S3_BUCKET"),
		ArtifactS3Endpoint: os.Getenv("RELAY_ARTIFACT_S3_ENDPOINT"),
		ArtifactS3Region:   envOrDefault("RELAY_ARTIFACT_S3_REGION", "us-east-1"),
		ArtifactS3Prefix:   envOrDefault("RELAY_ARTIFACT_S3_PREFIX", "relay"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("RELAY_DATABASE_URL is required")
	}

	workersStr := envOrDefault("RELAY_WORKERS", "2")
	workers, err := strconv.Atoi(workersStr)
	if err != nil || workers < 1 {
		return nil, fmt.Errorf("RELAY_WORKERS: invalid worker count %q", workersStr)
	}
	c.Workers = workers

	intervalStr := envOrDefault("RELAY_SWEEP_INTERVAL", "1h")
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("RELAY_SWEEP_INTERVAL: %w", err)
		}
		c.SweepInterval = d
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
