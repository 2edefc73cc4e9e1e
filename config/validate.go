package config

import (
	"errors"
	"fmt"
	"strings"
)

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Queue.Driver = strings.ToLower(strings.TrimSpace(c.Queue.Driver))
	c.Artifacts.Driver = strings.ToLower(strings.TrimSpace(c.Artifacts.Driver))
	c.Transcript.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcript.BaseURL), "/")
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.Transcript.APIKeys = dedupe(c.Transcript.APIKeys)
	c.LLM.APIKeys = dedupe(c.LLM.APIKeys)
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 1
	}
	if c.Pipeline.MaxRetries < 0 {
		c.Pipeline.MaxRetries = 0
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret is required. Set JWT_SECRET or edit the config file")
	}
	switch c.Storage.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("storage.driver %q must be %q or %q", c.Storage.Driver, DriverPostgres, DriverMemory)
	}
	switch c.Queue.Driver {
	case DriverRabbitMQ, DriverMemory:
	default:
		return fmt.Errorf("queue.driver %q must be %q or %q", c.Queue.Driver, DriverRabbitMQ, DriverMemory)
	}
	switch c.Artifacts.Driver {
	case DriverGCS:
		if strings.TrimSpace(c.Artifacts.Bucket) == "" {
			return errors.New("artifacts.bucket is required for the gcs driver. Set GCS_BUCKET")
		}
	case DriverFS:
		if strings.TrimSpace(c.Artifacts.Dir) == "" {
			return errors.New("artifacts.dir is required for the fs driver. Set ARTIFACT_DIR")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("artifacts.driver %q must be gcs, fs or memory", c.Artifacts.Driver)
	}
	if c.Quota.GuestMaxVideos <= 0 {
		return errors.New("quota.guest_max_videos must be positive")
	}
	if c.Quota.GuestSessionTTL.Duration <= 0 {
		return errors.New("quota.guest_session_ttl must be positive")
	}
	if c.Pipeline.MaxDurationSeconds < 0 {
		return errors.New("pipeline.max_duration_seconds must not be negative")
	}
	if c.Transcript.PollInterval.Duration <= 0 || c.Transcript.MaxPolls <= 0 {
		return errors.New("transcript.poll_interval and transcript.max_polls must be positive")
	}
	if c.Worker.StaleAfter.Duration <= 0 || c.Worker.ReapInterval.Duration <= 0 {
		return errors.New("worker.stale_after and worker.reap_interval must be positive")
	}
	return nil
}

// ValidateWorker checks what only the processing worker needs.
func (c *Config) ValidateWorker() error {
	if len(c.Transcript.APIKeys) == 0 {
		return errors.New("transcript.api_keys is empty. Set TRANSCRIPT_API_KEYS")
	}
	if len(c.LLM.APIKeys) == 0 {
		return errors.New("llm.api_keys is empty. Set LLM_API_KEYS")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model is required")
	}
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
