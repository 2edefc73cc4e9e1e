package config

import (
	"strconv"
	"strings"
)

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = splitList(v)
		}
	}

	str("PORT", &cfg.HTTP.Port)
	list("ALLOWED_ORIGINS", &cfg.HTTP.AllowedOrigins)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)

	str("DB_HOST", &cfg.Postgres.Host)
	str("DB_PORT", &cfg.Postgres.Port)
	str("DB_USER", &cfg.Postgres.User)
	str("DB_PASS", &cfg.Postgres.Password)
	str("DB_NAME", &cfg.Postgres.Name)
	str("DB_SSLMODE", &cfg.Postgres.SSLMode)

	str("RABBITMQ_HOST", &cfg.RabbitMQ.Host)
	str("RABBITMQ_PORT", &cfg.RabbitMQ.Port)
	str("RABBITMQ_USER", &cfg.RabbitMQ.User)
	str("RABBITMQ_PASS", &cfg.RabbitMQ.Password)

	str("REDIS_URL", &cfg.Redis.URL)

	str("STORAGE_DRIVER", &cfg.Storage.Driver)
	str("QUEUE_DRIVER", &cfg.Queue.Driver)
	str("ARTIFACT_DRIVER", &cfg.Artifacts.Driver)
	str("GCS_BUCKET", &cfg.Artifacts.Bucket)
	str("GOOGLE_APPLICATION_CREDENTIALS", &cfg.Artifacts.CredentialsFile)
	str("ARTIFACT_DIR", &cfg.Artifacts.Dir)

	list("TRANSCRIPT_API_KEYS", &cfg.Transcript.APIKeys)
	str("TRANSCRIPT_BASE_URL", &cfg.Transcript.BaseURL)
	list("LLM_API_KEYS", &cfg.LLM.APIKeys)
	str("LLM_BASE_URL", &cfg.LLM.BaseURL)
	str("LLM_MODEL", &cfg.LLM.Model)

	if v, ok := lookup("WORKER_CONCURRENCY"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Worker.Concurrency = n
		}
	}

	str("LOG_MODE", &cfg.Logging.Mode)
	str("LOG_LEVEL", &cfg.Logging.Level)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
