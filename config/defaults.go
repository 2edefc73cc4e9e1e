package config

import "time"

const (
	DriverPostgres = "postgres"
	DriverRabbitMQ = "rabbitmq"
	DriverMemory   = "memory"
	DriverGCS      = "gcs"
	DriverFS       = "fs"
)

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		HTTP: HTTP{
			Port:            "5001",
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     seconds(15),
			ShutdownTimeout: seconds(20),
		},
		Auth: Auth{},
		Postgres: Postgres{
			Host:          "db",
			Port:          "5432",
			User:          "user",
			Password:      "password",
			Name:          "video_insights",
			SSLMode:       "disable",
			ConnectTries:  5,
			ConnectWait:   seconds(5),
			MaxOpenConns:  20,
			QueryTimeout:  seconds(5),
			MigrateOnBoot: true,
		},
		RabbitMQ: RabbitMQ{
			Host:         "rabbitmq",
			Port:         "5672",
			User:         "guest",
			Password:     "guest",
			JobQueue:     "video_insight_jobs",
			DeadLetter:   "video_insight_jobs_dlq",
			ConnectTries: 5,
			ConnectWait:  seconds(5),
		},
		Redis: Redis{
			CacheTTL: Duration{24 * time.Hour},
		},
		Storage:   Storage{Driver: DriverPostgres},
		Queue:     Queue{Driver: DriverRabbitMQ},
		Artifacts: Artifacts{Driver: DriverFS, Dir: "./data/artifacts"},
		Transcript: Transcript{
			BaseURL:           "https://api.supadata.ai/v1",
			Lang:              "en",
			PollInterval:      seconds(2),
			MaxPolls:          50,
			Timeout:           seconds(30),
			RequestsPerSecond: 2,
		},
		LLM: LLM{
			BaseURL:           "https://api.openai.com/v1/chat/completions",
			Model:             "gpt-4o-mini",
			Timeout:           seconds(120),
			RequestsPerSecond: 1,
		},
		Metadata: Metadata{
			Enabled:   true,
			OEmbedURL: "https://www.youtube.com/oembed",
			Timeout:   seconds(10),
		},
		Pipeline: Pipeline{
			MaxRetries:         3,
			MaxDurationSeconds: 20 * 60,
		},
		Quota: Quota{
			GuestMaxVideos:  3,
			GuestSessionTTL: Duration{7 * 24 * time.Hour},
		},
		Worker: Worker{
			Concurrency:       2,
			CatalogTimeout:    seconds(10),
			TranscriptTimeout: seconds(150),
			InsightsTimeout:   seconds(180),
			StorageTimeout:    seconds(30),
			ReapInterval:      Duration{time.Minute},
			StaleAfter:        Duration{15 * time.Minute},
			DrainTimeout:      seconds(15),
		},
		Logging: Logging{Mode: "dev", Level: "info"},
	}
}
