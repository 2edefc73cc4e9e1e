package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type HTTP struct {
	Port            string   `toml:"port"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	ReadTimeout     Duration `toml:"read_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type Auth struct {
	JWTSecret string `toml:"jwt_secret"`
	Issuer    string `toml:"issuer"`
}

type Postgres struct {
	Host          string   `toml:"host"`
	Port          string   `toml:"port"`
	User          string   `toml:"user"`
	Password      string   `toml:"password"`
	Name          string   `toml:"name"`
	SSLMode       string   `toml:"sslmode"`
	ConnectTries  int      `toml:"connect_tries"`
	ConnectWait   Duration `toml:"connect_wait"`
	MaxOpenConns  int      `toml:"max_open_conns"`
	QueryTimeout  Duration `toml:"query_timeout"`
	MigrateOnBoot bool     `toml:"migrate_on_boot"`
}

type RabbitMQ struct {
	Host         string   `toml:"host"`
	Port         string   `toml:"port"`
	User         string   `toml:"user"`
	Password     string   `toml:"password"`
	JobQueue     string   `toml:"job_queue"`
	DeadLetter   string   `toml:"dead_letter_queue"`
	ConnectTries int      `toml:"connect_tries"`
	ConnectWait  Duration `toml:"connect_wait"`
}

type Redis struct {
	URL      string   `toml:"url"`
	CacheTTL Duration `toml:"cache_ttl"`
}

type Storage struct {
	Driver string `toml:"driver"`
}

type Queue struct {
	Driver string `toml:"driver"`
}

type Artifacts struct {
	Driver          string `toml:"driver"`
	Bucket          string `toml:"bucket"`
	Dir             string `toml:"dir"`
	CredentialsFile string `toml:"credentials_file"`
}

type Transcript struct {
	BaseURL           string   `toml:"base_url"`
	APIKeys           []string `toml:"api_keys"`
	Lang              string   `toml:"lang"`
	PollInterval      Duration `toml:"poll_interval"`
	MaxPolls          int      `toml:"max_polls"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

type LLM struct {
	BaseURL           string   `toml:"base_url"`
	APIKeys           []string `toml:"api_keys"`
	Model             string   `toml:"model"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

type Metadata struct {
	Enabled   bool     `toml:"enabled"`
	OEmbedURL string   `toml:"oembed_url"`
	Timeout   Duration `toml:"timeout"`
}

type Pipeline struct {
	MaxRetries         int `toml:"max_retries"`
	MaxDurationSeconds int `toml:"max_duration_seconds"`
}

type Quota struct {
	GuestMaxVideos  int      `toml:"guest_max_videos"`
	GuestSessionTTL Duration `toml:"guest_session_ttl"`
}

type Worker struct {
	Concurrency       int      `toml:"concurrency"`
	CatalogTimeout    Duration `toml:"catalog_timeout"`
	TranscriptTimeout Duration `toml:"transcript_timeout"`
	InsightsTimeout   Duration `toml:"insights_timeout"`
	StorageTimeout    Duration `toml:"storage_timeout"`
	ReapInterval      Duration `toml:"reap_interval"`
	StaleAfter        Duration `toml:"stale_after"`
	DrainTimeout      Duration `toml:"drain_timeout"`
}

type Logging struct {
	Mode  string `toml:"mode"`
	Level string `toml:"level"`
}

// Config is the full runtime configuration of the service.
type Config struct {
	HTTP       HTTP       `toml:"http"`
	Auth       Auth       `toml:"auth"`
	Postgres   Postgres   `toml:"postgres"`
	RabbitMQ   RabbitMQ   `toml:"rabbitmq"`
	Redis      Redis      `toml:"redis"`
	Storage    Storage    `toml:"storage"`
	Queue      Queue      `toml:"queue"`
	Artifacts  Artifacts  `toml:"artifacts"`
	Transcript Transcript `toml:"transcript"`
	LLM        LLM        `toml:"llm"`
	Metadata   Metadata   `toml:"metadata"`
	Pipeline   Pipeline   `toml:"pipeline"`
	Quota      Quota      `toml:"quota"`
	Worker     Worker     `toml:"worker"`
	Logging    Logging    `toml:"logging"`
}

// Load reads the optional TOML file at path on top of the defaults, then
// applies environment overrides, normalizes and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("config file %s not found", path)
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg, os.LookupEnv)
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DSN is the lib/pq connection string.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Name, p.SSLMode)
}

// URL is the AMQP connection URL.
func (r RabbitMQ) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(r.User, r.Password),
		Host:   r.Host + ":" + r.Port,
		Path:   "/",
	}
	return u.String()
}

// Duration is a time.Duration written as a Go duration string in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func seconds(n int) Duration { return Duration{time.Duration(n) * time.Second} }
