package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vitovidale/video-insight-service/domain"
)

type SupadataConfig struct {
	Name              string
	BaseURL           string
	APIKey            string
	Lang              string
	PollInterval      time.Duration
	MaxPolls          int
	Timeout           time.Duration
	RequestsPerSecond float64
}

// SupadataClient fetches transcripts with one API key. Long videos are
// answered with a job id that is polled until the transcript is ready.
type SupadataClient struct {
	cfg SupadataConfig
	baseClient
}

func NewSupadataClient(cfg SupadataConfig, opts ...ClientOption) *SupadataClient {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.Name == "" {
		cfg.Name = "supadata"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 50
	}
	return &SupadataClient{
		cfg:        cfg,
		baseClient: newBaseClient("transcript", cfg.Timeout, cfg.RequestsPerSecond, opts),
	}
}

func (c *SupadataClient) Name() string { return c.cfg.Name }

type supadataResponse struct {
	Content json.RawMessage `json:"content"`
	JobID   string          `json:"jobId"`
	Status  string          `json:"status"`
	Error   json.RawMessage `json:"error"`
}

func (c *SupadataClient) FetchTranscript(ctx context.Context, sourceLink string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", domain.Wrap(domain.ErrConfiguration, "transcript", c.cfg.Name, "api key required", nil)
	}
	query := url.Values{}
	query.Set("url", sourceLink)
	query.Set("text", "false")
	query.Set("mode", "native")
	if c.cfg.Lang != "" {
		query.Set("lang", c.cfg.Lang)
	}

	var first supadataResponse
	if _, err := c.do(ctx, c.get("/transcript?"+query.Encode()), &first); err != nil {
		return "", err
	}
	if first.JobID == "" {
		return transcriptText(first.Content)
	}
	return c.poll(ctx, first.JobID)
}

func (c *SupadataClient) poll(ctx context.Context, jobID string) (string, error) {
	path := "/transcript/" + url.PathEscape(jobID)
	for attempt := 1; attempt <= c.cfg.MaxPolls; attempt++ {
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return "", err
		}
		var job supadataResponse
		if _, err := c.do(ctx, c.get(path), &job); err != nil {
			return "", fmt.Errorf("poll transcript job %s: %w", jobID, err)
		}
		switch strings.ToLower(job.Status) {
		case "completed", "done":
			return transcriptText(job.Content)
		case "failed":
			return "", fmt.Errorf("transcript job %s failed: %s", jobID, snippet(string(job.Error)))
		}
	}
	return "", domain.Wrap(domain.ErrTransient, "transcript", "poll",
		fmt.Sprintf("job %s did not complete after %d polls", jobID, c.cfg.MaxPolls), nil)
}

func (c *SupadataClient) get(path string) func(context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-api-key", c.cfg.APIKey)
		req.Header.Set("Accept", domain.ContentTypeJSON)
		return req, nil
	}
}

// transcriptText joins timestamped chunks with spaces. Plain-text content
// is returned as is.
func transcriptText(raw json.RawMessage) (string, error) {
	var text string
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "" || trimmed == "null":
	case strings.HasPrefix(trimmed, `"`):
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", fmt.Errorf("decode transcript text: %w", err)
		}
	case strings.HasPrefix(trimmed, "["):
		var chunks []struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &chunks); err != nil {
			return "", fmt.Errorf("decode transcript chunks: %w", err)
		}
		parts := make([]string, 0, len(chunks))
		for _, ch := range chunks {
			parts = append(parts, ch.Text)
		}
		text = strings.Join(parts, " ")
	default:
		return "", domain.Wrap(domain.ErrMalformedResponse, "transcript", "decode", "unexpected content format", nil)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrEmptyTranscript
	}
	return text, nil
}
