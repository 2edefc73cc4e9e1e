package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vitovidale/video-insight-service/domain"
)

type ChatConfig struct {
	Name              string
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// ChatCompletionClient asks an OpenAI-compatible endpoint for the insight
// document of a transcript with one API key.
type ChatCompletionClient struct {
	cfg ChatConfig
	baseClient
}

func NewChatCompletionClient(cfg ChatConfig, opts ...ClientOption) *ChatCompletionClient {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &ChatCompletionClient{
		cfg:        cfg,
		baseClient: newBaseClient("llm", cfg.Timeout, cfg.RequestsPerSecond, opts),
	}
}

func (c *ChatCompletionClient) Name() string { return c.cfg.Name }

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionResponse covers the chat schema plus the flat "text" field
// some gateways return.
type chatCompletionResponse struct {
	Text    string `json:"text"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *ChatCompletionClient) CompleteInsights(ctx context.Context, transcript string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", domain.Wrap(domain.ErrConfiguration, "insights", c.cfg.Name, "api key required", nil)
	}
	if strings.TrimSpace(transcript) == "" {
		return "", domain.ErrEmptyTranscript
	}
	payload, err := json.Marshal(chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: domain.InsightSystemPrompt},
			{Role: "user", Content: domain.InsightUserPrompt(transcript)},
		},
		Temperature:    0.2,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("llm request: encode body: %w", err)
	}

	var completion chatCompletionResponse
	_, err = c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", domain.ContentTypeJSON)
		return req, nil
	}, &completion)
	if err != nil {
		return "", err
	}
	if completion.Error != nil && strings.TrimSpace(completion.Error.Message) != "" {
		return "", fmt.Errorf("llm request: provider error: %s", completion.Error.Message)
	}
	content, finishReason, refusal := completionContent(completion)
	if content == "" {
		return "", domain.Wrap(domain.ErrMalformedResponse, "insights", c.cfg.Name,
			fmt.Sprintf("empty content (finish_reason=%q, refusal=%q)", finishReason, refusal), nil)
	}
	return content, nil
}

func completionContent(completion chatCompletionResponse) (content, finishReason, refusal string) {
	if text := strings.TrimSpace(completion.Text); text != "" {
		return text, "", ""
	}
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = strings.TrimSpace(choice.Message.Refusal)
		}
		for _, candidate := range []string{choice.Message.Content, choice.Text} {
			if trimmed := strings.TrimSpace(candidate); trimmed != "" {
				return trimmed, finishReason, refusal
			}
		}
	}
	return "", finishReason, refusal
}
