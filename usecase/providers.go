package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/logger"
)

// TranscriptChain tries transcript providers in order; the first non-empty
// transcript wins.
type TranscriptChain struct {
	providers []domain.TranscriptProvider
	metrics   domain.Metrics
	log       *logger.Logger
}

func NewTranscriptChain(log *logger.Logger, metrics domain.Metrics, providers ...domain.TranscriptProvider) *TranscriptChain {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &TranscriptChain{providers: providers, metrics: metrics, log: log.With("service", "TranscriptChain")}
}

func (c *TranscriptChain) Name() string { return "transcript-chain" }

func (c *TranscriptChain) FetchTranscript(ctx context.Context, sourceLink string) (string, error) {
	return firstSuccess(ctx, c.log, c.metrics, "transcript", c.providers,
		func(p domain.TranscriptProvider) string { return p.Name() },
		func(ctx context.Context, p domain.TranscriptProvider) (string, error) {
			text, err := p.FetchTranscript(ctx, sourceLink)
			if err == nil && strings.TrimSpace(text) == "" {
				err = domain.ErrEmptyTranscript
			}
			return text, err
		})
}

// InsightChain tries chat-completion providers in order.
type InsightChain struct {
	providers []domain.InsightProvider
	metrics   domain.Metrics
	log       *logger.Logger
}

func NewInsightChain(log *logger.Logger, metrics domain.Metrics, providers ...domain.InsightProvider) *InsightChain {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &InsightChain{providers: providers, metrics: metrics, log: log.With("service", "InsightChain")}
}

func (c *InsightChain) Name() string { return "insight-chain" }

func (c *InsightChain) CompleteInsights(ctx context.Context, transcript string) (string, error) {
	return firstSuccess(ctx, c.log, c.metrics, "insights", c.providers,
		func(p domain.InsightProvider) string { return p.Name() },
		func(ctx context.Context, p domain.InsightProvider) (string, error) {
			out, err := p.CompleteInsights(ctx, transcript)
			if err == nil && strings.TrimSpace(domain.StripCodeFences(out)) == "" {
				err = domain.Wrap(domain.ErrMalformedResponse, "insights", p.Name(), "empty model output", nil)
			}
			return out, err
		})
}

func firstSuccess[P any](
	ctx context.Context,
	log *logger.Logger,
	metrics domain.Metrics,
	kind string,
	providers []P,
	name func(P) string,
	call func(context.Context, P) (string, error),
) (string, error) {
	if len(providers) == 0 {
		return "", domain.Wrap(domain.ErrConfiguration, kind, "", "no providers configured", nil)
	}
	var lastErr error
	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		out, err := call(ctx, p)
		metrics.ProviderCalled(kind, name(p), err)
		if err == nil {
			return out, nil
		}
		log.Warn("provider failed, trying next", "kind", kind, "provider", name(p), "error", err)
		lastErr = fmt.Errorf("%s: %w", name(p), err)
	}
	return "", fmt.Errorf("all %d %s providers failed, last error: %w", len(providers), kind, lastErr)
}
