package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/logger"
)

func TestTranscriptChainFallsBackInOrder(t *testing.T) {
	limited := &stubTranscripts{name: "key-1", fn: func(context.Context, string) (string, error) {
		return "", errors.New("Limit Exceeded")
	}}
	empty := &stubTranscripts{name: "key-2", fn: func(context.Context, string) (string, error) {
		return "  ", nil
	}}
	good := &stubTranscripts{name: "key-3", fn: func(context.Context, string) (string, error) {
		return "hello", nil
	}}
	unused := &stubTranscripts{name: "key-4", fn: func(context.Context, string) (string, error) {
		return "never", nil
	}}

	chain := NewTranscriptChain(logger.NewNop(), nil, limited, empty, good, unused)
	text, err := chain.FetchTranscript(context.Background(), "https://youtu.be/abc123")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Zero(t, unused.calls.Load())
}

func TestTranscriptChainReportsLastError(t *testing.T) {
	first := &stubTranscripts{name: "key-1", fn: func(context.Context, string) (string, error) {
		return "", errors.New("first failure")
	}}
	second := &stubTranscripts{name: "key-2", fn: func(context.Context, string) (string, error) {
		return "", errors.New("second failure")
	}}

	_, err := NewTranscriptChain(logger.NewNop(), nil, first, second).FetchTranscript(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 transcript providers failed")
	assert.Contains(t, err.Error(), "key-2: second failure")
	assert.NotContains(t, err.Error(), "first failure")
}

func TestChainWithoutProviders(t *testing.T) {
	_, err := NewInsightChain(logger.NewNop(), nil).CompleteInsights(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestInsightChainSkipsEmptyOutput(t *testing.T) {
	blank := &stubInsights{name: "a", fn: func(context.Context, string) (string, error) { return "```json```", nil }}
	good := &stubInsights{name: "b", fn: func(context.Context, string) (string, error) { return validInsights, nil }}

	out, err := NewInsightChain(logger.NewNop(), nil, blank, good).CompleteInsights(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, validInsights, out)
}

func TestChainStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &stubTranscripts{fn: func(context.Context, string) (string, error) { return "x", nil }}

	_, err := NewTranscriptChain(logger.NewNop(), nil, p).FetchTranscript(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, p.calls.Load())
}
