package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitovidale/video-insight-service/domain"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newSupadata(t *testing.T, handler http.HandlerFunc, maxPolls int) *SupadataClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewSupadataClient(SupadataConfig{
		BaseURL:  server.URL,
		APIKey:   "key-1",
		MaxPolls: maxPolls,
		Timeout:  5 * time.Second,
	}, WithSleeper(noSleep), WithRetry(2, 0))
}

func TestSupadataImmediateTranscript(t *testing.T) {
	client := newSupadata(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transcript", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("x-api-key"))
		assert.Equal(t, "https://youtu.be/abc", r.URL.Query().Get("url"))
		_, _ = w.Write([]byte(`{"content":[{"text":"hello","offset":0},{"text":"world","offset":1}],"lang":"en"}`))
	}, 3)

	text, err := client.FetchTranscript(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestSupadataPollsJob(t *testing.T) {
	var polls atomic.Int32
	client := newSupadata(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transcript":
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"jobId":"job-7"}`))
		case "/transcript/job-7":
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"status":"active"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"completed","content":"plain text transcript"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}, 5)

	text, err := client.FetchTranscript(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)
	assert.Equal(t, "plain text transcript", text)
	assert.Equal(t, int32(3), polls.Load())
}

func TestSupadataJobTimesOut(t *testing.T) {
	client := newSupadata(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/transcript" {
			_, _ = w.Write([]byte(`{"jobId":"slow"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"queued"}`))
	}, 2)

	_, err := client.FetchTranscript(context.Background(), "https://youtu.be/abc")
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestSupadataRetriesThrottling(t *testing.T) {
	var calls atomic.Int32
	client := newSupadata(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Limit Exceeded"}`))
			return
		}
		_, _ = w.Write([]byte(`{"content":"second time lucky"}`))
	}, 1)

	text, err := client.FetchTranscript(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSupadataErrors(t *testing.T) {
	t.Run("empty transcript", func(t *testing.T) {
		client := newSupadata(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"content":[]}`))
		}, 1)
		_, err := client.FetchTranscript(context.Background(), "x")
		assert.ErrorIs(t, err, domain.ErrEmptyTranscript)
	})

	t.Run("unauthorized is not retried", func(t *testing.T) {
		var calls atomic.Int32
		client := newSupadata(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}, 1)
		_, err := client.FetchTranscript(context.Background(), "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http 401")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewSupadataClient(SupadataConfig{BaseURL: "http://unused"}).FetchTranscript(context.Background(), "x")
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})
}

func newChat(t *testing.T, handler http.HandlerFunc) *ChatCompletionClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewChatCompletionClient(ChatConfig{BaseURL: server.URL, APIKey: "sk-test", Model: "demo-model"},
		WithSleeper(noSleep), WithRetry(1, 0))
}

func TestChatCompletionContentShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message content", `{"choices":[{"message":{"content":" {\"lessons\":[]} "}}]}`, `{"lessons":[]}`},
		{"legacy text choice", `{"choices":[{"text":"{\"tags\":[]}"}]}`, `{"tags":[]}`},
		{"flat text", `{"text":"{\"category\":\"x\"}"}`, `{"category":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newChat(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
				var req chatCompletionRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "demo-model", req.Model)
				require.Len(t, req.Messages, 2)
				assert.Contains(t, req.Messages[1].Content, "the transcript")
				_, _ = w.Write([]byte(tt.body))
			})
			out, err := client.CompleteInsights(context.Background(), "the transcript")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestChatCompletionFailures(t *testing.T) {
	t.Run("empty content", func(t *testing.T) {
		client := newChat(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""},"finish_reason":"length"}]}`))
		})
		_, err := client.CompleteInsights(context.Background(), "t")
		assert.ErrorIs(t, err, domain.ErrMalformedResponse)
		assert.Contains(t, err.Error(), "length")
	})

	t.Run("server error", func(t *testing.T) {
		client := newChat(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		})
		_, err := client.CompleteInsights(context.Background(), "t")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http 502")
	})

	t.Run("provider error body", func(t *testing.T) {
		client := newChat(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":{"message":"quota exhausted"}}`))
		})
		_, err := client.CompleteInsights(context.Background(), "t")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota exhausted")
	})
}

func TestOEmbedMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") == "https://youtu.be/missing" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		_, _ = w.Write([]byte(`{"title":" A talk ","thumbnail_url":"https://i.ytimg.com/vi/abc/hq.jpg"}`))
	}))
	defer server.Close()

	p := NewOEmbedMetadataProvider(server.URL, time.Second)

	meta, err := p.FetchMetadata(context.Background(), "abc", "https://youtu.be/abc")
	require.NoError(t, err)
	assert.Equal(t, "A talk", meta.Title)
	assert.Equal(t, "https://i.ytimg.com/vi/abc/hq.jpg", meta.ThumbnailURL)
	assert.Zero(t, meta.DurationSeconds)

	_, err = p.FetchMetadata(context.Background(), "missing", "https://youtu.be/missing")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
