package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/infrastructure/memory"
	"github.com/vitovidale/video-insight-service/logger"
)

const validInsights = `{"lessons":[{"title":"Focus","summary":"Do one thing","action_steps":["Close tabs"]}],"quotes":["Less is more"],"category":"productivity","tags":["focus"]}`

type stubTranscripts struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, link string) (string, error)
}

func (s *stubTranscripts) Name() string {
	if s.name == "" {
		return "stub-transcripts"
	}
	return s.name
}

func (s *stubTranscripts) FetchTranscript(ctx context.Context, link string) (string, error) {
	s.calls.Add(1)
	return s.fn(ctx, link)
}

type stubInsights struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, transcript string) (string, error)
}

func (s *stubInsights) Name() string {
	if s.name == "" {
		return "stub-insights"
	}
	return s.name
}

func (s *stubInsights) CompleteInsights(ctx context.Context, transcript string) (string, error) {
	s.calls.Add(1)
	return s.fn(ctx, transcript)
}

type stubMetadata struct {
	meta domain.VideoMetadata
	err  error
}

func (s stubMetadata) FetchMetadata(context.Context, string, string) (domain.VideoMetadata, error) {
	return s.meta, s.err
}

type stubVerifier map[string]string

func (s stubVerifier) VerifyToken(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("signature is invalid")
}

// failingQueue rejects every publish.
type failingQueue struct{}

func (failingQueue) Publish(context.Context, domain.Job) error { return errors.New("broker down") }
func (failingQueue) PublishDeadLetter(context.Context, domain.DeadLetter) error {
	return errors.New("broker down")
}

type harness struct {
	videos    *memory.VideoRepository
	owners    *memory.OwnershipRepository
	queue     *memory.Queue
	artifacts *memory.ArtifactStore
	quota     *QuotaLedger
	submit    *SubmitVideoUseCase
	process   *ProcessVideoUseCase
	guests    *CreateGuestSessionUseCase
	transcr   *stubTranscripts
	insights  *stubInsights
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.NewNop()
	h := &harness{
		videos:    memory.NewVideoRepository(),
		owners:    memory.NewOwnershipRepository(),
		queue:     memory.NewQueue(),
		artifacts: memory.NewArtifactStore(),
		transcr: &stubTranscripts{fn: func(context.Context, string) (string, error) {
			return "today we talk about focus", nil
		}},
		insights: &stubInsights{fn: func(context.Context, string) (string, error) {
			return "```json\n" + validInsights + "\n```", nil
		}},
	}
	h.quota = NewQuotaLedger(h.owners, log)
	h.submit = NewSubmitVideoUseCase(h.videos, h.owners, h.quota, h.queue, nil, nil, log)
	h.process = NewProcessVideoUseCase(h.videos, h.owners, h.queue, h.artifacts,
		NewTranscriptChain(log, nil, h.transcr), NewInsightChain(log, nil, h.insights), nil, log)
	h.guests = NewCreateGuestSessionUseCase(h.owners, 3, 7*24*time.Hour, log)
	return h
}

func (h *harness) newGuest(t *testing.T) domain.Identity {
	t.Helper()
	guest, err := h.guests.Execute(context.Background())
	require.NoError(t, err)
	return domain.GuestIdentity(guest.ID)
}

func (h *harness) submitLink(t *testing.T, caller domain.Identity, link string) *SubmitVideoOutput {
	t.Helper()
	out, err := h.submit.Execute(context.Background(), SubmitVideoInput{Caller: caller, SourceLink: link})
	require.NoError(t, err)
	return out
}

// drain runs queued jobs through the worker until the queue is empty and
// returns how many deliveries were handled.
func (h *harness) drain(t *testing.T) int {
	t.Helper()
	handled := 0
	for {
		jobs := h.queue.Drain()
		if len(jobs) == 0 {
			return handled
		}
		for _, job := range jobs {
			require.NoError(t, h.process.Execute(context.Background(), job))
			handled++
			h.assertDoneMatchesRefs(t)
		}
	}
}

func (h *harness) assertDoneMatchesRefs(t *testing.T) {
	t.Helper()
	all, err := h.videos.FindStale(context.Background(), domain.AllVideoStatuses(), time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	for _, v := range all {
		hasRefs := v.TranscriptRef != "" && v.InsightsRef != ""
		require.Equal(t, v.Status == domain.VideoStatusDone, hasRefs, "video %s status %s", v.ID, v.Status)
	}
}

func (h *harness) video(t *testing.T, id string) *domain.Video {
	t.Helper()
	v, err := h.videos.FindByID(context.Background(), id)
	require.NoError(t, err)
	return v
}

func (h *harness) library(t *testing.T, owner domain.Identity) []string {
	t.Helper()
	ids, err := h.owners.ListVideoIDs(context.Background(), owner)
	require.NoError(t, err)
	return ids
}

var user = domain.RegisteredIdentity("user-1")

func parallel(n int, fn func(i int)) {
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			fn(i)
		}(i)
	}
	wg.Wait()
}
