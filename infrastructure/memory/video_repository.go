// Package memory holds in-process implementations of the domain ports. They
// back the "memory" drivers and the use case tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vitovidale/video-insight-service/domain"
)

type VideoRepository struct {
	mu     sync.Mutex
	videos map[string]domain.Video
	now    func() time.Time
}

func NewVideoRepository() *VideoRepository {
	return &VideoRepository{videos: make(map[string]domain.Video), now: time.Now}
}

// SetClock replaces the clock used for updated_at.
func (r *VideoRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *VideoRepository) Create(_ context.Context, video *domain.Video) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.videos[video.ID]; ok {
		return false, nil
	}
	stored := *video
	now := r.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.videos[video.ID] = stored
	return true, nil
}

func (r *VideoRepository) FindByID(_ context.Context, id string) (*domain.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &v, nil
}

func (r *VideoRepository) FindByIDs(_ context.Context, ids []string) ([]domain.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Video, 0, len(ids))
	for _, id := range ids {
		if v, ok := r.videos[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *VideoRepository) MarkProcessing(_ context.Context, id string, retryCount int) error {
	return r.transition(id, domain.VideoStatusProcessing, func(v *domain.Video) bool {
		return v.RetryCount == retryCount
	})
}

func (r *VideoRepository) MarkDone(_ context.Context, id, transcriptRef, insightsRef string) error {
	return r.transition(id, domain.VideoStatusDone, func(v *domain.Video) bool {
		if transcriptRef == "" || insightsRef == "" {
			return false
		}
		v.TranscriptRef = transcriptRef
		v.InsightsRef = insightsRef
		v.LastError = ""
		v.LastFailedAt = nil
		return true
	})
}

func (r *VideoRepository) MarkRetrying(_ context.Context, id string, retryCount int, lastError string, at time.Time) error {
	return r.transition(id, domain.VideoStatusRetrying, func(v *domain.Video) bool {
		if v.RetryCount != retryCount-1 {
			return false
		}
		v.RetryCount = retryCount
		v.LastError = lastError
		v.LastFailedAt = &at
		return true
	})
}

func (r *VideoRepository) MarkFailedPermanent(_ context.Context, id string, lastError string, at time.Time) error {
	return r.transition(id, domain.VideoStatusFailedPermanent, func(v *domain.Video) bool {
		v.LastError = lastError
		v.LastFailedAt = &at
		return true
	})
}

func (r *VideoRepository) Release(_ context.Context, id string, retryCount int) error {
	return r.transition(id, domain.VideoStatusRetrying, func(v *domain.Video) bool {
		return v.Status == domain.VideoStatusProcessing && v.RetryCount == retryCount
	})
}

func (r *VideoRepository) Rearm(_ context.Context, id string) (bool, error) {
	err := r.transition(id, domain.VideoStatusPending, func(v *domain.Video) bool {
		v.RetryCount = 0
		v.LastError = ""
		v.LastFailedAt = nil
		v.TranscriptRef = ""
		v.InsightsRef = ""
		return true
	})
	switch err {
	case nil:
		return true, nil
	case domain.ErrIllegalTransition:
		return false, nil
	default:
		return false, err
	}
}

func (r *VideoRepository) FindStale(_ context.Context, statuses []domain.VideoStatus, cutoff time.Time, limit int) ([]domain.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[domain.VideoStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []domain.Video
	for _, v := range r.videos {
		if want[v.Status] && v.UpdatedAt.Before(cutoff) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *VideoRepository) Touch(_ context.Context, id string, status domain.VideoStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return domain.ErrNotFound
	}
	if v.Status != status {
		return domain.ErrIllegalTransition
	}
	v.UpdatedAt = r.now()
	r.videos[id] = v
	return nil
}

// transition applies mutate when the record may move to next. mutate may
// refuse the change by returning false; nothing is written in that case.
func (r *VideoRepository) transition(id string, next domain.VideoStatus, mutate func(*domain.Video) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !domain.CanTransition(v.Status, next) {
		return domain.ErrIllegalTransition
	}
	if !mutate(&v) {
		return domain.ErrIllegalTransition
	}
	v.Status = next
	v.UpdatedAt = r.now()
	r.videos[id] = v
	return nil
}

// Put stores a record as is. Tests use it to seed arbitrary states.
func (r *VideoRepository) Put(video domain.Video) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if video.UpdatedAt.IsZero() {
		video.UpdatedAt = r.now()
	}
	r.videos[video.ID] = video
}
