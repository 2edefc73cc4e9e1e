package domain

import (
	"context"
	"time"
)

// VideoRepository is the shared video catalog. Every status change is a
// conditional update that fails with ErrIllegalTransition when the record is
// not in a state the change may start from.
type VideoRepository interface {
	// Create inserts a new pending record. It reports false when a record
	// with the same id already exists.
	Create(ctx context.Context, video *Video) (bool, error)
	FindByID(ctx context.Context, id string) (*Video, error)
	// FindByIDs returns the records that exist, in the order of ids.
	FindByIDs(ctx context.Context, ids []string) ([]Video, error)
	// MarkProcessing moves pending|retrying -> processing for the attempt
	// identified by retryCount.
	MarkProcessing(ctx context.Context, id string, retryCount int) error
	MarkDone(ctx context.Context, id, transcriptRef, insightsRef string) error
	// MarkRetrying moves processing -> retrying and sets retry_count to
	// retryCount, which must be one more than the stored value.
	MarkRetrying(ctx context.Context, id string, retryCount int, lastError string, at time.Time) error
	MarkFailedPermanent(ctx context.Context, id string, lastError string, at time.Time) error
	// Release hands an interrupted attempt back: processing -> retrying with
	// retry_count unchanged, so the redelivered job can claim it again.
	Release(ctx context.Context, id string, retryCount int) error
	// Rearm moves failed|failed_permanent -> pending with retry_count 0. It
	// reports false when another caller re-armed the record first.
	Rearm(ctx context.Context, id string) (bool, error)
	// FindStale lists records in statuses whose last update is before cutoff.
	FindStale(ctx context.Context, statuses []VideoStatus, cutoff time.Time, limit int) ([]Video, error)
	// Touch bumps updated_at when the record is still in status.
	Touch(ctx context.Context, id string, status VideoStatus) error
}

// OwnershipRepository keeps per-identity libraries and guest quota entries.
type OwnershipRepository interface {
	CreateGuest(ctx context.Context, guest *GuestAccount) error
	FindGuest(ctx context.Context, guestID string) (*GuestAccount, error)
	// TryReserve atomically increments the guest's count when it is below
	// the ceiling, the guest is not converted and not expired at now.
	TryReserve(ctx context.Context, guestID string, now time.Time) (QuotaInfo, bool, error)
	Release(ctx context.Context, guestID string) error
	// AddVideo appends videoID to the owner's library; false when already present.
	AddVideo(ctx context.Context, owner Identity, videoID string) (bool, error)
	// AppendVideos appends the ids not yet present, keeping their order.
	AppendVideos(ctx context.Context, owner Identity, videoIDs []string) (int, error)
	RemoveVideo(ctx context.Context, owner Identity, videoID string) (bool, error)
	HasVideo(ctx context.Context, owner Identity, videoID string) (bool, error)
	ListVideoIDs(ctx context.Context, owner Identity) ([]string, error)
	// MarkConverted records the conversion once; false when already converted.
	MarkConverted(ctx context.Context, guestID, userID string) (bool, error)
}

// JobQueue publishes work for the processing worker.
type JobQueue interface {
	Publish(ctx context.Context, job Job) error
	PublishDeadLetter(ctx context.Context, letter DeadLetter) error
}

// JobHandler processes one delivery. A returned error asks the transport to
// redeliver the message.
type JobHandler func(ctx context.Context, job Job) error

// JobSource delivers jobs to a handler until ctx is done.
type JobSource interface {
	Consume(ctx context.Context, handler JobHandler) error
}

// ArtifactStore keeps immutable blobs. Put returns the reference stored in
// the catalog.
type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

type TranscriptProvider interface {
	Name() string
	FetchTranscript(ctx context.Context, sourceLink string) (string, error)
}

// InsightProvider returns the raw model output for a transcript.
type InsightProvider interface {
	Name() string
	CompleteInsights(ctx context.Context, transcript string) (string, error)
}

type MetadataProvider interface {
	FetchMetadata(ctx context.Context, videoID, sourceLink string) (VideoMetadata, error)
}

// TokenVerifier validates a bearer credential and returns the user id.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

type Metrics interface {
	SubmissionRecorded(outcome string)
	QuotaRejected(reason string)
	JobFinished(result string)
	StageObserved(stage string, d time.Duration, err error)
	ProviderCalled(kind, provider string, err error)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) SubmissionRecorded(string)                   {}
func (NopMetrics) QuotaRejected(string)                        {}
func (NopMetrics) JobFinished(string)                          {}
func (NopMetrics) StageObserved(string, time.Duration, error) {}
func (NopMetrics) ProviderCalled(string, string, error)        {}
