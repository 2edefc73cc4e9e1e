package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/logger"
)

type SubmitOutcome string

const (
	OutcomeQueued        SubmitOutcome = "queued"
	OutcomeAlreadyReady  SubmitOutcome = "already_ready"
	OutcomeAddedExisting SubmitOutcome = "added_existing"
	OutcomeInProgress    SubmitOutcome = "in_progress"
	OutcomeRetrying      SubmitOutcome = "retrying"
)

type SubmitVideoInput struct {
	Caller     domain.Identity
	SourceLink string
}

type SubmitVideoOutput struct {
	Outcome SubmitOutcome
	VideoID string
	Status  domain.VideoStatus
	Message string
	Quota   *domain.QuotaInfo
}

// SubmitVideoUseCase validates a link, charges guest quota, deduplicates
// against the catalog and enqueues work when the video needs processing.
type SubmitVideoUseCase struct {
	Videos             domain.VideoRepository
	Owners             domain.OwnershipRepository
	Quota              *QuotaLedger
	Queue              domain.JobQueue
	Metadata           domain.MetadataProvider
	Metrics            domain.Metrics
	MaxDurationSeconds int

	log *logger.Logger
	now func() time.Time
}

func NewSubmitVideoUseCase(
	videos domain.VideoRepository,
	owners domain.OwnershipRepository,
	quota *QuotaLedger,
	queue domain.JobQueue,
	metadata domain.MetadataProvider,
	metrics domain.Metrics,
	log *logger.Logger,
) *SubmitVideoUseCase {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &SubmitVideoUseCase{
		Videos:   videos,
		Owners:   owners,
		Quota:    quota,
		Queue:    queue,
		Metadata: metadata,
		Metrics:  metrics,
		log:      log.With("service", "SubmitVideoUseCase"),
		now:      time.Now,
	}
}

func (uc *SubmitVideoUseCase) Execute(ctx context.Context, input SubmitVideoInput) (*SubmitVideoOutput, error) {
	if input.Caller.IsZero() {
		return nil, domain.Wrap(domain.ErrUnauthenticated, "submit", "", "caller identity required", nil)
	}
	link := strings.TrimSpace(input.SourceLink)
	videoID, err := domain.ExtractVideoID(link)
	if err != nil {
		uc.Metrics.SubmissionRecorded("invalid")
		return nil, err
	}

	quota, err := uc.Quota.TryReserve(ctx, input.Caller)
	if err != nil {
		var quotaErr *domain.QuotaError
		if errors.As(err, &quotaErr) {
			uc.Metrics.QuotaRejected(quotaReason(quotaErr))
		}
		return nil, err
	}

	out, added, err := uc.route(ctx, input.Caller, videoID, link)
	if quota != nil && !added {
		uc.Quota.Release(ctx, input.Caller)
		refunded := domain.NewQuotaInfo(quota.VideoCount-1, quota.MaxVideos)
		quota = &refunded
	}
	if err != nil {
		uc.Metrics.SubmissionRecorded("error")
		return nil, err
	}
	out.VideoID = videoID
	out.Quota = quota
	uc.Metrics.SubmissionRecorded(string(out.Outcome))
	uc.log.Info("submission handled",
		"video_id", videoID,
		"caller", input.Caller.String(),
		"outcome", out.Outcome,
		"status", out.Status,
	)
	return out, nil
}

// route reports whether the caller's library gained the video, which is what
// a guest reservation pays for.
func (uc *SubmitVideoUseCase) route(ctx context.Context, caller domain.Identity, videoID, link string) (*SubmitVideoOutput, bool, error) {
	video, err := uc.Videos.FindByID(ctx, videoID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return uc.createAndEnqueue(ctx, caller, videoID, link)
	case err != nil:
		return nil, false, fmt.Errorf("look up video %s: %w", videoID, err)
	}
	return uc.handleExisting(ctx, caller, video, link)
}

func (uc *SubmitVideoUseCase) createAndEnqueue(ctx context.Context, caller domain.Identity, videoID, link string) (*SubmitVideoOutput, bool, error) {
	meta, err := uc.fetchMetadata(ctx, videoID, link)
	if err != nil {
		return nil, false, err
	}
	video := &domain.Video{
		ID:              videoID,
		Status:          domain.VideoStatusPending,
		OwnerHint:       caller.ID,
		Title:           meta.Title,
		ThumbnailURL:    meta.ThumbnailURL,
		DurationSeconds: meta.DurationSeconds,
		SourceLink:      link,
		CreatedAt:       uc.now().UTC(),
	}
	created, err := uc.Videos.Create(ctx, video)
	if err != nil {
		return nil, false, fmt.Errorf("create video %s: %w", videoID, err)
	}
	if !created {
		// Another submission created the record first.
		existing, err := uc.Videos.FindByID(ctx, videoID)
		if err != nil {
			return nil, false, fmt.Errorf("look up video %s: %w", videoID, err)
		}
		return uc.handleExisting(ctx, caller, existing, link)
	}

	added, err := uc.Owners.AddVideo(ctx, caller, videoID)
	if err != nil {
		return nil, false, fmt.Errorf("add %s to library: %w", videoID, err)
	}
	job := domain.Job{VideoID: videoID, SourceLink: link, OwnerHint: caller.ID}
	if err := uc.Queue.Publish(ctx, job); err != nil {
		// The pending record stays; the stale job reaper republishes it.
		return nil, added, domain.Wrap(domain.ErrTransient, "submit", "enqueue", "could not enqueue video "+videoID, err)
	}
	return &SubmitVideoOutput{
		Outcome: OutcomeQueued,
		Status:  domain.VideoStatusPending,
		Message: "Video queued for processing",
	}, added, nil
}

func (uc *SubmitVideoUseCase) handleExisting(ctx context.Context, caller domain.Identity, video *domain.Video, link string) (*SubmitVideoOutput, bool, error) {
	switch {
	case video.Status == domain.VideoStatusDone:
		added, err := uc.Owners.AddVideo(ctx, caller, video.ID)
		if err != nil {
			return nil, false, fmt.Errorf("add %s to library: %w", video.ID, err)
		}
		if !added {
			return &SubmitVideoOutput{
				Outcome: OutcomeAlreadyReady,
				Status:  video.Status,
				Message: "Video already in your library and ready",
			}, false, nil
		}
		return &SubmitVideoOutput{
			Outcome: OutcomeAddedExisting,
			Status:  video.Status,
			Message: "Video added to your library",
		}, true, nil

	case video.Status.Failed():
		rearmed, err := uc.Videos.Rearm(ctx, video.ID)
		if err != nil {
			return nil, false, fmt.Errorf("re-arm video %s: %w", video.ID, err)
		}
		added, err := uc.Owners.AddVideo(ctx, caller, video.ID)
		if err != nil {
			return nil, false, fmt.Errorf("add %s to library: %w", video.ID, err)
		}
		if !rearmed {
			return uc.inProgress(ctx, video.ID, added)
		}
		job := domain.Job{VideoID: video.ID, SourceLink: link, OwnerHint: caller.ID}
		if err := uc.Queue.Publish(ctx, job); err != nil {
			return nil, added, domain.Wrap(domain.ErrTransient, "submit", "enqueue", "could not enqueue video "+video.ID, err)
		}
		return &SubmitVideoOutput{
			Outcome: OutcomeRetrying,
			Status:  domain.VideoStatusPending,
			Message: "Previous processing failed, retrying",
		}, added, nil

	default:
		added, err := uc.Owners.AddVideo(ctx, caller, video.ID)
		if err != nil {
			return nil, false, fmt.Errorf("add %s to library: %w", video.ID, err)
		}
		return &SubmitVideoOutput{
			Outcome: OutcomeInProgress,
			Status:  video.Status,
			Message: "Video is currently being processed",
		}, added, nil
	}
}

func (uc *SubmitVideoUseCase) inProgress(ctx context.Context, videoID string, added bool) (*SubmitVideoOutput, bool, error) {
	current, err := uc.Videos.FindByID(ctx, videoID)
	if err != nil {
		return nil, added, fmt.Errorf("look up video %s: %w", videoID, err)
	}
	return &SubmitVideoOutput{
		Outcome: OutcomeInProgress,
		Status:  current.Status,
		Message: "Video is currently being processed",
	}, added, nil
}

func (uc *SubmitVideoUseCase) fetchMetadata(ctx context.Context, videoID, link string) (domain.VideoMetadata, error) {
	if uc.Metadata == nil {
		return domain.VideoMetadata{}, nil
	}
	meta, err := uc.Metadata.FetchMetadata(ctx, videoID, link)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return domain.VideoMetadata{}, err
		}
		uc.log.Warn("metadata lookup failed, continuing without it", "video_id", videoID, "error", err)
		return domain.VideoMetadata{}, nil
	}
	if uc.MaxDurationSeconds > 0 && meta.DurationSeconds > uc.MaxDurationSeconds {
		return domain.VideoMetadata{}, domain.Wrap(domain.ErrValidation, "submit", "metadata",
			fmt.Sprintf("video is %ds long, the maximum is %ds", meta.DurationSeconds, uc.MaxDurationSeconds), nil)
	}
	return meta, nil
}

func quotaReason(err *domain.QuotaError) string {
	switch {
	case errors.Is(err.Reason, domain.ErrGuestConverted):
		return "converted"
	case errors.Is(err.Reason, domain.ErrGuestExpired):
		return "expired"
	default:
		return "exceeded"
	}
}
