package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/logger"
)

type LibraryOutput struct {
	Videos []domain.Video
	Quota  *domain.QuotaInfo
}

// ListLibraryUseCase returns the caller's videos in the order they were added.
type ListLibraryUseCase struct {
	Videos domain.VideoRepository
	Owners domain.OwnershipRepository
	Quota  *QuotaLedger
}

func NewListLibraryUseCase(videos domain.VideoRepository, owners domain.OwnershipRepository, quota *QuotaLedger) *ListLibraryUseCase {
	return &ListLibraryUseCase{Videos: videos, Owners: owners, Quota: quota}
}

func (uc *ListLibraryUseCase) Execute(ctx context.Context, caller domain.Identity) (*LibraryOutput, error) {
	if caller.IsZero() {
		return nil, domain.Wrap(domain.ErrUnauthenticated, "library", "list", "caller identity required", nil)
	}
	quota, err := uc.Quota.Remaining(ctx, caller)
	if err != nil {
		return nil, err
	}
	ids, err := uc.Owners.ListVideoIDs(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("list library of %s: %w", caller.ID, err)
	}
	videos, err := uc.Videos.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load library videos: %w", err)
	}
	return &LibraryOutput{Videos: videos, Quota: quota}, nil
}

type VideoDetailsOutput struct {
	Video    *domain.Video
	Insights *domain.Insights
}

// VideoDetailsUseCase returns one video of the caller's library together with
// its insights once processing is done.
type VideoDetailsUseCase struct {
	Videos    domain.VideoRepository
	Owners    domain.OwnershipRepository
	Artifacts domain.ArtifactStore

	log *logger.Logger
}

func NewVideoDetailsUseCase(videos domain.VideoRepository, owners domain.OwnershipRepository, artifacts domain.ArtifactStore, log *logger.Logger) *VideoDetailsUseCase {
	return &VideoDetailsUseCase{
		Videos:    videos,
		Owners:    owners,
		Artifacts: artifacts,
		log:       log.With("service", "VideoDetailsUseCase"),
	}
}

func (uc *VideoDetailsUseCase) Execute(ctx context.Context, caller domain.Identity, videoID string) (*VideoDetailsOutput, error) {
	if caller.IsZero() {
		return nil, domain.Wrap(domain.ErrUnauthenticated, "library", "details", "caller identity required", nil)
	}
	video, err := uc.Videos.FindByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Wrap(domain.ErrNotFound, "library", "details", "video "+videoID+" not found", nil)
		}
		return nil, fmt.Errorf("load video %s: %w", videoID, err)
	}
	owned, err := uc.Owners.HasVideo(ctx, caller, videoID)
	if err != nil {
		return nil, fmt.Errorf("check library of %s: %w", caller.ID, err)
	}
	if !owned {
		return nil, domain.Wrap(domain.ErrForbidden, "library", "details", "video is not in your library", nil)
	}

	out := &VideoDetailsOutput{Video: video}
	if !video.Ready() {
		return out, nil
	}
	body, err := uc.Artifacts.Get(ctx, video.InsightsRef)
	if err != nil {
		uc.log.Warn("insights artifact unavailable", "video_id", videoID, "ref", video.InsightsRef, "error", err)
		return out, nil
	}
	var insights domain.Insights
	if err := json.Unmarshal(body, &insights); err != nil {
		uc.log.Warn("insights artifact unreadable", "video_id", videoID, "ref", video.InsightsRef, "error", err)
		return out, nil
	}
	out.Insights = &insights
	return out, nil
}

// RemoveVideoUseCase drops a video from the caller's library only. The shared
// catalog record and guest quota are left untouched.
type RemoveVideoUseCase struct {
	Owners domain.OwnershipRepository

	log *logger.Logger
}

func NewRemoveVideoUseCase(owners domain.OwnershipRepository, log *logger.Logger) *RemoveVideoUseCase {
	return &RemoveVideoUseCase{Owners: owners, log: log.With("service", "RemoveVideoUseCase")}
}

func (uc *RemoveVideoUseCase) Execute(ctx context.Context, caller domain.Identity, videoID string) error {
	if caller.IsZero() {
		return domain.Wrap(domain.ErrUnauthenticated, "library", "remove", "caller identity required", nil)
	}
	removed, err := uc.Owners.RemoveVideo(ctx, caller, videoID)
	if err != nil {
		return fmt.Errorf("remove %s from library: %w", videoID, err)
	}
	if !removed {
		return domain.Wrap(domain.ErrNotFound, "library", "remove", "video "+videoID+" is not in your library", nil)
	}
	uc.log.Info("video removed from library", "video_id", videoID, "caller", caller.String())
	return nil
}
