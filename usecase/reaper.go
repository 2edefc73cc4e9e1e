package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/logger"
)

const stalledMessage = "processing stalled"

// StaleJobReaper recovers records whose job was lost: a crashed worker leaves
// a record in processing, a failed publish leaves it pending or retrying
// without a message on the queue.
type StaleJobReaper struct {
	Videos     domain.VideoRepository
	Queue      domain.JobQueue
	Processor  *ProcessVideoUseCase
	StaleAfter time.Duration
	BatchSize  int

	// SweepTimeout bounds one sweep so a hung catalog cannot stall the loop.
	SweepTimeout time.Duration

	log *logger.Logger
	now func() time.Time
}

func NewStaleJobReaper(videos domain.VideoRepository, queue domain.JobQueue, processor *ProcessVideoUseCase, staleAfter time.Duration, log *logger.Logger) *StaleJobReaper {
	return &StaleJobReaper{
		Videos:       videos,
		Queue:        queue,
		Processor:    processor,
		StaleAfter:   staleAfter,
		BatchSize:    100,
		SweepTimeout: time.Minute,
		log:          log.With("service", "StaleJobReaper"),
		now:          time.Now,
	}
}

// Run sweeps every interval until ctx is done.
func (r *StaleJobReaper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("stale job sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep handles one batch of stale records and returns how many it touched.
func (r *StaleJobReaper) Sweep(ctx context.Context) (int, error) {
	if r.SweepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.SweepTimeout)
		defer cancel()
	}
	cutoff := r.now().Add(-r.StaleAfter)
	touched := 0

	stalled, err := r.Videos.FindStale(ctx, []domain.VideoStatus{domain.VideoStatusProcessing}, cutoff, r.BatchSize)
	if err != nil {
		return touched, err
	}
	for _, v := range stalled {
		job := jobFor(v)
		if err := r.Processor.HandleFailure(ctx, job, errors.New(stalledMessage)); err != nil {
			r.log.Error("could not fail stalled record", "video_id", v.ID, "error", err)
			continue
		}
		r.log.Warn("stalled record failed over", "video_id", v.ID, "retry_count", v.RetryCount)
		touched++
	}

	waiting, err := r.Videos.FindStale(ctx, []domain.VideoStatus{domain.VideoStatusPending, domain.VideoStatusRetrying}, cutoff, r.BatchSize)
	if err != nil {
		return touched, err
	}
	for _, v := range waiting {
		// Touch first so the next sweep does not republish while this job waits.
		if err := r.Videos.Touch(ctx, v.ID, v.Status); err != nil {
			if !errors.Is(err, domain.ErrIllegalTransition) {
				r.log.Error("could not touch waiting record", "video_id", v.ID, "error", err)
			}
			continue
		}
		if err := r.Queue.Publish(ctx, jobFor(v)); err != nil {
			r.log.Error("could not republish job", "video_id", v.ID, "error", err)
			continue
		}
		r.log.Info("job republished", "video_id", v.ID, "status", v.Status, "retry_count", v.RetryCount)
		touched++
	}
	return touched, nil
}

func jobFor(v domain.Video) domain.Job {
	return domain.Job{
		VideoID:    v.ID,
		SourceLink: v.SourceLink,
		OwnerHint:  v.OwnerHint,
		RetryCount: v.RetryCount,
	}
}
