package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/logger"
)

// StageTimeouts bounds every step of one processing attempt. Zero disables
// the bound for that step.
type StageTimeouts struct {
	Catalog    time.Duration
	Transcript time.Duration
	Insights   time.Duration
	Storage    time.Duration
}

// ProcessVideoUseCase runs one job: transcript, insights, normalization and
// persistence, then records success, a retry, or a dead letter.
type ProcessVideoUseCase struct {
	Videos      domain.VideoRepository
	Owners      domain.OwnershipRepository
	Queue       domain.JobQueue
	Artifacts   domain.ArtifactStore
	Transcripts domain.TranscriptProvider
	Insights    domain.InsightProvider
	Metrics     domain.Metrics
	MaxRetries  int
	Timeouts    StageTimeouts

	// DrainTimeout is how long an attempt may keep running after shutdown
	// starts. An attempt still running then is handed back to the queue.
	DrainTimeout time.Duration

	log *logger.Logger
	now func() time.Time
}

func NewProcessVideoUseCase(
	videos domain.VideoRepository,
	owners domain.OwnershipRepository,
	queue domain.JobQueue,
	artifacts domain.ArtifactStore,
	transcripts domain.TranscriptProvider,
	insights domain.InsightProvider,
	metrics domain.Metrics,
	log *logger.Logger,
) *ProcessVideoUseCase {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &ProcessVideoUseCase{
		Videos:      videos,
		Owners:      owners,
		Queue:       queue,
		Artifacts:   artifacts,
		Transcripts: transcripts,
		Insights:    insights,
		Metrics:     metrics,
		MaxRetries:  domain.DefaultMaxRetries,
		log:         log.With("service", "ProcessVideoUseCase"),
		now:         time.Now,
	}
}

// Execute handles one delivery. A nil return means the delivery can be
// acknowledged; an error means the outcome could not be recorded and the
// message should be redelivered.
func (uc *ProcessVideoUseCase) Execute(ctx context.Context, job domain.Job) error {
	log := uc.log.With("video_id", job.VideoID, "retry_count", job.RetryCount)
	if err := job.Validate(); err != nil {
		log.Error("dropping malformed job", "error", err)
		uc.Metrics.JobFinished("dropped")
		return nil
	}

	jobCtx, stopJob := uc.drainContext(ctx)
	defer stopJob()

	err := uc.stage(jobCtx, "mark_processing", uc.Timeouts.Catalog, func(ctx context.Context) error {
		return uc.Videos.MarkProcessing(ctx, job.VideoID, job.RetryCount)
	})
	if err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) || errors.Is(err, domain.ErrNotFound) {
			log.Warn("skipping job that does not match the catalog", "error", err)
			uc.Metrics.JobFinished("skipped")
			return nil
		}
		return fmt.Errorf("mark %s processing: %w", job.VideoID, err)
	}
	log.Info("processing started")

	if err := uc.run(jobCtx, job, log); err != nil {
		if jobCtx.Err() != nil {
			return uc.release(ctx, job, log, err)
		}
		return uc.HandleFailure(jobCtx, job, err)
	}
	uc.Metrics.JobFinished("done")
	log.Info("processing finished")
	return nil
}

// drainContext detaches the attempt from ctx. Once ctx is done the attempt
// gets DrainTimeout more before it is cancelled too.
func (uc *ProcessVideoUseCase) drainContext(ctx context.Context) (context.Context, context.CancelFunc) {
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() {
		if uc.DrainTimeout <= 0 {
			cancel()
			return
		}
		timer := time.AfterFunc(uc.DrainTimeout, cancel)
		context.AfterFunc(jobCtx, func() { timer.Stop() })
	})
	return jobCtx, func() {
		stop()
		cancel()
	}
}

// release hands an attempt cut short by shutdown back to the queue without
// charging a retry. The returned error asks the transport to redeliver.
func (uc *ProcessVideoUseCase) release(ctx context.Context, job domain.Job, log *logger.Logger, cause error) error {
	err := uc.stage(context.WithoutCancel(ctx), "release", uc.Timeouts.Catalog, func(ctx context.Context) error {
		return uc.Videos.Release(ctx, job.VideoID, job.RetryCount)
	})
	if err != nil {
		log.Error("could not release interrupted attempt, the stale job reaper will recover it", "error", err)
	}
	uc.Metrics.JobFinished("interrupted")
	log.Warn("attempt interrupted by shutdown, job handed back", "cause", cause)
	return domain.Wrap(domain.ErrTransient, "process", "shutdown", "attempt interrupted by shutdown", cause)
}

func (uc *ProcessVideoUseCase) run(ctx context.Context, job domain.Job, log *logger.Logger) error {
	var transcript string
	err := uc.stage(ctx, "transcript", uc.Timeouts.Transcript, func(ctx context.Context) error {
		text, err := uc.Transcripts.FetchTranscript(ctx, job.SourceLink)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return domain.Wrap(domain.ErrEmptyTranscript, "transcript", "", "provider returned no text", nil)
		}
		transcript = text
		return nil
	})
	if err != nil {
		return fmt.Errorf("transcript: %w", err)
	}
	log.Debug("transcript acquired", "chars", len(transcript))

	var insights domain.Insights
	err = uc.stage(ctx, "insights", uc.Timeouts.Insights, func(ctx context.Context) error {
		raw, err := uc.Insights.CompleteInsights(ctx, transcript)
		if err != nil {
			return err
		}
		payload, err := domain.ParseInsightsPayload(raw)
		if err != nil {
			return err
		}
		insights = domain.NormalizeInsights(payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("insights: %w", err)
	}

	var transcriptRef, insightsRef string
	err = uc.stage(ctx, "persist", uc.Timeouts.Storage, func(ctx context.Context) error {
		at := uc.now().UTC()
		var err error
		transcriptRef, err = uc.putJSON(ctx, domain.TranscriptKey(job.VideoID, at), domain.NewTranscriptDocument(transcript))
		if err != nil {
			return fmt.Errorf("store transcript: %w", err)
		}
		insightsRef, err = uc.putJSON(ctx, domain.InsightsKey(job.VideoID, at), insights)
		if err != nil {
			return fmt.Errorf("store insights: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	err = uc.stage(ctx, "mark_done", uc.Timeouts.Catalog, func(ctx context.Context) error {
		return uc.Videos.MarkDone(ctx, job.VideoID, transcriptRef, insightsRef)
	})
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}

	// The record is done; a library write failure must not turn it back
	// into a failed attempt.
	err = uc.stage(context.WithoutCancel(ctx), "add_owner", uc.Timeouts.Catalog, func(ctx context.Context) error {
		_, err := uc.Owners.AddVideo(ctx, job.Owner(), job.VideoID)
		return err
	})
	if err != nil {
		log.Error("could not add finished video to owner library", "owner", job.OwnerHint, "error", err)
	}
	return nil
}

// HandleFailure records a failed attempt: the job is re-enqueued with an
// incremented retry_count until MaxRetries is reached, after which the record
// becomes failed_permanent and a dead letter is published.
func (uc *ProcessVideoUseCase) HandleFailure(ctx context.Context, job domain.Job, cause error) error {
	// Bookkeeping must happen even when the attempt was cut short by shutdown.
	ctx = context.WithoutCancel(ctx)
	log := uc.log.With("video_id", job.VideoID, "retry_count", job.RetryCount)
	msg := cause.Error()
	now := uc.now().UTC()

	if job.RetryCount < uc.MaxRetries {
		next := job.Next()
		err := uc.stage(ctx, "mark_retrying", uc.Timeouts.Catalog, func(ctx context.Context) error {
			return uc.Videos.MarkRetrying(ctx, job.VideoID, next.RetryCount, msg, now)
		})
		if err != nil {
			if errors.Is(err, domain.ErrIllegalTransition) || errors.Is(err, domain.ErrNotFound) {
				log.Warn("record moved on before the failure was recorded", "error", err)
				uc.Metrics.JobFinished("skipped")
				return nil
			}
			return fmt.Errorf("mark %s retrying: %w", job.VideoID, err)
		}
		if err := uc.Queue.Publish(ctx, next); err != nil {
			log.Error("re-enqueue failed, the stale job reaper will republish", "error", err)
		}
		uc.Metrics.JobFinished("retrying")
		log.Warn("processing failed, retry scheduled", "next_retry_count", next.RetryCount, "error", msg)
		return nil
	}

	err := uc.stage(ctx, "mark_failed", uc.Timeouts.Catalog, func(ctx context.Context) error {
		return uc.Videos.MarkFailedPermanent(ctx, job.VideoID, msg, now)
	})
	if err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) || errors.Is(err, domain.ErrNotFound) {
			log.Warn("record moved on before the failure was recorded", "error", err)
			uc.Metrics.JobFinished("skipped")
			return nil
		}
		return fmt.Errorf("mark %s failed: %w", job.VideoID, err)
	}
	letter := domain.DeadLetter{
		Job:         job,
		FinalStatus: domain.VideoStatusFailedPermanent,
		Error:       msg,
		FailedAt:    now,
	}
	if err := uc.Queue.PublishDeadLetter(ctx, letter); err != nil {
		log.Error("dead letter publish failed", "error", err)
	}
	uc.Metrics.JobFinished("failed_permanent")
	log.Error("processing failed permanently", "error", msg)
	return nil
}

func (uc *ProcessVideoUseCase) stage(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	uc.Metrics.StageObserved(name, time.Since(start), err)
	return err
}

func (uc *ProcessVideoUseCase) putJSON(ctx context.Context, key string, doc any) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", key, err)
	}
	return uc.Artifacts.Put(ctx, key, domain.ContentTypeJSON, body)
}
