package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/vitovidale/video-insight-service/config"
	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/infrastructure"
	"github.com/vitovidale/video-insight-service/infrastructure/memory"
	"github.com/vitovidale/video-insight-service/logger"
	"github.com/vitovidale/video-insight-service/usecase"
)

// jobBus is what the API publishes to and the worker consumes from.
type jobBus interface {
	domain.JobQueue
	domain.JobSource
}

type app struct {
	cfg *config.Config
	log *logger.Logger

	videos    domain.VideoRepository
	owners    domain.OwnershipRepository
	queue     jobBus
	artifacts domain.ArtifactStore
	metrics   *infrastructure.PrometheusMetrics
	health    map[string]infrastructure.HealthCheck

	processor *usecase.ProcessVideoUseCase
	reaper    *usecase.StaleJobReaper
	router    http.Handler

	closers []func() error
}

// buildApp opens every backing service named by cfg and assembles the use
// cases. The worker half is only built when withWorker is set.
func buildApp(ctx context.Context, cfg *config.Config, log *logger.Logger, withWorker bool) (_ *app, err error) {
	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: infrastructure.NewPrometheusMetrics(),
		health:  map[string]infrastructure.HealthCheck{},
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}
	if err := a.openQueue(ctx); err != nil {
		return nil, err
	}
	if err := a.openArtifacts(ctx); err != nil {
		return nil, err
	}

	verifier, err := infrastructure.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return nil, err
	}
	resolver := usecase.NewIdentityResolver(verifier)
	quota := usecase.NewQuotaLedger(a.owners, log)

	submit := usecase.NewSubmitVideoUseCase(a.videos, a.owners, quota, a.queue, a.metadataProvider(), a.metrics, log)
	submit.MaxDurationSeconds = cfg.Pipeline.MaxDurationSeconds

	videoHandlers := infrastructure.NewVideoHandlers(
		submit,
		usecase.NewListLibraryUseCase(a.videos, a.owners, quota),
		usecase.NewVideoDetailsUseCase(a.videos, a.owners, a.artifacts, log),
		usecase.NewRemoveVideoUseCase(a.owners, log),
		log,
	)
	guestHandlers := infrastructure.NewGuestHandlers(
		resolver,
		usecase.NewCreateGuestSessionUseCase(a.owners, cfg.Quota.GuestMaxVideos, cfg.Quota.GuestSessionTTL.Duration, log),
		usecase.NewConvertGuestUseCase(a.owners, log),
		log,
	)
	a.router = infrastructure.NewRouter(infrastructure.RouterConfig{
		Videos:         videoHandlers,
		Guests:         guestHandlers,
		Resolver:       resolver,
		Metrics:        a.metrics.Handler(),
		Health:         a.health,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Log:            log,
	})

	if withWorker {
		a.buildWorker()
	}
	return a, nil
}

func (a *app) openStorage(ctx context.Context) error {
	if a.cfg.Storage.Driver == config.DriverMemory {
		a.log.Warn("using in-memory storage, records are lost on exit")
		a.videos = memory.NewVideoRepository()
		a.owners = memory.NewOwnershipRepository()
		return nil
	}

	db, err := infrastructure.OpenPostgres(ctx, a.cfg.Postgres, a.log)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, db.Close)
	if a.cfg.Postgres.MigrateOnBoot {
		if err := infrastructure.Migrate(ctx, db); err != nil {
			return err
		}
	}
	videos := infrastructure.NewPostgresVideoRepository(db)
	videos.QueryTimeout = a.cfg.Postgres.QueryTimeout.Duration
	owners := infrastructure.NewPostgresOwnershipRepository(db)
	owners.QueryTimeout = a.cfg.Postgres.QueryTimeout.Duration
	a.videos, a.owners = videos, owners
	a.health["database"] = pingDB(db)
	return nil
}

func pingDB(db *sql.DB) infrastructure.HealthCheck {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}

func (a *app) openQueue(ctx context.Context) error {
	if a.cfg.Queue.Driver == config.DriverMemory {
		q := memory.NewQueue()
		a.queue = q
		a.closers = append(a.closers, func() error { q.Close(); return nil })
		return nil
	}

	conn, err := infrastructure.DialRabbitMQ(ctx, a.cfg.RabbitMQ, a.log)
	if err != nil {
		return err
	}
	q, err := infrastructure.NewRabbitMQQueue(conn, a.cfg.RabbitMQ.JobQueue, a.cfg.RabbitMQ.DeadLetter, a.log)
	if err != nil {
		_ = conn.Close()
		return err
	}
	a.queue = q
	a.closers = append(a.closers, q.Close)
	a.health["queue"] = func(context.Context) error { return q.Healthy() }
	return nil
}

func (a *app) openArtifacts(ctx context.Context) error {
	var store domain.ArtifactStore
	switch a.cfg.Artifacts.Driver {
	case config.DriverGCS:
		gcs, err := infrastructure.NewGCSArtifactStore(ctx, a.cfg.Artifacts.Bucket, a.cfg.Artifacts.CredentialsFile, a.log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, gcs.Close)
		store = gcs
	case config.DriverFS:
		fs, err := infrastructure.NewFSArtifactStore(a.cfg.Artifacts.Dir)
		if err != nil {
			return err
		}
		store = fs
	default:
		store = memory.NewArtifactStore()
	}

	if a.cfg.Redis.URL != "" {
		rdb, err := infrastructure.ConnectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rdb.Close)
		a.health["cache"] = pingRedis(rdb)
		store = infrastructure.NewCachedArtifactStore(store, rdb, a.cfg.Redis.CacheTTL.Duration, a.log)
	}
	a.artifacts = store
	return nil
}

func pingRedis(rdb *redis.Client) infrastructure.HealthCheck {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}

// metadataProvider returns nil when lookups are disabled so submissions fall
// back to placeholder metadata.
func (a *app) metadataProvider() domain.MetadataProvider {
	if !a.cfg.Metadata.Enabled || a.cfg.Metadata.OEmbedURL == "" {
		return nil
	}
	return infrastructure.NewOEmbedMetadataProvider(a.cfg.Metadata.OEmbedURL, a.cfg.Metadata.Timeout.Duration)
}

func (a *app) buildWorker() {
	cfg := a.cfg

	transcripts := make([]domain.TranscriptProvider, 0, len(cfg.Transcript.APIKeys))
	for i, key := range cfg.Transcript.APIKeys {
		transcripts = append(transcripts, infrastructure.NewSupadataClient(infrastructure.SupadataConfig{
			Name:              fmt.Sprintf("supadata#%d", i+1),
			BaseURL:           cfg.Transcript.BaseURL,
			APIKey:            key,
			Lang:              cfg.Transcript.Lang,
			PollInterval:      cfg.Transcript.PollInterval.Duration,
			MaxPolls:          cfg.Transcript.MaxPolls,
			Timeout:           cfg.Transcript.Timeout.Duration,
			RequestsPerSecond: cfg.Transcript.RequestsPerSecond,
		}))
	}
	insights := make([]domain.InsightProvider, 0, len(cfg.LLM.APIKeys))
	for i, key := range cfg.LLM.APIKeys {
		insights = append(insights, infrastructure.NewChatCompletionClient(infrastructure.ChatConfig{
			Name:              fmt.Sprintf("llm#%d", i+1),
			BaseURL:           cfg.LLM.BaseURL,
			APIKey:            key,
			Model:             cfg.LLM.Model,
			Timeout:           cfg.LLM.Timeout.Duration,
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		}))
	}

	a.processor = usecase.NewProcessVideoUseCase(
		a.videos,
		a.owners,
		a.queue,
		a.artifacts,
		usecase.NewTranscriptChain(a.log, a.metrics, transcripts...),
		usecase.NewInsightChain(a.log, a.metrics, insights...),
		a.metrics,
		a.log,
	)
	a.processor.MaxRetries = cfg.Pipeline.MaxRetries
	a.processor.Timeouts = usecase.StageTimeouts{
		Catalog:    cfg.Worker.CatalogTimeout.Duration,
		Transcript: cfg.Worker.TranscriptTimeout.Duration,
		Insights:   cfg.Worker.InsightsTimeout.Duration,
		Storage:    cfg.Worker.StorageTimeout.Duration,
	}
	a.processor.DrainTimeout = cfg.Worker.DrainTimeout.Duration
	a.reaper = usecase.NewStaleJobReaper(a.videos, a.queue, a.processor, cfg.Worker.StaleAfter.Duration, a.log)
	a.reaper.SweepTimeout = cfg.Worker.ReapInterval.Duration
}

// Run serves until ctx is cancelled or one component fails.
func (a *app) Run(ctx context.Context, withAPI, withWorker bool) error {
	g, ctx := errgroup.WithContext(ctx)

	if withAPI {
		srv := &http.Server{
			Addr:              ":" + a.cfg.HTTP.Port,
			Handler:           a.router,
			ReadHeaderTimeout: a.cfg.HTTP.ReadTimeout.Duration,
		}
		g.Go(func() error {
			a.log.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout.Duration)
			defer cancel()
			a.log.Info("http server shutting down")
			return srv.Shutdown(shutdownCtx)
		})
	}

	if withWorker && a.processor != nil {
		for i := 0; i < a.cfg.Worker.Concurrency; i++ {
			consumer := i + 1
			g.Go(func() error {
				a.log.Info("worker consuming", "consumer", consumer)
				err := a.queue.Consume(ctx, a.processor.Execute)
				if ctx.Err() != nil {
					return nil
				}
				if err == nil {
					err = errors.New("delivery stream closed")
				}
				return fmt.Errorf("consumer %d stopped: %w", consumer, err)
			})
		}
		g.Go(func() error {
			return a.reaper.Run(ctx, a.cfg.Worker.ReapInterval.Duration)
		})
	}

	err := g.Wait()
	a.log.Info("insightd stopped")
	return err
}

// Close releases backing connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
