package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/logger"
)

const artifactCachePrefix = "artifact:"

// CachedArtifactStore puts Redis in front of an ArtifactStore. Artifacts
// never change once written, so a cached body is always current. Redis
// errors only cost a trip to the backing store.
type CachedArtifactStore struct {
	next domain.ArtifactStore
	rdb  *redis.Client
	ttl  time.Duration
	log  *logger.Logger
}

// ConnectRedis parses url and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return rdb, nil
}

func NewCachedArtifactStore(next domain.ArtifactStore, rdb *redis.Client, ttl time.Duration, log *logger.Logger) *CachedArtifactStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedArtifactStore{next: next, rdb: rdb, ttl: ttl, log: log.With("service", "CachedArtifactStore")}
}

func (s *CachedArtifactStore) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	ref, err := s.next.Put(ctx, key, contentType, body)
	if err != nil {
		return "", err
	}
	s.store(ctx, ref, body)
	return ref, nil
}

func (s *CachedArtifactStore) Get(ctx context.Context, ref string) ([]byte, error) {
	body, err := s.rdb.Get(ctx, artifactCachePrefix+ref).Bytes()
	switch {
	case err == nil:
		return body, nil
	case !errors.Is(err, redis.Nil):
		s.log.Warn("artifact cache read failed", "ref", ref, "error", err)
	}
	body, err = s.next.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.store(ctx, ref, body)
	return body, nil
}

func (s *CachedArtifactStore) store(ctx context.Context, ref string, body []byte) {
	if err := s.rdb.Set(ctx, artifactCachePrefix+ref, body, s.ttl).Err(); err != nil {
		s.log.Warn("artifact cache write failed", "ref", ref, "error", err)
	}
}
