package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/infrastructure/memory"
	"github.com/vitovidale/video-insight-service/logger"
)

func TestFSArtifactStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSArtifactStore(t.TempDir())
	require.NoError(t, err)

	key := domain.TranscriptKey("abc", time.UnixMilli(1700000000000))
	ref, err := store.Put(ctx, key, domain.ContentTypeJSON, []byte(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, "file://"+key, ref)

	body, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(body))

	_, err = store.Get(ctx, "file://insights/missing.json")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.Put(ctx, "../escape.json", domain.ContentTypeJSON, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = store.Get(ctx, "gs://bucket/key")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestParseGCSRef(t *testing.T) {
	bucket, key, err := parseGCSRef("gs://insights-bucket/transcripts/transcription-abc-1.json")
	require.NoError(t, err)
	assert.Equal(t, "insights-bucket", bucket)
	assert.Equal(t, "transcripts/transcription-abc-1.json", key)

	for _, bad := range []string{"", "memory://x", "gs://", "gs://bucket", "gs://bucket/"} {
		_, _, err := parseGCSRef(bad)
		assert.ErrorIs(t, err, domain.ErrValidation, bad)
	}
}

func TestCachedArtifactStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb, err := ConnectRedis(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer rdb.Close()

	backing := memory.NewArtifactStore()
	cache := NewCachedArtifactStore(backing, rdb, time.Minute, logger.NewNop())

	ref, err := cache.Put(ctx, "insights/insights-abc-1.json", domain.ContentTypeJSON, []byte(`{"tags":[]}`))
	require.NoError(t, err)
	assert.True(t, mr.Exists(artifactCachePrefix+ref))

	body, err := cache.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, `{"tags":[]}`, string(body))

	// A body written before the cache existed is filled on first read.
	older, err := backing.Put(ctx, "transcripts/t.json", domain.ContentTypeJSON, []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, mr.Exists(artifactCachePrefix+older))
	_, err = cache.Get(ctx, older)
	require.NoError(t, err)
	assert.True(t, mr.Exists(artifactCachePrefix+older))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(artifactCachePrefix+older))

	_, err = cache.Get(ctx, "memory://nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCachedArtifactStoreSurvivesRedisOutage(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb, err := ConnectRedis(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer rdb.Close()

	backing := memory.NewArtifactStore()
	ref, err := backing.Put(ctx, "k", domain.ContentTypeJSON, []byte("body"))
	require.NoError(t, err)

	mr.Close()
	body, err := NewCachedArtifactStore(backing, rdb, time.Minute, logger.NewNop()).Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "body", string(body))
}
