package infrastructure

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitovidale/video-insight-service/domain"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var videoColumnNames = []string{
	"video_id", "status", "owner_hint", "title", "thumbnail_url", "duration_seconds", "source_link",
	"transcript_ref", "insights_ref", "retry_count", "last_error", "last_failed_at", "created_at", "updated_at",
}

func videoRow(rows *sqlmock.Rows, id string, status domain.VideoStatus) *sqlmock.Rows {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var tRef, iRef any
	if status == domain.VideoStatusDone {
		tRef, iRef = "t/"+id, "i/"+id
	}
	return rows.AddRow(id, string(status), "user-1", "Title "+id, "", 60, "https://youtu.be/"+id,
		tRef, iRef, 0, nil, nil, now, now)
}

func TestPostgresVideoCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresVideoRepository(db)
	v := &domain.Video{ID: "abc", SourceLink: "https://youtu.be/abc", OwnerHint: "user-1", CreatedAt: time.Now()}

	mock.ExpectExec(q("INSERT INTO videos")).
		WithArgs("abc", "pending", "user-1", "", "", 0, "https://youtu.be/abc", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("ON CONFLICT (video_id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.Create(context.Background(), v)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Create(context.Background(), v)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestPostgresVideoFindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresVideoRepository(db)

	mock.ExpectQuery(q("FROM videos WHERE video_id = $1")).WithArgs("abc").
		WillReturnRows(videoRow(sqlmock.NewRows(videoColumnNames), "abc", domain.VideoStatusDone))
	mock.ExpectQuery(q("FROM videos WHERE video_id = $1")).WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	v, err := repo.FindByID(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStatusDone, v.Status)
	assert.True(t, v.Ready())
	assert.Nil(t, v.LastFailedAt)

	_, err = repo.FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresVideoFindByIDsKeepsRequestedOrder(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresVideoRepository(db)

	rows := sqlmock.NewRows(videoColumnNames)
	videoRow(rows, "b", domain.VideoStatusPending)
	videoRow(rows, "a", domain.VideoStatusDone)
	mock.ExpectQuery(q("WHERE video_id = ANY($1)")).WithArgs(sqlmock.AnyArg()).WillReturnRows(rows)

	videos, err := repo.FindByIDs(context.Background(), []string{"a", "missing", "b"})
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, "a", videos[0].ID)
	assert.Equal(t, "b", videos[1].ID)
}

func TestPostgresVideoTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("processing applies", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("UPDATE videos SET status = $2")).
			WithArgs("abc", "processing", sqlmock.AnyArg(), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, NewPostgresVideoRepository(db).MarkProcessing(ctx, "abc", 1))
	})

	t.Run("stale attempt is illegal", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("UPDATE videos SET status = $2")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(q("SELECT EXISTS")).WithArgs("abc").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		err := NewPostgresVideoRepository(db).MarkProcessing(ctx, "abc", 0)
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	})

	t.Run("unknown record", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("UPDATE videos SET status = $2")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(q("SELECT EXISTS")).WithArgs("abc").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		err := NewPostgresVideoRepository(db).MarkRetrying(ctx, "abc", 1, "boom", time.Now())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("retrying requires previous count", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("AND retry_count = $4 - 1")).
			WithArgs("abc", "retrying", sqlmock.AnyArg(), 2, "boom", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, NewPostgresVideoRepository(db).MarkRetrying(ctx, "abc", 2, "boom", time.Now()))
	})

	t.Run("release keeps the retry count", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("AND status = 'processing' AND retry_count = $4")).
			WithArgs("abc", "retrying", sqlmock.AnyArg(), 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, NewPostgresVideoRepository(db).Release(ctx, "abc", 3))
	})

	t.Run("done without refs never reaches the database", func(t *testing.T) {
		db, _ := newMockDB(t)
		err := NewPostgresVideoRepository(db).MarkDone(ctx, "abc", "t", "")
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	})

	t.Run("rearm race lost", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("transcript_ref = NULL")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(q("SELECT EXISTS")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		ok, err := NewPostgresVideoRepository(db).Rearm(ctx, "abc")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPostgresOwnershipTryReserve(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("reserved", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(q("UPDATE owners SET video_count = video_count + 1")).
			WithArgs("guest_1", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"video_count", "max_videos"}).AddRow(2, 3))
		info, ok, err := NewPostgresOwnershipRepository(db).TryReserve(ctx, "guest_1", now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, domain.NewQuotaInfo(2, 3), info)
	})

	t.Run("at ceiling", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(q("UPDATE owners SET video_count")).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(q("SELECT video_count, max_videos FROM owners")).WithArgs("guest_1").
			WillReturnRows(sqlmock.NewRows([]string{"video_count", "max_videos"}).AddRow(3, 3))
		info, ok, err := NewPostgresOwnershipRepository(db).TryReserve(ctx, "guest_1", now)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, info.LimitReached)
	})

	t.Run("unknown guest", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(q("UPDATE owners SET video_count")).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(q("SELECT video_count, max_videos FROM owners")).WillReturnError(sql.ErrNoRows)
		_, ok, err := NewPostgresOwnershipRepository(db).TryReserve(ctx, "guest_x", now)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPostgresOwnershipAppendVideosInOneTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	owner := domain.RegisteredIdentity("user-1")

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO owner_videos")).WithArgs("user-1", "a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO owner_videos")).WithArgs("user-1", "b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("INSERT INTO owner_videos")).WithArgs("user-1", "c").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	added, err := NewPostgresOwnershipRepository(db).AppendVideos(context.Background(), owner, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
}

func TestPostgresOwnershipMarkConverted(t *testing.T) {
	ctx := context.Background()
	guestCols := []string{"owner_id", "video_count", "max_videos", "converted_to", "is_active", "expires_at", "created_at"}

	t.Run("first conversion", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("converted_to IS NULL")).WithArgs("guest_1", "user-1").WillReturnResult(sqlmock.NewResult(0, 1))
		ok, err := NewPostgresOwnershipRepository(db).MarkConverted(ctx, "guest_1", "user-1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("already converted", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("converted_to IS NULL")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(q("FROM owners WHERE owner_id = $1 AND kind = 'guest'")).WithArgs("guest_1").
			WillReturnRows(sqlmock.NewRows(guestCols).AddRow("guest_1", 2, 3, "user-0", false, time.Now(), time.Now()))
		ok, err := NewPostgresOwnershipRepository(db).MarkConverted(ctx, "guest_1", "user-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown guest", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("converted_to IS NULL")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(q("FROM owners WHERE owner_id = $1")).WillReturnError(sql.ErrNoRows)
		_, err := NewPostgresOwnershipRepository(db).MarkConverted(ctx, "guest_x", "user-1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPostgresOwnershipListVideoIDsOrdersByPosition(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(q("ORDER BY position")).WithArgs("guest_1").
		WillReturnRows(sqlmock.NewRows([]string{"video_id"}).AddRow("x").AddRow("y"))

	ids, err := NewPostgresOwnershipRepository(db).ListVideoIDs(context.Background(), domain.GuestIdentity("guest_1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, ids)
}

func TestPostgresCallsAreBoundedByQueryTimeout(t *testing.T) {
	db, mock := newMockDB(t)
	videos := NewPostgresVideoRepository(db)
	videos.QueryTimeout = 20 * time.Millisecond
	owners := NewPostgresOwnershipRepository(db)
	owners.QueryTimeout = 20 * time.Millisecond

	mock.ExpectQuery(q("FROM videos WHERE video_id = $1")).WithArgs("abc").
		WillDelayFor(time.Minute).
		WillReturnRows(videoRow(sqlmock.NewRows(videoColumnNames), "abc", domain.VideoStatusDone))
	mock.ExpectQuery(q("SELECT video_id FROM owner_videos")).WithArgs("user-1").
		WillDelayFor(time.Minute).
		WillReturnRows(sqlmock.NewRows([]string{"video_id"}).AddRow("abc"))

	start := time.Now()
	_, err := videos.FindByID(context.Background(), "abc")
	assert.Error(t, err)
	_, err = owners.ListVideoIDs(context.Background(), domain.RegisteredIdentity("user-1"))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "a hung database must not hold the caller")
}

func TestBoundQueryKeepsEarlierDeadline(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	want, _ := parent.Deadline()

	ctx, release := boundQuery(parent, time.Hour)
	defer release()
	got, ok := ctx.Deadline()
	require.True(t, ok)
	assert.Equal(t, want, got)

	ctx, release = boundQuery(context.Background(), time.Second)
	defer release()
	_, ok = ctx.Deadline()
	assert.True(t, ok)
}
