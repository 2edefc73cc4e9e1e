package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vitovidale/video-insight-service/domain"
)

const videoColumns = `video_id, status, owner_hint, title, thumbnail_url, duration_seconds, source_link,
	transcript_ref, insights_ref, retry_count, last_error, last_failed_at, created_at, updated_at`

// PostgresVideoRepository is the video catalog on Postgres. Status changes
// are single conditional UPDATEs guarded by the transition table.
type PostgresVideoRepository struct {
	DB *sql.DB

	// QueryTimeout bounds every call; zero leaves the caller's deadline alone.
	QueryTimeout time.Duration
}

func NewPostgresVideoRepository(db *sql.DB) *PostgresVideoRepository {
	return &PostgresVideoRepository{DB: db, QueryTimeout: DefaultQueryTimeout}
}

func (r *PostgresVideoRepository) Create(ctx context.Context, v *domain.Video) (bool, error) {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	query := `INSERT INTO videos (video_id, status, owner_hint, title, thumbnail_url, duration_seconds, source_link, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (video_id) DO NOTHING`
	res, err := r.DB.ExecContext(ctx, query,
		v.ID, domain.VideoStatusPending, v.OwnerHint, v.Title, v.ThumbnailURL, v.DurationSeconds, v.SourceLink, v.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert video: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert video: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (*domain.Video, error) {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	row := r.DB.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE video_id = $1`, id)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select video %s: %w", id, err)
	}
	return v, nil
}

func (r *PostgresVideoRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Video, error) {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	if len(ids) == 0 {
		return []domain.Video{}, nil
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE video_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Video, len(ids))
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video row: %w", err)
		}
		byID[v.ID] = *v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over videos: %w", err)
	}
	out := make([]domain.Video, 0, len(byID))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *PostgresVideoRepository) MarkProcessing(ctx context.Context, id string, retryCount int) error {
	return r.transition(ctx, id, domain.VideoStatusProcessing,
		`UPDATE videos SET status = $2, updated_at = NOW()
		WHERE video_id = $1 AND status = ANY($3) AND retry_count = $4`,
		retryCount)
}

func (r *PostgresVideoRepository) MarkDone(ctx context.Context, id, transcriptRef, insightsRef string) error {
	if transcriptRef == "" || insightsRef == "" {
		return domain.Wrap(domain.ErrIllegalTransition, "catalog", "mark done", "both artifact references are required", nil)
	}
	return r.transition(ctx, id, domain.VideoStatusDone,
		`UPDATE videos SET status = $2, transcript_ref = $4, insights_ref = $5,
			last_error = NULL, last_failed_at = NULL, updated_at = NOW()
		WHERE video_id = $1 AND status = ANY($3)`,
		transcriptRef, insightsRef)
}

func (r *PostgresVideoRepository) MarkRetrying(ctx context.Context, id string, retryCount int, lastError string, at time.Time) error {
	return r.transition(ctx, id, domain.VideoStatusRetrying,
		`UPDATE videos SET status = $2, retry_count = $4, last_error = $5, last_failed_at = $6, updated_at = NOW()
		WHERE video_id = $1 AND status = ANY($3) AND retry_count = $4 - 1`,
		retryCount, lastError, at)
}

func (r *PostgresVideoRepository) MarkFailedPermanent(ctx context.Context, id string, lastError string, at time.Time) error {
	return r.transition(ctx, id, domain.VideoStatusFailedPermanent,
		`UPDATE videos SET status = $2, last_error = $4, last_failed_at = $5, updated_at = NOW()
		WHERE video_id = $1 AND status = ANY($3)`,
		lastError, at)
}

func (r *PostgresVideoRepository) Release(ctx context.Context, id string, retryCount int) error {
	return r.transition(ctx, id, domain.VideoStatusRetrying,
		`UPDATE videos SET status = $2, updated_at = NOW()
		WHERE video_id = $1 AND status = ANY($3) AND status = 'processing' AND retry_count = $4`,
		retryCount)
}

func (r *PostgresVideoRepository) Rearm(ctx context.Context, id string) (bool, error) {
	err := r.transition(ctx, id, domain.VideoStatusPending,
		`UPDATE videos SET status = $2, retry_count = 0, last_error = NULL, last_failed_at = NULL,
			transcript_ref = NULL, insights_ref = NULL, updated_at = NOW()
		WHERE video_id = $1 AND status = ANY($3)`)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrIllegalTransition):
		return false, nil
	default:
		return false, err
	}
}

func (r *PostgresVideoRepository) FindStale(ctx context.Context, statuses []domain.VideoStatus, cutoff time.Time, limit int) ([]domain.Video, error) {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE status = ANY($1) AND updated_at < $2 ORDER BY updated_at LIMIT $3`,
		pq.Array(statusStrings(statuses)), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale videos: %w", err)
	}
	defer rows.Close()

	var videos []domain.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video row: %w", err)
		}
		videos = append(videos, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over stale videos: %w", err)
	}
	return videos, nil
}

func (r *PostgresVideoRepository) Touch(ctx context.Context, id string, status domain.VideoStatus) error {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	res, err := r.DB.ExecContext(ctx, `UPDATE videos SET updated_at = NOW() WHERE video_id = $1 AND status = $2`, id, status)
	if err != nil {
		return fmt.Errorf("touch video %s: %w", id, err)
	}
	return r.checkAffected(ctx, res, id)
}

// transition runs an UPDATE whose first three parameters are the video id,
// the target status and the statuses allowed to move into it.
func (r *PostgresVideoRepository) transition(ctx context.Context, id string, next domain.VideoStatus, query string, extra ...any) error {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	args := append([]any{id, next, pq.Array(statusStrings(domain.SourcesFor(next)))}, extra...)
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set video %s %s: %w", id, next, err)
	}
	return r.checkAffected(ctx, res, id)
}

// checkAffected tells a missing record apart from one whose state did not
// allow the update.
func (r *PostgresVideoRepository) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM videos WHERE video_id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check video %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrIllegalTransition
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*domain.Video, error) {
	var (
		v                                  domain.Video
		status                             string
		transcriptRef, insightsRef, errMsg sql.NullString
		lastFailedAt                       sql.NullTime
	)
	err := row.Scan(
		&v.ID, &status, &v.OwnerHint, &v.Title, &v.ThumbnailURL, &v.DurationSeconds, &v.SourceLink,
		&transcriptRef, &insightsRef, &v.RetryCount, &errMsg, &lastFailedAt, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if v.Status, err = domain.ParseVideoStatus(status); err != nil {
		return nil, err
	}
	v.TranscriptRef = transcriptRef.String
	v.InsightsRef = insightsRef.String
	v.LastError = errMsg.String
	if lastFailedAt.Valid {
		t := lastFailedAt.Time
		v.LastFailedAt = &t
	}
	return &v, nil
}

func statusStrings(statuses []domain.VideoStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
