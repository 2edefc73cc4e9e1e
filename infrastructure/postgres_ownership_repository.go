package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vitovidale/video-insight-service/domain"
)

// PostgresOwnershipRepository stores guest quota rows and per-owner
// libraries. Registered users have library rows only.
type PostgresOwnershipRepository struct {
	DB *sql.DB

	// QueryTimeout bounds every call; zero leaves the caller's deadline alone.
	QueryTimeout time.Duration
}

func NewPostgresOwnershipRepository(db *sql.DB) *PostgresOwnershipRepository {
	return &PostgresOwnershipRepository{DB: db, QueryTimeout: DefaultQueryTimeout}
}

func (r *PostgresOwnershipRepository) CreateGuest(ctx context.Context, g *domain.GuestAccount) error {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	query := `INSERT INTO owners (owner_id, kind, video_count, max_videos, is_active, expires_at, created_at)
		VALUES ($1, 'guest', $2, $3, $4, $5, $6)`
	if _, err := r.DB.ExecContext(ctx, query, g.ID, g.VideoCount, g.MaxVideos, g.IsActive, g.ExpiresAt, g.CreatedAt); err != nil {
		return fmt.Errorf("insert guest %s: %w", g.ID, err)
	}
	return nil
}

func (r *PostgresOwnershipRepository) FindGuest(ctx context.Context, guestID string) (*domain.GuestAccount, error) {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	query := `SELECT owner_id, video_count, max_videos, converted_to, is_active, expires_at, created_at
		FROM owners WHERE owner_id = $1 AND kind = 'guest'`
	var (
		g           domain.GuestAccount
		convertedTo sql.NullString
		expiresAt   sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, query, guestID).
		Scan(&g.ID, &g.VideoCount, &g.MaxVideos, &convertedTo, &g.IsActive, &expiresAt, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select guest %s: %w", guestID, err)
	}
	g.ConvertedTo = convertedTo.String
	if expiresAt.Valid {
		g.ExpiresAt = expiresAt.Time
	}
	return &g, nil
}

// TryReserve increments video_count in one statement so concurrent
// submissions can never push a guest past max_videos.
func (r *PostgresOwnershipRepository) TryReserve(ctx context.Context, guestID string, now time.Time) (domain.QuotaInfo, bool, error) {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	query := `UPDATE owners SET video_count = video_count + 1
		WHERE owner_id = $1 AND kind = 'guest' AND converted_to IS NULL AND is_active
			AND (expires_at IS NULL OR expires_at > $2) AND video_count < max_videos
		RETURNING video_count, max_videos`
	var count, max int
	err := r.DB.QueryRowContext(ctx, query, guestID, now).Scan(&count, &max)
	if err == nil {
		return domain.NewQuotaInfo(count, max), true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.QuotaInfo{}, false, fmt.Errorf("reserve quota for %s: %w", guestID, err)
	}

	err = r.DB.QueryRowContext(ctx, `SELECT video_count, max_videos FROM owners WHERE owner_id = $1 AND kind = 'guest'`, guestID).
		Scan(&count, &max)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuotaInfo{}, false, nil
	}
	if err != nil {
		return domain.QuotaInfo{}, false, fmt.Errorf("select quota for %s: %w", guestID, err)
	}
	return domain.NewQuotaInfo(count, max), false, nil
}

func (r *PostgresOwnershipRepository) Release(ctx context.Context, guestID string) error {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	res, err := r.DB.ExecContext(ctx,
		`UPDATE owners SET video_count = GREATEST(video_count - 1, 0) WHERE owner_id = $1 AND kind = 'guest'`, guestID)
	if err != nil {
		return fmt.Errorf("release quota for %s: %w", guestID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresOwnershipRepository) AddVideo(ctx context.Context, owner domain.Identity, videoID string) (bool, error) {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	return addLibraryVideo(ctx, r.DB, owner.ID, videoID)
}

// AppendVideos inserts in order inside one transaction so positions follow
// the caller's order.
func (r *PostgresOwnershipRepository) AppendVideos(ctx context.Context, owner domain.Identity, videoIDs []string) (int, error) {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	if len(videoIDs) == 0 {
		return 0, nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	added := 0
	for _, id := range videoIDs {
		ok, err := addLibraryVideo(ctx, tx, owner.ID, id)
		if err != nil {
			return 0, err
		}
		if ok {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return added, nil
}

func (r *PostgresOwnershipRepository) RemoveVideo(ctx context.Context, owner domain.Identity, videoID string) (bool, error) {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	res, err := r.DB.ExecContext(ctx, `DELETE FROM owner_videos WHERE owner_id = $1 AND video_id = $2`, owner.ID, videoID)
	if err != nil {
		return false, fmt.Errorf("delete library entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresOwnershipRepository) HasVideo(ctx context.Context, owner domain.Identity, videoID string) (bool, error) {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM owner_videos WHERE owner_id = $1 AND video_id = $2)`, owner.ID, videoID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check library entry: %w", err)
	}
	return exists, nil
}

func (r *PostgresOwnershipRepository) ListVideoIDs(ctx context.Context, owner domain.Identity) ([]string, error) {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	rows, err := r.DB.QueryContext(ctx, `SELECT video_id FROM owner_videos WHERE owner_id = $1 ORDER BY position`, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query library: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan library row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over library: %w", err)
	}
	return ids, nil
}

func (r *PostgresOwnershipRepository) MarkConverted(ctx context.Context, guestID, userID string) (bool, error) {
	ctx, cancel := boundQuery(ctx, r.QueryTimeout)
	defer cancel()
	res, err := r.DB.ExecContext(ctx,
		`UPDATE owners SET converted_to = $2, is_active = FALSE
		WHERE owner_id = $1 AND kind = 'guest' AND converted_to IS NULL`, guestID, userID)
	if err != nil {
		return false, fmt.Errorf("mark guest %s converted: %w", guestID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	if _, err := r.FindGuest(ctx, guestID); err != nil {
		return false, err
	}
	return false, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func addLibraryVideo(ctx context.Context, db execer, ownerID, videoID string) (bool, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO owner_videos (owner_id, video_id) VALUES ($1, $2) ON CONFLICT (owner_id, video_id) DO NOTHING`,
		ownerID, videoID)
	if err != nil {
		return false, fmt.Errorf("insert library entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
