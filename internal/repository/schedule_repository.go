package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"postpilot/internal/models"
)

// ScheduleRepository is the single source of truth for scheduled posts.
// Claim is the one concurrency primitive the publisher depends on: an
// atomic pending -> processing transition that exactly one caller wins.
type ScheduleRepository interface {
	Insert(ctx context.Context, post *models.ScheduledPost) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error)
	GetDue(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error)
	Claim(ctx context.Context, id int64) (bool, error)
	MarkPosted(ctx context.Context, id int64, postedAt time.Time) error
	MarkFailed(ctx context.Context, id int64, errorDetail string) error
	Reschedule(ctx context.Context, id int64, newTime time.Time) error
	Retry(ctx context.Context, id int64, newTime time.Time) error
	Cancel(ctx context.Context, id int64) error
	ListByStatus(ctx context.Context, status string) ([]*models.ScheduledPost, error)
	LastScheduledTime(ctx context.Context, accountRef string) (*time.Time, error)
}

type scheduleRepository struct {
	db *sql.DB
}

func NewScheduleRepository(db *sql.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

const postColumns = `id, platform, account_ref, media_ref, caption, scheduled_time, status, posted_at, error_detail, created_at, updated_at`

func (r *scheduleRepository) Insert(ctx context.Context, post *models.ScheduledPost) (int64, error) {
	if err := post.Validate(); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO schedule (platform, account_ref, media_ref, caption, scheduled_time, status)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		post.Platform, post.AccountRef, post.MediaRef, post.Caption,
		post.ScheduledTime, models.PostStatusPending,
	).Scan(&id)
	if err != nil {
		slog.Error(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *scheduleRepository) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM schedule WHERE id = $1`
	return scanPost(r.db.QueryRowContext(ctx, query, id))
}

// GetDue returns pending posts whose scheduled time has passed, oldest
// first so the backlog drains in submission order.
func (r *scheduleRepository) GetDue(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error) {
	query := `
		SELECT ` + postColumns + `
		FROM schedule
		WHERE status = $1 AND scheduled_time <= $2
		ORDER BY scheduled_time ASC
	`
	rows, err := r.db.QueryContext(ctx, query, models.PostStatusPending, now)
	if err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	defer rows.Close()

	return scanPosts(rows)
}

// Claim atomically moves a pending post to processing. It returns false
// when the post was already claimed or is terminal, which callers treat as
// a normal skip, not an error.
func (r *scheduleRepository) Claim(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE schedule
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, models.PostStatusProcessing, time.Now(), id, models.PostStatusPending)
	if err != nil {
		slog.Error(err.Error())
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *scheduleRepository) MarkPosted(ctx context.Context, id int64, postedAt time.Time) error {
	query := `
		UPDATE schedule
		SET status = $1, posted_at = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	return r.transition(ctx, query, models.PostStatusPosted, postedAt, time.Now(), id, models.PostStatusProcessing)
}

func (r *scheduleRepository) MarkFailed(ctx context.Context, id int64, errorDetail string) error {
	if len(errorDetail) > 500 {
		errorDetail = errorDetail[:500]
	}
	query := `
		UPDATE schedule
		SET status = $1, error_detail = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	return r.transition(ctx, query, models.PostStatusFailed, errorDetail, time.Now(), id, models.PostStatusProcessing)
}

// Reschedule moves a pending post to a new time. Claimed or terminal posts
// cannot be rescheduled.
func (r *scheduleRepository) Reschedule(ctx context.Context, id int64, newTime time.Time) error {
	query := `
		UPDATE schedule
		SET scheduled_time = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	return r.transition(ctx, query, newTime, time.Now(), id, models.PostStatusPending)
}

// Retry resets a failed post back to pending with a cleared error detail.
// This is an explicit operator action, never done automatically.
func (r *scheduleRepository) Retry(ctx context.Context, id int64, newTime time.Time) error {
	query := `
		UPDATE schedule
		SET status = $1, error_detail = NULL, scheduled_time = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	return r.transition(ctx, query, models.PostStatusPending, newTime, time.Now(), id, models.PostStatusFailed)
}

func (r *scheduleRepository) Cancel(ctx context.Context, id int64) error {
	query := `DELETE FROM schedule WHERE id = $1 AND status = $2`
	return r.transition(ctx, query, id, models.PostStatusPending)
}

func (r *scheduleRepository) ListByStatus(ctx context.Context, status string) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM schedule`
	var rows *sql.Rows
	var err error

	if status != "" {
		rows, err = r.db.QueryContext(ctx, query+` WHERE status = $1 ORDER BY scheduled_time DESC`, status)
	} else {
		rows, err = r.db.QueryContext(ctx, query+` ORDER BY scheduled_time DESC`)
	}
	if err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	defer rows.Close()

	return scanPosts(rows)
}

// LastScheduledTime is the derived chain-tail view for one account: the
// latest scheduled time among its pending and processing posts. Nil means
// the chain is empty. It is computed per call rather than cached so
// overlapping runs never see a stale tail.
func (r *scheduleRepository) LastScheduledTime(ctx context.Context, accountRef string) (*time.Time, error) {
	query := `
		SELECT scheduled_time
		FROM schedule
		WHERE account_ref = $1 AND status IN ($2, $3)
		ORDER BY scheduled_time DESC
		LIMIT 1
	`
	var tail time.Time
	err := r.db.QueryRowContext(ctx, query, accountRef, models.PostStatusPending, models.PostStatusProcessing).Scan(&tail)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Error(err.Error())
		return nil, err
	}
	return &tail, nil
}

// transition runs a conditional write and maps "no rows changed" to
// ErrInvalidState.
func (r *scheduleRepository) transition(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrInvalidState
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	var mediaRef, errorDetail sql.NullString
	var postedAt sql.NullTime

	err := row.Scan(&post.ID, &post.Platform, &post.AccountRef, &mediaRef, &post.Caption,
		&post.ScheduledTime, &post.Status, &postedAt, &errorDetail, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		slog.Error(err.Error())
		return nil, err
	}

	post.MediaRef = mediaRef.String
	post.ErrorDetail = errorDetail.String
	if postedAt.Valid {
		post.PostedAt = &postedAt.Time
	}
	return &post, nil
}

func scanPosts(rows *sql.Rows) ([]*models.ScheduledPost, error) {
	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}
