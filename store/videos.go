package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups for records that do not exist.
var ErrNotFound = errors.New("record not found")

// Video is one row of videos_info. The JSON tags are the read API wire
// format.
type Video struct {
	UUID          uuid.UUID `json:"uuid"`
	AuthorID      int64     `json:"author_id"`
	CreatedAt     time.Time `json:"created_at"`
	IsComplete    bool      `json:"is_complete"`
	LikesCount    int64     `json:"likes_count"`
	DislikesCount int64     `json:"dislikes_count"`
	ViewsCount    int64     `json:"views_count"`
}

// VideoStore persists video metadata.
type VideoStore struct {
	db *sql.DB
}

func NewVideoStore(db *sql.DB) *VideoStore {
	return &VideoStore{db: db}
}

// InsertPending records a freshly assigned video under its author with
// is_complete left at its FALSE default.
func (s *VideoStore) InsertPending(ctx context.Context, id uuid.UUID, authorID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO videos_info (uuid, author_id) VALUES ($1, $2)`, id, authorID)
	if err != nil {
		return fmt.Errorf("inserting video %s: %w", id, err)
	}
	return nil
}

// MarkComplete flips is_complete for the given video. It reports whether a
// row was updated; confirming an unknown uuid is not an error, the broker may
// redeliver confirmations for rows that were already handled or never
// inserted.
func (s *VideoStore) MarkComplete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos_info SET is_complete = TRUE WHERE uuid = $1`, id)
	if err != nil {
		return false, fmt.Errorf("marking video %s complete: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("marking video %s complete: %w", id, err)
	}
	return n > 0, nil
}

const videoColumns = `uuid, author_id, created_at, is_complete, likes_count, dislikes_count, views_count`

func scanVideo(row interface{ Scan(...interface{}) error }) (Video, error) {
	var v Video
	err := row.Scan(&v.UUID, &v.AuthorID, &v.CreatedAt, &v.IsComplete,
		&v.LikesCount, &v.DislikesCount, &v.ViewsCount)
	return v, err
}

// GetByUUID returns the video regardless of completeness; the handler layer
// decides how to present incomplete records.
func (s *VideoStore) GetByUUID(ctx context.Context, id uuid.UUID) (Video, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos_info WHERE uuid = $1`, id)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	if err != nil {
		return Video{}, fmt.Errorf("getting video %s: %w", id, err)
	}
	return v, nil
}

// ListByAuthor returns the author's completed videos, newest first.
func (s *VideoStore) ListByAuthor(ctx context.Context, authorID int64, offset, limit int) ([]Video, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos_info
		 WHERE author_id = $1 AND is_complete
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, authorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing videos for author %d: %w", authorID, err)
	}
	return collectVideos(rows)
}

// ListComplete returns a page of completed videos across all authors,
// newest first.
func (s *VideoStore) ListComplete(ctx context.Context, offset, limit int) ([]Video, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos_info
		 WHERE is_complete
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing videos: %w", err)
	}
	return collectVideos(rows)
}

func collectVideos(rows *sql.Rows) ([]Video, error) {
	defer rows.Close()
	videos := []Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning video row: %w", err)
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating video rows: %w", err)
	}
	return videos, nil
}

// AddLikes adjusts the like counter by delta, clamped at zero. Negative
// deltas retract earlier likes.
func (s *VideoStore) AddLikes(ctx context.Context, id uuid.UUID, delta int64) error {
	return s.addCount(ctx, id, "likes_count", delta)
}

// AddDislikes adjusts the dislike counter by delta, clamped at zero.
func (s *VideoStore) AddDislikes(ctx context.Context, id uuid.UUID, delta int64) error {
	return s.addCount(ctx, id, "dislikes_count", delta)
}

// AddView increments the view counter.
func (s *VideoStore) AddView(ctx context.Context, id uuid.UUID) error {
	return s.addCount(ctx, id, "views_count", 1)
}

func (s *VideoStore) addCount(ctx context.Context, id uuid.UUID, column string, delta int64) error {
	// column comes from the fixed set above, never from input
	query := fmt.Sprintf(
		`UPDATE videos_info SET %s = GREATEST(0, %s + $2) WHERE uuid = $1`, column, column)
	if _, err := s.db.ExecContext(ctx, query, id, delta); err != nil {
		return fmt.Errorf("updating %s for video %s: %w", column, id, err)
	}
	return nil
}
