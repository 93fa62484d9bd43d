package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"AuraFM/model"
)

// LibraryRepository defines the interface for library track operations.
// 下载完成的曲目在这里登记，流式播放和目录监听都从这里查
type LibraryRepository interface {
	Add(ctx context.Context, track *model.LibraryTrack) (int64, error)
	GetByID(ctx context.Context, userID, id int64) (*model.LibraryTrack, error)
	ListByUser(ctx context.Context, userID int64) ([]*model.LibraryTrack, error)
	// RemoveByLocation 按对象 key 或本地路径删除记录，返回是否真的删了
	RemoveByLocation(ctx context.Context, location string) (bool, error)
}

// mysqlLibraryRepository implements LibraryRepository for MySQL.
type mysqlLibraryRepository struct {
	db *sql.DB
}

// NewMySQLLibraryRepository creates a new mysqlLibraryRepository.
func NewMySQLLibraryRepository(db *sql.DB) LibraryRepository {
	return &mysqlLibraryRepository{db: db}
}

// Add registers a completed download. 同曲目同音质重复下载时覆盖旧记录
func (r *mysqlLibraryRepository) Add(ctx context.Context, track *model.LibraryTrack) (int64, error) {
	query := `INSERT INTO library_tracks
		(user_id, track_id, title, artist, album, quality, format, location, object_key, file_path, size, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		title = VALUES(title), artist = VALUES(artist), album = VALUES(album),
		format = VALUES(format), location = VALUES(location), object_key = VALUES(object_key),
		file_path = VALUES(file_path), size = VALUES(size), downloaded_at = VALUES(downloaded_at)`

	downloadedAt := track.DownloadedAt
	if downloadedAt.IsZero() {
		downloadedAt = time.Now()
	}

	res, err := r.db.ExecContext(ctx, query,
		track.UserID, track.TrackID, track.Title, track.Artist, track.Album,
		track.Quality, track.Format, track.Location, track.ObjectKey, track.FilePath,
		track.Size, downloadedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert library track: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for library track: %w", err)
	}
	return id, nil
}

// GetByID retrieves one of the user's library tracks.
func (r *mysqlLibraryRepository) GetByID(ctx context.Context, userID, id int64) (*model.LibraryTrack, error) {
	query := `SELECT id, user_id, track_id, title, artist, album, quality, format, location,
		COALESCE(object_key, ''), COALESCE(file_path, ''), COALESCE(size, 0), downloaded_at
		FROM library_tracks WHERE id = ? AND user_id = ?`
	row := r.db.QueryRowContext(ctx, query, id, userID)

	track := &model.LibraryTrack{}
	err := row.Scan(&track.ID, &track.UserID, &track.TrackID, &track.Title, &track.Artist,
		&track.Album, &track.Quality, &track.Format, &track.Location,
		&track.ObjectKey, &track.FilePath, &track.Size, &track.DownloadedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan library track %d: %w", id, err)
	}
	return track, nil
}

// ListByUser retrieves all library tracks of a user, newest first.
func (r *mysqlLibraryRepository) ListByUser(ctx context.Context, userID int64) ([]*model.LibraryTrack, error) {
	query := `SELECT id, user_id, track_id, title, artist, album, quality, format, location,
		COALESCE(object_key, ''), COALESCE(file_path, ''), COALESCE(size, 0), downloaded_at
		FROM library_tracks WHERE user_id = ? ORDER BY downloaded_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query library tracks for user %d: %w", userID, err)
	}
	defer rows.Close()

	var tracks []*model.LibraryTrack
	for rows.Next() {
		track := &model.LibraryTrack{}
		if err := rows.Scan(&track.ID, &track.UserID, &track.TrackID, &track.Title, &track.Artist,
			&track.Album, &track.Quality, &track.Format, &track.Location,
			&track.ObjectKey, &track.FilePath, &track.Size, &track.DownloadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan library track row: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating library track rows: %w", err)
	}
	return tracks, nil
}

// RemoveByLocation deletes library rows whose object key or file path matches.
func (r *mysqlLibraryRepository) RemoveByLocation(ctx context.Context, location string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM library_tracks WHERE object_key = ? OR file_path = ?", location, location)
	if err != nil {
		return false, fmt.Errorf("failed to delete library tracks for location %s: %w", location, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}
