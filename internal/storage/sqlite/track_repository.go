package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/psprofi/audiocache/internal/storage"
)

// TrackRepository stores resolved track metadata in SQLite.
type TrackRepository struct {
	db *sql.DB
}

func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

func (r *TrackRepository) GetTrack(url string) (*storage.TrackRecord, error) {
	var record storage.TrackRecord

	err := r.db.QueryRow(
		`SELECT url, cache_key, artist, title, thumbnail, resolved_at FROM tracks WHERE url = ?`,
		url,
	).Scan(&record.URL, &record.CacheKey, &record.Artist, &record.Title, &record.Thumbnail, &record.ResolvedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *TrackRepository) GetTracks() ([]storage.TrackRecord, error) {
	rows, err := r.db.Query(`SELECT url, cache_key, artist, title, thumbnail, resolved_at FROM tracks`)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var tracks []storage.TrackRecord

	for rows.Next() {
		var record storage.TrackRecord
		if err := rows.Scan(&record.URL, &record.CacheKey, &record.Artist, &record.Title, &record.Thumbnail, &record.ResolvedAt); err != nil {
			return nil, err
		}

		tracks = append(tracks, record)
	}

	return tracks, rows.Err()
}

func (r *TrackRepository) SaveTrack(record *storage.TrackRecord) error {
	if record.ResolvedAt == "" {
		record.ResolvedAt = time.Now().Format(time.RFC3339)
	}

	_, err := r.db.Exec(
		`INSERT INTO tracks (url, cache_key, artist, title, thumbnail, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
			cache_key = excluded.cache_key,
			artist = excluded.artist,
			title = excluded.title,
			thumbnail = excluded.thumbnail,
			resolved_at = excluded.resolved_at`,
		record.URL, record.CacheKey, record.Artist, record.Title, record.Thumbnail, record.ResolvedAt,
	)

	return err
}

func (r *TrackRepository) DeleteTrack(url string) error {
	_, err := r.db.Exec(`DELETE FROM tracks WHERE url = ?`, url)

	return err
}

func (r *TrackRepository) DeleteAll() error {
	_, err := r.db.Exec(`DELETE FROM tracks`)

	return err
}
