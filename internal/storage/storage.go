package storage

import "errors"

// ErrNotFound is returned when no record exists for the given URL.
var ErrNotFound = errors.New("track not found")

// TrackRecord holds the metadata resolved for a source URL.
type TrackRecord struct {
	URL        string
	CacheKey   string
	Artist     string
	Title      string
	Thumbnail  string
	ResolvedAt string
}

// TrackReadRepository reads resolved track metadata.
type TrackReadRepository interface {
	GetTrack(url string) (*TrackRecord, error)
	GetTracks() ([]TrackRecord, error)
}

// TrackWriteRepository persists resolved track metadata.
type TrackWriteRepository interface {
	SaveTrack(record *TrackRecord) error
	DeleteTrack(url string) error
	DeleteAll() error
}

// TrackRepository combines read and write access.
type TrackRepository interface {
	TrackReadRepository
	TrackWriteRepository
}
