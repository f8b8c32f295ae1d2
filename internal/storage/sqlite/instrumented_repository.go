package sqlite

import (
	"context"
	"database/sql"

	"github.com/psprofi/audiocache/internal/storage"
	"github.com/psprofi/audiocache/internal/telemetry"
)

// InstrumentedTrackRepository wraps TrackRepository with telemetry.
type InstrumentedTrackRepository struct {
	repo      *TrackRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedTrackRepository creates a new instrumented track repository.
func NewInstrumentedTrackRepository(db *sql.DB, tel *telemetry.Telemetry) *InstrumentedTrackRepository {
	return &InstrumentedTrackRepository{
		repo:      NewTrackRepository(db),
		telemetry: tel,
	}
}

func (r *InstrumentedTrackRepository) GetTrack(url string) (*storage.TrackRecord, error) {
	var result *storage.TrackRecord

	err := r.telemetry.InstrumentDBOperation(context.Background(), "get_track", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetTrack(url)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedTrackRepository) GetTracks() ([]storage.TrackRecord, error) {
	var result []storage.TrackRecord

	err := r.telemetry.InstrumentDBOperation(context.Background(), "get_tracks", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetTracks()

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedTrackRepository) SaveTrack(record *storage.TrackRecord) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "save_track", func(ctx context.Context) error {
		return r.repo.SaveTrack(record)
	})
}

func (r *InstrumentedTrackRepository) DeleteTrack(url string) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "delete_track", func(ctx context.Context) error {
		return r.repo.DeleteTrack(url)
	})
}

func (r *InstrumentedTrackRepository) DeleteAll() error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "delete_all_tracks", func(ctx context.Context) error {
		return r.repo.DeleteAll()
	})
}
