package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at path and creates the tracks table
// if it doesn't exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS tracks (
		url TEXT PRIMARY KEY,
		cache_key TEXT NOT NULL,
		artist TEXT,
		title TEXT,
		thumbnail TEXT,
		resolved_at DATETIME
	)`)

	if err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}
