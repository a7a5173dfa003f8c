package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/rfsavaris/raincast/internal/metrics"
	"github.com/rfsavaris/raincast/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// LatestRecord returns the most recently inserted record, or nil when the
// table is empty. Ordering is by insertion (id), not by timestamp, so a
// clock stepping backwards cannot confuse the dedup comparison.
func (s *Store) LatestRecord() (*models.Record, error) {
	row := s.db.QueryRow(`
		SELECT id, temp, humidity, pressure, uv, precip, cloud_cover, rain_probability, created_at
		FROM records
		ORDER BY id DESC
		LIMIT 1
	`)

	var rec models.Record
	err := row.Scan(&rec.ID, &rec.TempC, &rec.Humidity, &rec.PressurePa, &rec.UV, &rec.PrecipMM, &rec.CloudCover, &rec.RainProbability, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// InsertRecordIfChanged appends rec unless it is structurally identical to
// the immediately preceding row, in which case the call is a logged no-op.
// Only the last row is consulted: a value that flips A→B→A produces two
// rows. Reports whether a row was written.
func (s *Store) InsertRecordIfChanged(rec models.Record) (bool, error) {
	last, err := s.LatestRecord()
	if err != nil {
		return false, fmt.Errorf("read latest record: %w", err)
	}

	if last != nil && last.SameContent(rec) {
		log.Printf("store: record unchanged since row %d, skipping insert", last.ID)
		metrics.RecordsDeduplicated.Inc()
		return false, nil
	}

	_, err = s.db.Exec(`
		INSERT INTO records (temp, humidity, pressure, uv, precip, cloud_cover, rain_probability, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.TempC, rec.Humidity, rec.PressurePa, rec.UV, rec.PrecipMM, rec.CloudCover, rec.RainProbability, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	metrics.RecordsInserted.Inc()
	return true, nil
}

// History returns persisted records most recent first.
func (s *Store) History(limit, offset int) ([]models.Record, error) {
	rows, err := s.db.Query(`
		SELECT id, temp, humidity, pressure, uv, precip, cloud_cover, rain_probability, created_at
		FROM records
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var rec models.Record
		if err := rows.Scan(&rec.ID, &rec.TempC, &rec.Humidity, &rec.PressurePa, &rec.UV, &rec.PrecipMM, &rec.CloudCover, &rec.RainProbability, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) CountRecords() (int64, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&count)
	return count, err
}
