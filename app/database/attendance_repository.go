package database

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"teamcal-comb/app/attendance"
	"teamcal-comb/app/calendar"
)

var _ calendar.AttendanceCache = (*AttendanceRepository)(nil)

// AttendanceRepository caches classification results per user and event
// URL. Calendar apps poll feeds every few minutes; serving a poll burst
// from the cache keeps the scraper from hammering the remote site while a
// short TTL still surfaces attendance changes on the next poll.
type AttendanceRepository struct {
	db  *DB
	ttl time.Duration
}

func NewAttendanceRepository(db *DB, ttl time.Duration) *AttendanceRepository {
	return &AttendanceRepository{db: db, ttl: ttl}
}

// Lookup returns the cached result for the user/event pair if it is still
// fresh, or nil on a miss.
func (r *AttendanceRepository) Lookup(userKey, eventURL string) (*attendance.Result, error) {
	var (
		nominated int
		attending int
		status    string
		checkedAt time.Time
	)

	err := r.db.QueryRow(`
		SELECT nominated, attending, status, checked_at
		FROM attendance_cache
		WHERE user_key = ? AND event_url = ?`,
		hashKey(userKey), eventURL).Scan(&nominated, &attending, &status, &checkedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance cache: %w", err)
	}

	if time.Since(checkedAt) > r.ttl {
		return nil, nil
	}

	return &attendance.Result{
		Nominated: nominated != 0,
		Attending: attending != 0,
		Status:    attendance.Status(status),
	}, nil
}

// Store upserts a freshly classified result.
func (r *AttendanceRepository) Store(userKey, eventURL string, result attendance.Result) error {
	_, err := r.db.Exec(`
		INSERT INTO attendance_cache (user_key, event_url, nominated, attending, status, checked_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_key, event_url) DO UPDATE SET
			nominated = excluded.nominated,
			attending = excluded.attending,
			status = excluded.status,
			checked_at = excluded.checked_at`,
		hashKey(userKey), eventURL, boolInt(result.Nominated), boolInt(result.Attending),
		string(result.Status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store attendance result: %w", err)
	}
	return nil
}

// PurgeStale deletes entries older than the TTL and returns the count.
func (r *AttendanceRepository) PurgeStale() (int64, error) {
	res, err := r.db.Exec(`DELETE FROM attendance_cache WHERE checked_at < ?`,
		time.Now().UTC().Add(-r.ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale cache entries: %w", err)
	}
	return res.RowsAffected()
}

// hashKey fingerprints the user key so usernames never land in the
// database in clear text.
func hashKey(userKey string) string {
	sum := sha256.Sum256([]byte(userKey))
	return hex.EncodeToString(sum[:])
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
