package database

import (
	"path/filepath"
	"testing"
	"time"

	"teamcal-comb/app/attendance"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func TestStoreAndLookup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAttendanceRepository(db, 10*time.Minute)

	url := "https://www.spielerplus.de/events/view?id=1"
	if err := repo.Store("user@example.com:token", url, attendance.Attending()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	result, err := repo.Lookup("user@example.com:token", url)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if result == nil {
		t.Fatal("Expected cache hit, got miss")
	}
	if result.Status != attendance.StatusAttending || !result.Nominated || !result.Attending {
		t.Errorf("Unexpected cached result: %+v", result)
	}
}

func TestLookupMiss(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAttendanceRepository(db, 10*time.Minute)

	result, err := repo.Lookup("user@example.com:token", "https://example.com/events/view?id=404")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if result != nil {
		t.Errorf("Expected miss, got %+v", result)
	}
}

func TestLookupIsPerUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAttendanceRepository(db, 10*time.Minute)

	url := "https://www.spielerplus.de/events/view?id=1"
	if err := repo.Store("alice:token", url, attendance.Attending()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	result, err := repo.Lookup("bob:token", url)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if result != nil {
		t.Errorf("Expected per-user isolation, got %+v", result)
	}
}

func TestStoreUpserts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAttendanceRepository(db, 10*time.Minute)

	url := "https://www.spielerplus.de/events/view?id=1"
	if err := repo.Store("user:token", url, attendance.NoResponse()); err != nil {
		t.Fatalf("First store failed: %v", err)
	}
	if err := repo.Store("user:token", url, attendance.NotAttending()); err != nil {
		t.Fatalf("Second store failed: %v", err)
	}

	result, err := repo.Lookup("user:token", url)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if result == nil || result.Status != attendance.StatusNotAttending {
		t.Errorf("Expected upserted status %s, got %+v", attendance.StatusNotAttending, result)
	}
}

func TestLookupExpiredEntry(t *testing.T) {
	db := setupTestDB(t)

	url := "https://www.spielerplus.de/events/view?id=1"
	writer := NewAttendanceRepository(db, 10*time.Minute)
	if err := writer.Store("user:token", url, attendance.Attending()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	// A zero TTL makes every entry stale immediately.
	reader := NewAttendanceRepository(db, 0)
	result, err := reader.Lookup("user:token", url)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if result != nil {
		t.Errorf("Expected stale entry to miss, got %+v", result)
	}
}

func TestPurgeStale(t *testing.T) {
	db := setupTestDB(t)

	url := "https://www.spielerplus.de/events/view?id=1"
	writer := NewAttendanceRepository(db, 10*time.Minute)
	if err := writer.Store("user:token", url, attendance.Attending()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	purger := NewAttendanceRepository(db, -time.Minute)
	purged, err := purger.PurgeStale()
	if err != nil {
		t.Fatalf("PurgeStale failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("Expected 1 purged entry, got %d", purged)
	}

	result, err := writer.Lookup("user:token", url)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if result != nil {
		t.Errorf("Expected entry gone after purge, got %+v", result)
	}
}

func TestPurgeKeepsFreshEntries(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAttendanceRepository(db, 10*time.Minute)

	url := "https://www.spielerplus.de/events/view?id=1"
	if err := repo.Store("user:token", url, attendance.Maybe()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	purged, err := repo.PurgeStale()
	if err != nil {
		t.Fatalf("PurgeStale failed: %v", err)
	}
	if purged != 0 {
		t.Errorf("Expected no purged entries, got %d", purged)
	}
}

func TestUserKeyIsHashed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAttendanceRepository(db, 10*time.Minute)

	url := "https://www.spielerplus.de/events/view?id=1"
	if err := repo.Store("user@example.com:token", url, attendance.Attending()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM attendance_cache WHERE user_key LIKE '%user@example.com%'`).Scan(&count)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if count != 0 {
		t.Error("Expected user key to be stored hashed, found clear text")
	}
}
