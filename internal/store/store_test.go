package store

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/rfsavaris/raincast/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func sampleRecord() models.Record {
	return models.Record{
		TempC:           23.5,
		Humidity:        82,
		PressurePa:      101100,
		UV:              "Low",
		PrecipMM:        sql.NullFloat64{Float64: 0, Valid: true},
		CloudCover:      40,
		RainProbability: 0.42,
	}
}

func TestInsertRecordIfChanged_FirstInsert(t *testing.T) {
	store := setupTestStore(t)

	inserted, err := store.InsertRecordIfChanged(sampleRecord())
	if err != nil {
		t.Fatalf("InsertRecordIfChanged: %v", err)
	}
	if !inserted {
		t.Fatal("expected first record to be inserted")
	}

	count, err := store.CountRecords()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestInsertRecordIfChanged_IdempotentOnIdenticalInput(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.InsertRecordIfChanged(sampleRecord()); err != nil {
		t.Fatal(err)
	}
	inserted, err := store.InsertRecordIfChanged(sampleRecord())
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Error("identical record was inserted again")
	}

	count, _ := store.CountRecords()
	if count != 1 {
		t.Errorf("count = %d, want exactly 1 row", count)
	}
}

func TestInsertRecordIfChanged_AnyFieldChangeInserts(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.InsertRecordIfChanged(sampleRecord()); err != nil {
		t.Fatal(err)
	}

	changed := sampleRecord()
	changed.RainProbability = 0.43
	inserted, err := store.InsertRecordIfChanged(changed)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Error("changed record was not inserted")
	}
}

func TestInsertRecordIfChanged_OnlyPreviousRowConsulted(t *testing.T) {
	store := setupTestStore(t)

	a := sampleRecord()
	b := sampleRecord()
	b.TempC = 24.0

	// A -> B -> A: the flip back to A differs from B and must insert.
	for _, rec := range []models.Record{a, b, a} {
		if _, err := store.InsertRecordIfChanged(rec); err != nil {
			t.Fatal(err)
		}
	}

	count, _ := store.CountRecords()
	if count != 3 {
		t.Errorf("count = %d, want 3 (not a general dedup index)", count)
	}
}

func TestInsertRecordIfChanged_PrecipAbsenceIsTracked(t *testing.T) {
	store := setupTestStore(t)

	withPrecip := sampleRecord()
	if _, err := store.InsertRecordIfChanged(withPrecip); err != nil {
		t.Fatal(err)
	}

	noPrecip := sampleRecord()
	noPrecip.PrecipMM = sql.NullFloat64{}
	inserted, err := store.InsertRecordIfChanged(noPrecip)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Error("precip 0 vs absent should count as a change")
	}
}

func TestLatestRecord_EmptyStore(t *testing.T) {
	store := setupTestStore(t)

	rec, err := store.LatestRecord()
	if err != nil {
		t.Fatalf("LatestRecord: %v", err)
	}
	if rec != nil {
		t.Errorf("rec = %+v, want nil on empty store", rec)
	}
}

func TestHistory_MostRecentFirst(t *testing.T) {
	store := setupTestStore(t)

	for i := 0; i < 5; i++ {
		rec := sampleRecord()
		rec.TempC = 20 + float64(i)
		if _, err := store.InsertRecordIfChanged(rec); err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.History(3, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	if records[0].TempC != 24 {
		t.Errorf("first record TempC = %v, want 24 (newest)", records[0].TempC)
	}
	if records[0].ID <= records[1].ID {
		t.Error("records not in descending insertion order")
	}
}

func TestHistory_Offset(t *testing.T) {
	store := setupTestStore(t)

	for i := 0; i < 4; i++ {
		rec := sampleRecord()
		rec.TempC = 20 + float64(i)
		if _, err := store.InsertRecordIfChanged(rec); err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.History(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
	if records[0].TempC != 21 {
		t.Errorf("offset page starts at TempC %v, want 21", records[0].TempC)
	}
}

func TestMigrate_Rerunnable(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
}
