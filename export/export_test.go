package export

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"sensorhub/config"
	"sensorhub/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEnqueuerWritesOutbox(t *testing.T) {
	db := testDB(t)
	e := NewEnqueuer(db, "sensorhub.measurements")

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	e.EnqueueMeasurement(7, "temperature", 21.5, at)

	msgs, err := db.ListPendingExports(10, 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("pending = %d, want 1", len(msgs))
	}
	if msgs[0].Topic != "sensorhub.measurements" {
		t.Errorf("topic = %q", msgs[0].Topic)
	}

	var r Record
	if err := json.Unmarshal(msgs[0].Payload, &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.SensorID != 7 || r.Field != "temperature" || r.Value != 21.5 {
		t.Errorf("record = %+v", r)
	}
	if !r.RecordedAt.Equal(at) {
		t.Errorf("RecordedAt = %v, want %v", r.RecordedAt, at)
	}
}

func TestDrainerZeroInterval(t *testing.T) {
	db := testDB(t)

	// A zero drain_interval in the config must not panic the ticker.
	d := NewDrainer(db, &config.ExportConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "sensorhub.measurements",
	})
	d.Start()
	d.Stop()
}
