package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"sensorhub/config"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})
	return db
}

// --- Sensor tests ---

func TestSensorCRUD(t *testing.T) {
	db := testDB(t)

	s := &Sensor{Name: "Spindle Vibration", SensorType: "accelerometer", Manufacturer: "Bosch", MQTTTopic: "machines/mill-1/vibration"}
	if err := db.CreateSensor(s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.ID == 0 {
		t.Fatal("ID should be assigned")
	}
	if s.Status != StatusPending {
		t.Errorf("default status = %q, want %q", s.Status, StatusPending)
	}

	got, err := db.GetSensor(s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Spindle Vibration" {
		t.Errorf("Name = %q, want %q", got.Name, "Spindle Vibration")
	}
	if got.MQTTTopic != "machines/mill-1/vibration" {
		t.Errorf("MQTTTopic = %q, want %q", got.MQTTTopic, "machines/mill-1/vibration")
	}
	if got.LastSeen != nil {
		t.Errorf("LastSeen = %v, want nil", got.LastSeen)
	}

	// Lookup by topic
	got2, err := db.GetSensorByTopic("machines/mill-1/vibration")
	if err != nil {
		t.Fatalf("getByTopic: %v", err)
	}
	if got2.ID != s.ID {
		t.Errorf("getByTopic ID = %d, want %d", got2.ID, s.ID)
	}

	// Update operator fields
	got.Name = "Spindle Vibration (renamed)"
	got.MQTTTopic = "machines/mill-1/vib"
	if err := db.UpdateSensor(got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got3, _ := db.GetSensor(s.ID)
	if got3.Name != "Spindle Vibration (renamed)" {
		t.Errorf("Name after update = %q", got3.Name)
	}
	if got3.MQTTTopic != "machines/mill-1/vib" {
		t.Errorf("MQTTTopic after update = %q", got3.MQTTTopic)
	}

	// TouchSensorSeen
	if err := db.TouchSensorSeen(s.ID); err != nil {
		t.Fatalf("touch seen: %v", err)
	}
	got4, _ := db.GetSensor(s.ID)
	if got4.Status != StatusActive {
		t.Errorf("Status after touch = %q, want %q", got4.Status, StatusActive)
	}
	if got4.LastSeen == nil {
		t.Error("LastSeen should be set after touch")
	}

	// Delete
	if err := db.DeleteSensor(s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.GetSensor(s.ID); err == nil {
		t.Error("expected error after delete")
	}
}

func TestSensorEmptyTopicNotUnique(t *testing.T) {
	db := testDB(t)

	// Several sensors without a topic must coexist; '' is stored as NULL.
	if err := db.CreateSensor(&Sensor{Name: "a"}); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if err := db.CreateSensor(&Sensor{Name: "b"}); err != nil {
		t.Fatalf("create b: %v", err)
	}
	if err := db.CreateSensor(&Sensor{Name: "c", MACAddress: ""}); err != nil {
		t.Fatalf("create c: %v", err)
	}

	// But a real topic is unique.
	if err := db.CreateSensor(&Sensor{Name: "d", MQTTTopic: "t/1"}); err != nil {
		t.Fatalf("create d: %v", err)
	}
	if err := db.CreateSensor(&Sensor{Name: "e", MQTTTopic: "t/1"}); err == nil {
		t.Error("expected unique violation for duplicate topic")
	}
}

func TestSensorDeviceInfoUpdate(t *testing.T) {
	db := testDB(t)

	s := &Sensor{Name: "Pending Sensor (AA:BB:CC)", MACAddress: "AA:BB:CC", Status: StatusPending}
	db.CreateSensor(s)

	if err := db.UpdateSensorDeviceInfo("AA:BB:CC", "2.1", "10.0.0.12"); err != nil {
		t.Fatalf("update device info: %v", err)
	}

	got, err := db.GetSensorByMAC("AA:BB:CC")
	if err != nil {
		t.Fatalf("getByMAC: %v", err)
	}
	if got.FirmwareVersion != "2.1" {
		t.Errorf("FirmwareVersion = %q, want %q", got.FirmwareVersion, "2.1")
	}
	if got.IPAddress != "10.0.0.12" {
		t.Errorf("IPAddress = %q, want %q", got.IPAddress, "10.0.0.12")
	}
	if got.Status != StatusActive {
		t.Errorf("Status = %q, want %q", got.Status, StatusActive)
	}
	// Operator-owned name untouched
	if got.Name != "Pending Sensor (AA:BB:CC)" {
		t.Errorf("Name = %q, should be untouched", got.Name)
	}
}

func TestListSubscribableSensors(t *testing.T) {
	db := testDB(t)

	db.CreateSensor(&Sensor{Name: "with-topic", MQTTTopic: "t/1"})
	db.CreateSensor(&Sensor{Name: "no-topic"})
	db.CreateSensor(&Sensor{Name: "with-topic-2", MQTTTopic: "t/2"})

	sensors, err := db.ListSubscribableSensors()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sensors) != 2 {
		t.Errorf("len = %d, want 2", len(sensors))
	}
}

// --- Field tests ---

func TestSensorFieldCRUD(t *testing.T) {
	db := testDB(t)

	s := &Sensor{Name: "env"}
	db.CreateSensor(s)

	f := &SensorField{SensorID: s.ID, FieldName: "temperature", Unit: "°C"}
	if err := db.CreateSensorField(f); err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.ID == 0 {
		t.Fatal("ID should be assigned")
	}

	got, err := db.GetFieldByName(s.ID, "temperature")
	if err != nil {
		t.Fatalf("getByName: %v", err)
	}
	if got.Unit != "°C" {
		t.Errorf("Unit = %q, want %q", got.Unit, "°C")
	}

	// Unique per sensor
	if err := db.CreateSensorField(&SensorField{SensorID: s.ID, FieldName: "temperature"}); err == nil {
		t.Error("expected unique violation for duplicate field name")
	}

	// Same name on another sensor is fine
	s2 := &Sensor{Name: "env2"}
	db.CreateSensor(s2)
	if err := db.CreateSensorField(&SensorField{SensorID: s2.ID, FieldName: "temperature"}); err != nil {
		t.Errorf("same field name on different sensor: %v", err)
	}

	// Update
	got.Unit = "K"
	if err := db.UpdateSensorField(got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got2, _ := db.GetSensorField(got.ID)
	if got2.Unit != "K" {
		t.Errorf("Unit after update = %q, want %q", got2.Unit, "K")
	}

	// List
	db.CreateSensorField(&SensorField{SensorID: s.ID, FieldName: "humidity", Unit: "%"})
	fields, _ := db.ListSensorFields(s.ID)
	if len(fields) != 2 {
		t.Errorf("len = %d, want 2", len(fields))
	}

	// Delete
	db.DeleteSensorField(f.ID)
	if _, err := db.GetSensorField(f.ID); err == nil {
		t.Error("expected error after delete")
	}
}

// --- Measurement tests ---

func TestMeasurements(t *testing.T) {
	db := testDB(t)

	s := &Sensor{Name: "env"}
	db.CreateSensor(s)
	f := &SensorField{SensorID: s.ID, FieldName: "temperature"}
	db.CreateSensorField(f)

	id, err := db.InsertMeasurement(s.ID, f.ID, 21.5)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == 0 {
		t.Fatal("id should be assigned")
	}
	db.InsertMeasurement(s.ID, f.ID, 22.0)

	ms, err := db.ListMeasurements(s.ID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ms) != 2 {
		t.Fatalf("len = %d, want 2", len(ms))
	}
	// Most recent first
	if ms[0].Value != 22.0 {
		t.Errorf("latest value = %f, want 22.0", ms[0].Value)
	}

	latest, err := db.LatestMeasurement(s.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Value != 22.0 {
		t.Errorf("latest = %f, want 22.0", latest.Value)
	}

	count, _ := db.CountMeasurements(s.ID)
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	// Limit
	limited, _ := db.ListMeasurements(s.ID, 1)
	if len(limited) != 1 {
		t.Errorf("limited len = %d, want 1", len(limited))
	}
}

func TestForeignKeyCascade(t *testing.T) {
	db := testDB(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys pragma = %d, want 1", fk)
	}

	s := &Sensor{Name: "env"}
	db.CreateSensor(s)
	f := &SensorField{SensorID: s.ID, FieldName: "temperature"}
	db.CreateSensorField(f)
	db.InsertMeasurement(s.ID, f.ID, 21.5)
	fw := &FirmwareFile{SensorID: s.ID, Version: "1.0", Environment: EnvProduction}
	db.CreateFirmwareFile(fw, []byte{1})

	// Deleting a field takes its measurements with it.
	f2 := &SensorField{SensorID: s.ID, FieldName: "humidity"}
	db.CreateSensorField(f2)
	db.InsertMeasurement(s.ID, f2.ID, 40)
	if err := db.DeleteSensorField(f2.ID); err != nil {
		t.Fatalf("delete field: %v", err)
	}
	var n int
	db.QueryRow(db.Q("SELECT COUNT(*) FROM sensor_measurements WHERE field_id=?"), f2.ID).Scan(&n)
	if n != 0 {
		t.Errorf("measurements after field delete = %d, want 0", n)
	}

	// Deleting the sensor takes fields, measurements and firmware with it.
	if err := db.DeleteSensor(s.ID); err != nil {
		t.Fatalf("delete sensor: %v", err)
	}
	for _, table := range []string{"sensor_fields", "sensor_measurements", "sensor_firmware_files"} {
		db.QueryRow(db.Q("SELECT COUNT(*) FROM "+table+" WHERE sensor_id=?"), s.ID).Scan(&n)
		if n != 0 {
			t.Errorf("%s rows after sensor delete = %d, want 0", table, n)
		}
	}
}

// --- Firmware tests ---

func TestFirmwareCRUD(t *testing.T) {
	db := testDB(t)

	s := &Sensor{Name: "env"}
	db.CreateSensor(s)

	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	f := &FirmwareFile{SensorID: s.ID, Version: "1.2.0", Environment: EnvProduction}
	if err := db.CreateFirmwareFile(f, data); err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.ID == 0 {
		t.Fatal("ID should be assigned")
	}
	if f.FileSizeBytes != 4 {
		t.Errorf("size = %d, want 4", f.FileSizeBytes)
	}

	got, err := db.GetFirmwareFile(f.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != "1.2.0" {
		t.Errorf("Version = %q, want %q", got.Version, "1.2.0")
	}
	if got.DeletedAt != nil {
		t.Error("DeletedAt should be nil on upload")
	}

	bin, version, err := db.GetFirmwareBinary(f.ID)
	if err != nil {
		t.Fatalf("binary: %v", err)
	}
	if version != "1.2.0" {
		t.Errorf("binary version = %q", version)
	}
	if len(bin) != 4 || bin[0] != 0xDE {
		t.Errorf("binary = %v, want %v", bin, data)
	}

	exists, _ := db.FirmwareExists(f.ID)
	if !exists {
		t.Error("FirmwareExists = false, want true")
	}

	// Soft delete / restore
	if err := db.SoftDeleteFirmware(f.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	got2, _ := db.GetFirmwareFile(f.ID)
	if got2.DeletedAt == nil {
		t.Error("DeletedAt should be set after soft delete")
	}
	if err := db.RestoreFirmware(f.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got3, _ := db.GetFirmwareFile(f.ID)
	if got3.DeletedAt != nil {
		t.Error("DeletedAt should be nil after restore")
	}

	// Hard delete
	if err := db.DeleteFirmwareFile(f.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := db.GetFirmwareBinary(f.ID); err == nil {
		t.Error("expected error after hard delete")
	}
	exists, _ = db.FirmwareExists(f.ID)
	if exists {
		t.Error("FirmwareExists = true after hard delete")
	}
}

func TestFirmwareListFilters(t *testing.T) {
	db := testDB(t)

	s := &Sensor{Name: "env"}
	db.CreateSensor(s)

	f1 := &FirmwareFile{SensorID: s.ID, Version: "1.0", Environment: EnvProduction}
	db.CreateFirmwareFile(f1, []byte{1})
	f2 := &FirmwareFile{SensorID: s.ID, Version: "2.0", Environment: EnvProduction}
	db.CreateFirmwareFile(f2, []byte{2})
	db.SoftDeleteFirmware(f1.ID)

	all, err := db.ListFirmwareFiles(s.ID, FirmwareFilterAll)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all len = %d, want 2", len(all))
	}

	active, _ := db.ListFirmwareFiles(s.ID, FirmwareFilterActive)
	if len(active) != 1 || active[0].ID != f2.ID {
		t.Errorf("active = %v, want just f2", active)
	}

	deleted, _ := db.ListFirmwareFiles(s.ID, FirmwareFilterDeleted)
	if len(deleted) != 1 || deleted[0].ID != f1.ID {
		t.Errorf("deleted = %v, want just f1", deleted)
	}

	if _, err := db.ListFirmwareFiles(s.ID, "bogus"); err == nil {
		t.Error("expected error for unknown filter")
	}
}

func TestListExpiredSoftDeleted(t *testing.T) {
	db := testDB(t)

	s := &Sensor{Name: "env"}
	db.CreateSensor(s)

	f := &FirmwareFile{SensorID: s.ID, Version: "1.0", Environment: EnvProduction}
	db.CreateFirmwareFile(f, []byte{1})
	db.SoftDeleteFirmware(f.ID)

	// Cutoff in the past: nothing expired yet.
	past, err := db.ListExpiredSoftDeleted(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(past) != 0 {
		t.Errorf("expired before cutoff = %d, want 0", len(past))
	}

	// Cutoff in the future: the row qualifies.
	future, _ := db.ListExpiredSoftDeleted(time.Now().Add(time.Hour))
	if len(future) != 1 {
		t.Errorf("expired = %d, want 1", len(future))
	}
}

// --- Export outbox tests ---

func TestExportOutbox(t *testing.T) {
	db := testDB(t)

	if err := db.EnqueueExport("sensorhub.measurements", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	db.EnqueueExport("sensorhub.measurements", []byte(`{"v":2}`))

	msgs, err := db.ListPendingExports(10, 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}

	// Ack
	db.AckExport(msgs[0].ID)
	msgs2, _ := db.ListPendingExports(10, 5)
	if len(msgs2) != 1 {
		t.Errorf("pending after ack = %d, want 1", len(msgs2))
	}

	// Retry budget
	for i := 0; i < 5; i++ {
		db.IncrementExportRetries(msgs2[0].ID)
	}
	msgs3, _ := db.ListPendingExports(10, 5)
	if len(msgs3) != 0 {
		t.Errorf("pending after retry exhaustion = %d, want 0", len(msgs3))
	}
}

// --- Audit tests ---

func TestAuditLog(t *testing.T) {
	db := testDB(t)

	db.AppendAudit("firmware", 1, "uploaded", "version 1.0", "admin")
	db.AppendAudit("firmware", 1, "soft_deleted", "", "admin")
	db.AppendAudit("sensor", 2, "created", "env", "system")

	entries, err := db.ListAuditLog(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("len = %d, want 3", len(entries))
	}
	// Most recent first
	if entries[0].Action != "created" {
		t.Errorf("first entry action = %q, want %q", entries[0].Action, "created")
	}

	fwEntries, _ := db.ListEntityAudit("firmware", 1)
	if len(fwEntries) != 2 {
		t.Errorf("firmware entries = %d, want 2", len(fwEntries))
	}
}

// --- Dialect tests ---

func TestRebind(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"SELECT * FROM t WHERE a=? AND b=?", "SELECT * FROM t WHERE a=$1 AND b=$2"},
		{"INSERT INTO t (a) VALUES (?)", "INSERT INTO t (a) VALUES ($1)"},
		{"SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		got := Rebind(tt.input)
		if got != tt.want {
			t.Errorf("Rebind(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestInsertReturningQuery(t *testing.T) {
	// The pgx driver has no LastInsertId; inserts on postgres go through
	// QueryRow with RETURNING id. Check the SQL that path issues.
	pg := &DB{dialect: postgresDialect{}, driver: "postgres"}
	got := pg.Q(`INSERT INTO sensor_fields (sensor_id, field_name, unit) VALUES (?, ?, ?)`) + " RETURNING id"
	want := `INSERT INTO sensor_fields (sensor_id, field_name, unit) VALUES ($1, $2, $3) RETURNING id`
	if got != want {
		t.Errorf("query = %q, want %q", got, want)
	}
}
