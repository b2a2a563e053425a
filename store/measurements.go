package store

import (
	"fmt"
	"time"
)

// Measurement is an append-only telemetry fact. Rows are never updated or
// deleted outside FK cascade from sensor removal.
type Measurement struct {
	ID         int64     `json:"id"`
	SensorID   int64     `json:"sensor_id"`
	FieldID    int64     `json:"field_id"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (db *DB) InsertMeasurement(sensorID, fieldID int64, value float64) (int64, error) {
	id, err := db.insertID(`INSERT INTO sensor_measurements (sensor_id, field_id, value) VALUES (?, ?, ?)`,
		sensorID, fieldID, value)
	if err != nil {
		return 0, fmt.Errorf("insert measurement: %w", err)
	}
	return id, nil
}

func (db *DB) ListMeasurements(sensorID int64, limit int) ([]*Measurement, error) {
	rows, err := db.Query(db.Q(`SELECT id, sensor_id, field_id, value, recorded_at
		FROM sensor_measurements WHERE sensor_id=? ORDER BY recorded_at DESC, id DESC LIMIT ?`),
		sensorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ms []*Measurement
	for rows.Next() {
		var m Measurement
		var recordedAt any
		if err := rows.Scan(&m.ID, &m.SensorID, &m.FieldID, &m.Value, &recordedAt); err != nil {
			return nil, err
		}
		m.RecordedAt = parseTime(recordedAt)
		ms = append(ms, &m)
	}
	return ms, rows.Err()
}

func (db *DB) LatestMeasurement(sensorID int64) (*Measurement, error) {
	var m Measurement
	var recordedAt any
	err := db.QueryRow(db.Q(`SELECT id, sensor_id, field_id, value, recorded_at
		FROM sensor_measurements WHERE sensor_id=? ORDER BY recorded_at DESC, id DESC LIMIT 1`),
		sensorID).Scan(&m.ID, &m.SensorID, &m.FieldID, &m.Value, &recordedAt)
	if err != nil {
		return nil, err
	}
	m.RecordedAt = parseTime(recordedAt)
	return &m, nil
}

// LatestFieldMeasurement returns the most recent reading for one field.
func (db *DB) LatestFieldMeasurement(sensorID, fieldID int64) (*Measurement, error) {
	var m Measurement
	var recordedAt any
	err := db.QueryRow(db.Q(`SELECT id, sensor_id, field_id, value, recorded_at
		FROM sensor_measurements WHERE sensor_id=? AND field_id=? ORDER BY recorded_at DESC, id DESC LIMIT 1`),
		sensorID, fieldID).Scan(&m.ID, &m.SensorID, &m.FieldID, &m.Value, &recordedAt)
	if err != nil {
		return nil, err
	}
	m.RecordedAt = parseTime(recordedAt)
	return &m, nil
}

func (db *DB) CountMeasurements(sensorID int64) (int, error) {
	var count int
	err := db.QueryRow(db.Q(`SELECT COUNT(*) FROM sensor_measurements WHERE sensor_id=?`), sensorID).Scan(&count)
	return count, err
}
